package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no authentication token provided")
	ErrInvalidToken = errors.New("invalid token")
)

// Authenticator maps a connection token to a user id. Without a secret the
// token is taken as the user id, which is only meant for local development.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Insecure reports whether tokens are trusted as plain user ids.
func (a *Authenticator) Insecure() bool {
	return len(a.secret) == 0
}

// Authenticate validates token and returns the user id it names.
func (a *Authenticator) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}
	if a.Insecure() {
		return token, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return userID, nil
}

// Sign issues a token for userID. Used by tests and the dev tooling.
func (a *Authenticator) Sign(userID string) (string, error) {
	if a.Insecure() {
		return userID, nil
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	return token.SignedString(a.secret)
}

// tokenFrom reads the token from ?token= or the Authorization header. The
// header wins when both are present.
func tokenFrom(c *gin.Context) string {
	token := c.Query("token")
	if auth := c.GetHeader("Authorization"); auth != "" {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	return token
}
