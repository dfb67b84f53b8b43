package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// APIError represents a failed API call
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

// ParseError builds an APIError from a non-2xx response. The body is read as
// a {status, message} envelope when possible.
func ParseError(resp *resty.Response) error {
	statusCode := resp.StatusCode()
	code := strings.ToLower(strings.ReplaceAll(http.StatusText(statusCode), " ", "_"))
	if code == "" {
		code = "unknown_error"
	}

	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Message != "" {
		return &APIError{Code: code, Message: env.Message, StatusCode: statusCode}
	}

	return &APIError{Code: code, Message: strings.TrimSpace(string(resp.Body())), StatusCode: statusCode}
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized checks if error is due to missing/invalid authentication
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// IsForbidden checks if error is due to insufficient permissions
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

// IsNotFound checks if error is due to resource not found
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsServerError checks if error is due to server error (5xx)
func IsServerError(err error) bool {
	return statusOf(err) >= 500
}
