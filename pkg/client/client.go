package client

import (
	"time"

	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
)

// UserAgent is sent with every request
const UserAgent = "Agora-CLI/0.1.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var httpClient *resty.Client

// New creates a configured HTTP client for baseURL
func New(baseURL string, timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(timeout)
	c.SetHeader("User-Agent", UserAgent)
	c.SetHeader("Accept", "application/json")
	c.JSONMarshal = json.Marshal
	c.JSONUnmarshal = json.Unmarshal

	c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})
	c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "url", resp.Request.URL)
		return nil
	})
	return c
}

// Init initializes the shared HTTP client from configuration
func Init() {
	baseURL := config.GetString("api.base_url")
	timeout := time.Duration(config.GetInt("api.timeout")) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient = New(baseURL, timeout)
}

// GetClient returns the shared HTTP client
func GetClient() *resty.Client {
	if httpClient == nil {
		Init()
	}
	return httpClient
}

// SetAuthToken sets the authorization token
func SetAuthToken(token string) {
	if token == "" {
		return
	}
	GetClient().SetAuthToken(token)
}

// ClearAuthToken drops the authorization token
func ClearAuthToken() {
	httpClient = nil
	Init()
}
