// Package client provides the HTTP request function used by optimistic
// mutations and backfill fetches. It wraps resty with auth, debug
// logging, and non-2xx to SyncError mapping.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
)

// Config holds HTTP client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8686",
		Timeout:   30 * time.Second,
		UserAgent: "Chorus-Client/0.1.0",
	}
}

// Client is the shared HTTP client for API operations
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// errorBody is the server's error response envelope
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a new API client
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	http := resty.New()
	http.SetBaseURL(cfg.BaseURL)
	http.SetTimeout(cfg.Timeout)
	http.SetHeader("User-Agent", cfg.UserAgent)

	c := &Client{
		http: http,
		log:  logger.Log,
	}

	// Request/response debug logging
	http.OnBeforeRequest(func(rc *resty.Client, req *resty.Request) error {
		c.log.Debug("HTTP request",
			zap.String("method", req.Method),
			zap.String("url", req.URL))
		return nil
	})

	http.OnAfterResponse(func(rc *resty.Client, resp *resty.Response) error {
		c.log.Debug("HTTP response",
			zap.Int("status", resp.StatusCode()),
			zap.Duration("elapsed", resp.Time()))
		return nil
	})

	return c
}

// SetAuthToken sets the authorization token for subsequent requests
func (c *Client) SetAuthToken(token string) {
	c.http.SetHeader("Authorization", "Bearer "+token)
}

// ClearAuthToken removes the authorization header
func (c *Client) ClearAuthToken() {
	c.http.Header.Del("Authorization")
}

// Get performs a GET request, decoding the response into result
func (c *Client) Get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Get(path)
	return c.check(resp, err, path)
}

// Post performs a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	return c.check(resp, err, path)
}

// Put performs a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, result interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Put(path)
	return c.check(resp, err, path)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, path string, result interface{}) error {
	req := c.http.R().SetContext(ctx)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Delete(path)
	return c.check(resp, err, path)
}

// check maps transport failures and non-2xx responses to SyncErrors
func (c *Client) check(resp *resty.Response, err error, path string) error {
	if err != nil {
		return errors.New(errors.ErrorTypeNetwork,
			fmt.Sprintf("request to %s failed", path), err)
	}

	if resp.IsSuccess() {
		return nil
	}

	message := fmt.Sprintf("%s: %s", path, resp.Status())

	// Prefer the server's error message if the body parses
	var body errorBody
	if parseErr := jsonUnmarshal(resp.Body(), &body); parseErr == nil && body.Error.Message != "" {
		message = body.Error.Message
	}

	return errors.FromStatusCode(resp.StatusCode(), message)
}
