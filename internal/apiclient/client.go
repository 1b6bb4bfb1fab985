// Package apiclient is the HTTP client the suite uses to drive the application's REST API.
//
// Every request carries JSON content headers and a bearer token. Non-2xx responses come back
// as *Response values for the caller to inspect; only transport failures are returned as errors,
// and those are passed through exactly as net/http produced them.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/logutil"
	"github.com/kuitang/knowledge-e2e/internal/obs"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultToken   = "test-token"

	logBodyLimit = 2048
)

// OAuthOptions configures a client-credentials token source in place of a static token.
type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Options configures a Client. Zero values fall back to the documented defaults.
type Options struct {
	BaseURL     string
	Token       string
	TokenSource oauth2.TokenSource
	OAuth       *OAuthOptions
	HTTPClient  *http.Client
	Timeout     time.Duration
	// RPS throttles outgoing requests; 0 disables throttling.
	RPS     float64
	Headers map[string]string
}

// Client issues authenticated JSON requests against one base URL.
type Client struct {
	baseURL string
	tokens  oauth2.TokenSource
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

// RequestOption adjusts a single request.
type RequestOption func(*http.Request)

// WithHeader sets a header on one request, overriding the defaults.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// New builds a client from options.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Timeout > 0 {
		copied := *httpClient
		copied.Timeout = opts.Timeout
		httpClient = &copied
	}

	tokens := opts.TokenSource
	if tokens == nil && opts.OAuth != nil {
		cc := &clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		tokens = cc.TokenSource(tokenCtx)
	}
	if tokens == nil {
		token := opts.Token
		if token == "" {
			token = DefaultToken
		}
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    httpClient,
		limiter: limiter,
		headers: opts.Headers,
	}
}

// FromConfig builds a client for the configured API target.
func FromConfig(cfg *config.Config) *Client {
	opts := Options{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIToken,
		Timeout: cfg.NavigationTimeout,
		RPS:     cfg.APIRPS,
	}
	if cfg.OAuthTokenURL != "" {
		opts.OAuth = &OAuthOptions{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
			Scopes:       cfg.OAuthScopes,
		}
	}
	return New(opts)
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends one request. endpoint is appended to the base URL verbatim, query string included.
// body may be nil, []byte, string, io.Reader, or any JSON-encodable value.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if corr := obs.CorrelationFromContext(ctx); corr.TestName != "" {
		req.Header.Set(obs.HeaderTestName, corr.TestName)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, opt := range opts {
		opt(req)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	logger := obs.From(ctx).With("pkg", "apiclient")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("api_request_failed",
			"method", method,
			"url", req.URL.String(),
			"error", err,
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Duration:   time.Since(start),
	}

	logger.Debug("api_request",
		"method", method,
		"url", req.URL.String(),
		"status", out.StatusCode,
		"dur_ms", float64(out.Duration.Microseconds())/1000.0,
		"req_headers", logutil.FormatHeadersForLog(req.Header),
		"req_body", logutil.FormatBodyForLog("application/json", payload, logBodyLimit),
		"resp_body", logutil.FormatBodyForLog(out.ContentType(), respBody, logBodyLimit),
	)
	return out, nil
}

// Get issues a GET.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, opts...)
}

// Head issues a HEAD.
func (c *Client) Head(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodHead, endpoint, nil, opts...)
}

// Post issues a POST with an optional body.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, opts...)
}

// Put issues a PUT.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body, opts...)
}

// Patch issues a PATCH.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body, opts...)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, opts...)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}
