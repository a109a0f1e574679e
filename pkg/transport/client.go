// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package transport issues JSON requests to the remote identity API and
// normalizes the results. It owns credential plumbing: cookies ride a
// jar, a bearer token is sourced from the auth cookie, and tokens
// arriving via the X-Auth-Token response header are folded back into
// the cookie so cross-origin deployments keep their session.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-authflow/pkg/autherr"
	"github.com/jeremyhahn/go-authflow/pkg/correlation"
	"github.com/jeremyhahn/go-authflow/pkg/logging"
	"github.com/jeremyhahn/go-authflow/pkg/metrics"
)

// AuthTokenHeader is the response header carrying a refreshed session
// token on cross-origin deployments.
const AuthTokenHeader = "X-Auth-Token"

// Client is the identity API transport.
type Client struct {
	config     *Config
	httpClient *http.Client
	jar        http.CookieJar
	baseURL    *url.URL
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewClient creates a transport for the identity API at cfg.BaseURL.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transport: config is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: create cookie jar: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Jar: jar,
		},
		jar:     jar,
		baseURL: parsed,
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// Get issues a GET request to path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request to path with an optional JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request to path with an optional JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// do performs a request and normalizes the outcome. Network failures
// map to the technical error, deadline expiry to the timeout error; any
// HTTP response, success or not, returns without error so callers own
// the status mapping.
func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, autherr.Technical(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, autherr.Technical(fmt.Errorf("marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return nil, autherr.Technical(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(correlation.CorrelationIDHeader, correlation.GetOrGenerate(ctx))

	if token := c.AuthToken(); token != "" && !tokenExpired(token, time.Now()) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordRequest(method, "timeout", duration)
			return nil, autherr.ErrRequestTimeout.WithCause(err)
		}
		metrics.RecordRequest(method, "network_error", duration)
		return nil, autherr.Technical(err)
	}
	defer func() {
		c.logger.MaybeError(resp.Body.Close())
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, autherr.Technical(fmt.Errorf("read response body: %w", err))
	}

	metrics.RecordRequest(method, strconv.Itoa(resp.StatusCode), duration)
	c.logger.Debug("identity API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", duration)

	// Token refresh path: fold a header-delivered token back into the
	// auth cookie for subsequent requests.
	if token := resp.Header.Get(AuthTokenHeader); token != "" {
		c.SetAuthToken(token)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// AuthToken returns the session token held in the auth cookie, or empty.
func (c *Client) AuthToken() string {
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == c.config.AuthCookieName {
			return cookie.Value
		}
	}
	return ""
}

// SetAuthToken stores the session token into the auth cookie.
func (c *Client) SetAuthToken(token string) {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:     c.config.AuthCookieName,
		Value:    token,
		Path:     "/",
		Secure:   c.baseURL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	}})
}

// ClearAuthToken drops the session token.
func (c *Client) ClearAuthToken() {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   c.config.AuthCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}

// HasValidAuthToken reports whether a session token is present and, if
// it is a JWT, not past its expiry. Used as a cheap local check before
// asking the server who the current user is.
func (c *Client) HasValidAuthToken() bool {
	token := c.AuthToken()
	return token != "" && !tokenExpired(token, time.Now())
}
