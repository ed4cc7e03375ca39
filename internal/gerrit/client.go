// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gerrit is a client for the Gerrit Code Review REST API.
//
// A [Client] logs in to a Gerrit server on demand, keeps the session
// cookie and XSRF token it is given, and sends GET, PUT and POST
// requests to REST endpoints relative to the server's base URL.
// JSON responses have Gerrit's anti-XSSI prefix removed and are
// mapped onto the entity types in this package by [entity].
package gerrit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	ometric "go.opentelemetry.io/otel/metric"
	"golang.org/x/gerritrest/internal/secret"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	jsonType = "application/json"
	formType = "application/x-www-form-urlencoded"
)

// maxErrorBody is how much of a failed response body is kept in a [StatusError].
const maxErrorBody = 4 << 10

// A Client is a connection to a Gerrit server.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	base   *url.URL // base URL, path ends in "/"
	host   string   // host[:port] for credential lookup
	slog   *slog.Logger
	secret secret.DB
	http   *http.Client

	basicAuth bool // HTTP basic auth on the /a/ prefix instead of a login session

	mu    sync.Mutex
	state SessionState
	xsrf  string // XSRF token, once captured

	login    singleflight.Group
	requests ometric.Int64Counter
}

// New returns a new client for the Gerrit server at baseURL,
// such as "https://gerrit.wikimedia.org/r/".
// The client uses the given logger, secret database and HTTP client.
//
// The secret database is consulted for a secret whose name is the
// server's host and port, as in the base URL, or else the host name
// alone. The value must be user:pass.
//
// A nil logger discards all logs, a nil secret database has no
// secrets and a nil HTTP client means [HTTPClient](false).
// The client works on a copy of hc; if hc has no cookie jar,
// the copy is given a new one.
func New(baseURL string, lg *slog.Logger, sdb secret.DB, hc *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gerrit: bad base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("gerrit: bad base URL %q: need http(s)://host/", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	if u.RawPath != "" {
		u.RawPath = strings.TrimRight(u.RawPath, "/") + "/"
	}

	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if sdb == nil {
		sdb = secret.Empty()
	}
	if hc == nil {
		hc = HTTPClient(false)
	}
	hcCopy := *hc
	hcCopy.Transport = gzipped(hc.Transport)
	if hcCopy.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			// unreachable: cookiejar.New never fails
			return nil, err
		}
		hcCopy.Jar = jar
	}

	c := &Client{
		base:   u,
		host:   u.Host,
		slog:   lg,
		secret: sdb,
		http:   &hcCopy,
	}
	c.requests = noopCounter()
	return c, nil
}

// UseBasicAuth switches c to HTTP basic authentication.
// Requests then go to Gerrit's authenticated "/a/" URL prefix
// with the host's credentials and no login session is created.
// UseBasicAuth must be called before c is used.
func (c *Client) UseBasicAuth() {
	c.basicAuth = true
	if !strings.HasSuffix(c.base.Path, "/a/") {
		c.base.Path += "a/"
		if c.base.RawPath != "" {
			c.base.RawPath += "a/"
		}
	}
}

// BaseURL returns the URL that endpoints are resolved against.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// url returns the URL for endpoint.
// The endpoint's path, with any leading slash removed, is appended to
// the base path; its query and fragment, if any, replace the base's.
func (c *Client) url(endpoint string) (*url.URL, error) {
	ep, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("gerrit: bad endpoint %q: %w", endpoint, err)
	}
	u := *c.base
	u.Path = c.base.Path + strings.TrimLeft(ep.Path, "/")
	u.RawPath = c.base.EscapedPath() + strings.TrimLeft(ep.EscapedPath(), "/")
	if ep.RawQuery != "" || ep.ForceQuery {
		u.RawQuery = ep.RawQuery
		u.ForceQuery = ep.ForceQuery
	}
	if ep.Fragment != "" {
		u.Fragment = ep.Fragment
		u.RawFragment = ep.RawFragment
	}
	return &u, nil
}

// Get sends a GET request for endpoint and returns the decoded response.
// The result is nil if the response is not JSON.
func (c *Client) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil, "")
}

// Put sends body, encoded as JSON, in a PUT request for endpoint
// and returns the decoded response.
// The result is nil if the response is not JSON.
func (c *Client) Put(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPut, endpoint, body)
}

// Post sends form in a POST request for endpoint
// and returns the decoded response.
// The result is nil if the response is not JSON.
func (c *Client) Post(ctx context.Context, endpoint string, form url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), formType)
}

// doJSON is like do, with body encoded as JSON.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	js, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gerrit: encoding %s %s body: %w", method, endpoint, err)
	}
	return c.do(ctx, method, endpoint, bytes.NewReader(js), jsonType)
}

// do sends a request and returns the decoded response.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (json.RawMessage, error) {
	resp, err := c.send(ctx, method, endpoint, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return c.decode(resp)
}

// send makes sure c has a session, then sends a request for endpoint.
// The caller must close the response body.
func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	u, err := c.url(endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", jsonType)
	req.Header.Set("Accept-Encoding", "gzip")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	c.slog.Debug("gerrit request", "method", method, "url", u.Redacted())
	resp, err := c.http.Do(req)
	if err != nil {
		c.count(ctx, method, 0)
		return nil, err
	}
	c.count(ctx, method, resp.StatusCode)
	if resp.Request == nil {
		resp.Request = req
	}
	return resp, nil
}

// checkStatus returns a [*StatusError] if resp does not have a 2xx status.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		data = append(data, fmt.Sprintf("[reading body: %v]", err)...)
	}
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       data,
	}
}
