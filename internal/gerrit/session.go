// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/gerritrest/internal/secret"
)

// Gerrit's session protocol.
const (
	sessionCookie = "GerritAccount"
	xsrfCookie    = "XSRF_TOKEN"
	xsrfHeader    = "X-Gerrit-Auth"
	loginPath     = "login/"
)

// A SessionState is the authentication state of a [Client].
type SessionState int

const (
	Anonymous     SessionState = iota // no session
	LoggingIn                         // login request in flight
	Authenticated                     // session cookie held, or basic auth credentials found
)

func (s SessionState) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case LoggingIn:
		return "logging-in"
	case Authenticated:
		return "authenticated"
	}
	return "SessionState(" + strconv.Itoa(int(s)) + ")"
}

// State returns the session state of c.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// loginKey marks the context of the login request,
// so that requests sent in that context do not start another login.
// A request sent during the login in an unmarked context waits for
// the login like any other caller, until its own context is done.
type loginKey struct{}

// ensureSession makes sure c can send an authenticated request,
// logging in if there is no session cookie.
func (c *Client) ensureSession(ctx context.Context) error {
	if ctx.Value(loginKey{}) != nil {
		return nil
	}
	if c.basicAuth {
		if _, _, ok := secret.UserPass(c.secret, c.host); !ok {
			return &ConfigError{Host: c.host}
		}
		c.setState(Authenticated)
		return nil
	}
	if c.hasSession() {
		return nil
	}
	// Concurrent callers share a single login, which outlives any
	// one caller's cancellation. Each caller waits only as long as
	// its own context allows.
	ch := c.login.DoChan(loginPath, func() (any, error) {
		return nil, c.logIn(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hasSession reports whether the cookie jar holds a session cookie,
// updating the session state to match.
func (c *Client) hasSession() bool {
	ok := c.cookie(sessionCookie) != nil
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case ok:
		c.state = Authenticated
	case c.state == Authenticated:
		c.state = Anonymous // session cookie expired
	}
	return ok
}

// logIn posts the host's credentials to Gerrit's login page
// and checks that a session cookie resulted.
func (c *Client) logIn(ctx context.Context) error {
	if c.hasSession() {
		// Another login finished while we were waiting.
		return nil
	}
	user, pass, ok := secret.UserPass(c.secret, c.host)
	if !ok {
		return &ConfigError{Host: c.host}
	}

	c.setState(LoggingIn)
	final := Anonymous
	defer func() { c.setState(final) }()

	c.slog.Debug("gerrit login", "host", c.host, "user", user)
	form := url.Values{"username": {user}, "password": {pass}}
	resp, err := c.send(context.WithValue(ctx, loginKey{}, true), http.MethodPost, loginPath, strings.NewReader(form.Encode()), formType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)

	if c.cookie(sessionCookie) == nil {
		return &AuthError{Host: c.host, Status: resp.Status}
	}
	if x := c.cookie(xsrfCookie); x != nil {
		c.mu.Lock()
		c.xsrf = x.Value
		c.mu.Unlock()
	}
	c.slog.Info("gerrit logged in", "host", c.host, "user", user)
	final = Authenticated
	return nil
}

// cookie returns the named cookie the jar holds for the base URL, or nil.
func (c *Client) cookie(name string) *http.Cookie {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// authorize adds credentials to req.
func (c *Client) authorize(req *http.Request) error {
	if c.basicAuth {
		user, pass, ok := secret.UserPass(c.secret, c.host)
		if !ok {
			return &ConfigError{Host: c.host}
		}
		req.SetBasicAuth(user, pass)
		return nil
	}
	// Gerrit may rotate the token; prefer the jar's current value.
	if x := c.cookie(xsrfCookie); x != nil {
		c.mu.Lock()
		c.xsrf = x.Value
		c.mu.Unlock()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xsrf != "" {
		req.Header.Set(xsrfHeader, c.xsrf)
	}
	return nil
}
