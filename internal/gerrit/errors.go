// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"fmt"
	"net/url"
)

// A ConfigError reports that no credentials are available
// for a Gerrit host. No request was sent.
type ConfigError struct {
	Host string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gerrit: no credentials for %s", e.Host)
}

// An AuthError reports that a login exchange completed
// without producing a session cookie.
type AuthError struct {
	Host   string
	Status string // status of the login response
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gerrit: login to %s failed: no %s cookie (%s)", e.Host, sessionCookie, e.Status)
}

// A StatusError reports a response with a non-2xx status code.
type StatusError struct {
	Method     string
	URL        *url.URL
	StatusCode int
	Status     string
	Body       []byte // start of the response body
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gerrit: %s %s: %s\n%s", e.Method, e.URL.Redacted(), e.Status, e.Body)
}

// A DecodeError reports a JSON response whose body is not valid JSON.
type DecodeError struct {
	URL  *url.URL
	Body []byte // body after prefix stripping
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gerrit: decoding response from %s: %v", e.URL.Redacted(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
