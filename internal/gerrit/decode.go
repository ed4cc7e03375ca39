// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"mime"
	"net/http"
	"slices"
	"strings"
)

// xssiPrefix is the anti-XSSI prefix Gerrit puts before JSON responses.
const xssiPrefix = ")]}'\n"

// A contentType is a parsed Content-Type header.
type contentType struct {
	mediaType string      // lower case, such as "application/json"
	params    [][2]string // name (lower case), value; sorted by name
}

// parseContentType parses a Content-Type header value.
// An unparseable value yields an empty media type.
func parseContentType(s string) contentType {
	mt, params, err := mime.ParseMediaType(s)
	if err != nil && err != mime.ErrInvalidMediaParameter {
		// Fall back to the part before any parameters.
		mt, _, _ = strings.Cut(s, ";")
		mt = strings.ToLower(strings.TrimSpace(mt))
		if strings.Count(mt, "/") != 1 {
			mt = ""
		}
	}
	ct := contentType{mediaType: mt}
	for _, name := range slices.Sorted(maps.Keys(params)) {
		ct.params = append(ct.params, [2]string{name, params[name]})
	}
	return ct
}

// param returns the value of the named parameter, or def.
func (ct contentType) param(name, def string) string {
	for _, p := range ct.params {
		if p[0] == name {
			return p[1]
		}
	}
	return def
}

// decode decodes a response body according to its Content-Type.
// A JSON response has any anti-XSSI prefix removed and must be valid JSON.
// Any other response decodes to nil; its body is not read.
func (c *Client) decode(resp *http.Response) (json.RawMessage, error) {
	ct := parseContentType(resp.Header.Get("Content-Type"))
	c.slog.Debug("gerrit response",
		"status", resp.StatusCode,
		"content_type", ct.mediaType,
		"charset", ct.param("charset", "unknown"))

	if ct.mediaType != jsonType {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimPrefix(body, []byte(xssiPrefix))

	var js json.RawMessage
	if err := json.Unmarshal(body, &js); err != nil {
		return nil, &DecodeError{URL: resp.Request.URL, Body: body, Err: err}
	}
	return js, nil
}
