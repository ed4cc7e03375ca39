// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httprr

import (
	"bytes"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Redacted replaces every Gerrit secret in a trace.
const Redacted = "REDACTED"

var (
	cookieRE    = regexp.MustCompile(`\b(GerritAccount|XSRF_TOKEN)=[^;\s]*`)
	setCookieRE = regexp.MustCompile(`(?mi)^(Set-Cookie:\s*(?:GerritAccount|XSRF_TOKEN)=)[^;\r\n]*`)
)

// scrubGerrit installs the scrubbers that keep Gerrit credentials
// out of traces: basic auth, the session and XSRF cookies,
// the X-Gerrit-Auth header and the login form's password.
// Because the same scrubbers run in both modes, a replayed
// session carrying redacted cookies matches the recorded one.
func (rr *RecordReplay) scrubGerrit() {
	rr.ScrubReq(scrubAuthHeaders, scrubLoginForm)
	rr.ScrubResp(scrubSetCookie)
}

func scrubAuthHeaders(req *http.Request) error {
	if req.Header.Get("Authorization") != "" {
		req.Header.Set("Authorization", Redacted)
	}
	if req.Header.Get("X-Gerrit-Auth") != "" {
		req.Header.Set("X-Gerrit-Auth", Redacted)
	}
	if cookies := req.Header.Values("Cookie"); len(cookies) > 0 {
		for i, c := range cookies {
			cookies[i] = cookieRE.ReplaceAllString(c, "${1}="+Redacted)
		}
		req.Header["Cookie"] = cookies
	}
	return nil
}

func scrubLoginForm(req *http.Request) error {
	if req.Body == nil || !strings.HasSuffix(req.URL.Path, "/login/") {
		return nil
	}
	body := req.Body.(*Body)
	form, err := url.ParseQuery(string(body.Data))
	if err != nil || !form.Has("password") {
		return nil
	}
	form.Set("password", Redacted)
	body.Data = []byte(form.Encode())
	return nil
}

func scrubSetCookie(b *bytes.Buffer) error {
	scrubbed := setCookieRE.ReplaceAll(b.Bytes(), []byte("${1}"+Redacted))
	b.Reset()
	b.Write(scrubbed)
	return nil
}
