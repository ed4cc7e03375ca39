// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/gerritrest/internal/secret"
	"golang.org/x/tools/txtar"
)

// Credentials and session values of the fake Gerrit.
const (
	fakeUser    = "gopher"
	fakePass    = "secret-pw"
	fakeSession = "session-1"
	fakeXSRF    = "xsrf-1"
)

// A fakeGerrit is a Gerrit server serving canned responses
// under the path /r/.
//
// Responses come from a txtar archive. Each file is named by the
// method and escaped path of a request, such as
// "GET /r/projects/my%2Fproject/branches/". A file may start with
// "Status:" and "Content-Type:" lines followed by a blank line;
// the rest is the body. The default is a 200 JSON response.
//
// The fake implements Gerrit's form login at /r/login/,
// checks the session cookie and, for requests that change state,
// the X-Gerrit-Auth header. Paths under /r/a/ use basic auth instead.
// Responses are gzipped when the client asks for it.
type fakeGerrit struct {
	t    *testing.T
	srv  *httptest.Server
	data map[string]string

	mu       sync.Mutex
	logins   int
	requests []string          // "METHOD /escaped/path" of every request
	bodies   map[string]string // last request body per request
}

// newFakeGerrit starts a fake Gerrit serving the txtar archive in file.
func newFakeGerrit(t *testing.T, file string) *fakeGerrit {
	ar, err := txtar.ParseFile(file)
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeGerrit{
		t:      t,
		data:   make(map[string]string),
		bodies: make(map[string]string),
	}
	for _, file := range ar.Files {
		f.data[file.Name] = string(file.Data)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.srv.Close)
	return f
}

// url returns the base URL of the fake.
func (f *fakeGerrit) url() string {
	return f.srv.URL + "/r/"
}

// secrets returns a secret database holding the fake's credentials.
func (f *fakeGerrit) secrets() secret.DB {
	return secret.Map{"127.0.0.1": fakeUser + ":" + fakePass}
}

func (f *fakeGerrit) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeGerrit) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeGerrit) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeGerrit) serveHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.EscapedPath()
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.bodies[key] = string(body)
	f.mu.Unlock()

	if key == "POST /r/login/" {
		f.login(w, r, string(body))
		return
	}

	if rest, ok := strings.CutPrefix(r.URL.EscapedPath(), "/r/a/"); ok {
		if user, pass, ok := r.BasicAuth(); !ok || user != fakeUser || pass != fakePass {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		key = r.Method + " /r/" + rest
	} else {
		if ck, err := r.Cookie(sessionCookie); err != nil || ck.Value != fakeSession {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if r.Method != http.MethodGet && r.Header.Get(xsrfHeader) != fakeXSRF {
			http.Error(w, "Invalid authentication credentials. Please generate a new identifier.", http.StatusForbidden)
			return
		}
	}

	data, ok := f.data[key]
	if !ok {
		http.Error(w, "Not found: "+key, http.StatusNotFound)
		return
	}
	f.respond(w, r, data)
}

// login implements Gerrit's form login.
// Bad credentials redisplay the login page without a session.
func (f *fakeGerrit) login(w http.ResponseWriter, r *http.Request, form string) {
	f.mu.Lock()
	f.logins++
	f.mu.Unlock()

	r.Body = io.NopCloser(strings.NewReader(form))
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") == fakeUser && r.PostForm.Get("password") == fakePass {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: fakeSession, Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: xsrfCookie, Value: fakeXSRF, Path: "/"})
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	io.WriteString(w, "<html><body>Gerrit Code Review</body></html>\n")
}

// respond writes a canned response.
func (f *fakeGerrit) respond(w http.ResponseWriter, r *http.Request, data string) {
	status := http.StatusOK
	ctype := "application/json; charset=UTF-8"
	if strings.HasPrefix(data, "Status:") || strings.HasPrefix(data, "Content-Type:") {
		hdr, rest, _ := strings.Cut(data, "\n\n")
		data = rest
		for _, line := range strings.Split(hdr, "\n") {
			k, v, _ := strings.Cut(line, ":")
			v = strings.TrimSpace(v)
			switch k {
			case "Status":
				n, err := strconv.Atoi(v)
				if err != nil {
					f.t.Errorf("bad fixture status %q", v)
				}
				status = n
			case "Content-Type":
				ctype = v
			}
		}
	}
	w.Header().Set("Content-Type", ctype)
	if data == "" || status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.WriteHeader(status)
		io.WriteString(w, data)
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(status)
	zw := gzip.NewWriter(w)
	io.WriteString(zw, data)
	if err := zw.Close(); err != nil {
		f.t.Error(err)
	}
}
