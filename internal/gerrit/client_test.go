// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/gerritrest/internal/entity"
	"golang.org/x/gerritrest/internal/testutil"
)

const fixtures = "testdata/gerrit.txtar"

// newTestClient returns a client of a new fake Gerrit.
func newTestClient(t *testing.T) (*Client, *fakeGerrit) {
	f := newFakeGerrit(t, fixtures)
	c, err := New(f.url(), testutil.Slogger(t), f.secrets(), nil)
	testutil.Check(t, err)
	return c, f
}

func TestNewBaseURL(t *testing.T) {
	for _, tt := range []struct {
		in, want string
	}{
		{"https://gerrit.example.com", "https://gerrit.example.com/"},
		{"https://gerrit.example.com/r", "https://gerrit.example.com/r/"},
		{"https://gerrit.example.com/r///", "https://gerrit.example.com/r/"},
		{"http://localhost:8080/", "http://localhost:8080/"},
	} {
		c, err := New(tt.in, nil, nil, nil)
		if err != nil {
			t.Errorf("New(%q): %v", tt.in, err)
			continue
		}
		if got := c.BaseURL(); got != tt.want {
			t.Errorf("New(%q).BaseURL() = %q, want %q", tt.in, got, tt.want)
		}
		if c.State() != Anonymous {
			t.Errorf("New(%q).State() = %v, want %v", tt.in, c.State(), Anonymous)
		}
	}

	for _, bad := range []string{"", "gerrit.example.com", "ftp://gerrit.example.com/", "https://", "http://a b/"} {
		if _, err := New(bad, nil, nil, nil); err == nil {
			t.Errorf("New(%q) succeeded, want error", bad)
		}
	}
}

func TestURL(t *testing.T) {
	for _, tt := range []struct {
		base, endpoint, want string
	}{
		{"https://h/r/", "projects/", "https://h/r/projects/"},
		{"https://h/r/", "/projects/", "https://h/r/projects/"},
		{"https://h/", "projects/my%2Fproject/branches/", "https://h/projects/my%2Fproject/branches/"},
		{"https://h/r/", "changes/?q=status:open&n=2", "https://h/r/changes/?q=status:open&n=2"},
		{"https://h/r/?debug=1", "changes/", "https://h/r/changes/?debug=1"},
		{"https://h/r/?debug=1", "changes/?n=1", "https://h/r/changes/?n=1"},
		{"https://h/r/", "config/server/version#top", "https://h/r/config/server/version#top"},
		{"https://h/r/", "", "https://h/r/"},
	} {
		c, err := New(tt.base, nil, nil, nil)
		testutil.Check(t, err)
		u, err := c.url(tt.endpoint)
		if err != nil {
			t.Errorf("url(%q) with base %q: %v", tt.endpoint, tt.base, err)
			continue
		}
		if got := u.String(); got != tt.want {
			t.Errorf("url(%q) with base %q = %q, want %q", tt.endpoint, tt.base, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	lg, buf := testutil.SlogBuffer()
	c, err := New("https://gerrit.example.com/", lg, nil, nil)
	testutil.Check(t, err)

	decode := func(ctype, body string) (json.RawMessage, error) {
		u, _ := url.Parse("https://gerrit.example.com/x")
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    &http.Request{Method: http.MethodGet, URL: u},
		}
		if ctype != "" {
			resp.Header.Set("Content-Type", ctype)
		}
		return c.decode(resp)
	}
	asMap := func(js json.RawMessage) map[string]any {
		var m map[string]any
		testutil.Check(t, json.Unmarshal(js, &m))
		return m
	}
	want := map[string]any{"a": 1.0}

	for _, tt := range []struct {
		ctype, body string
	}{
		{"application/json", ")]}'\n{\"a\":1}"},
		{"application/json", `{"a":1}`},
		{"application/json; charset=UTF-8", ")]}'\n{\"a\":1}\n"},
		{"Application/JSON; Charset=utf-8", ")]}'\n{\"a\":1}"},
	} {
		js, err := decode(tt.ctype, tt.body)
		if err != nil {
			t.Errorf("decode(%q, %q): %v", tt.ctype, tt.body, err)
			continue
		}
		if diff := cmp.Diff(want, asMap(js)); diff != "" {
			t.Errorf("decode(%q, %q) mismatch (-want +got):\n%s", tt.ctype, tt.body, diff)
		}
	}

	for _, ctype := range []string{"text/plain", "text/html; charset=UTF-8", "application/jsonp", ""} {
		js, err := decode(ctype, ")]}'\n{\"a\":1}")
		if err != nil || js != nil {
			t.Errorf("decode(%q) = %s, %v, want nil, nil", ctype, js, err)
		}
	}

	for _, body := range []string{")]}'\n{\"a\":", "", ")]}'\n", ")]}'{\"a\":1}"} {
		_, err := decode("application/json", body)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("decode(%q) error = %v, want *DecodeError", body, err)
		}
	}

	testutil.ExpectLog(t, buf, "charset=UTF-8", 2)
	testutil.ExpectLog(t, buf, "charset=utf-8", 1)
	testutil.ExpectLog(t, buf, "content_type=application/json", 9)
	testutil.ExpectLog(t, buf, "content_type=text/plain", 1)
}

func TestParseContentType(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want contentType
	}{
		{"", contentType{}},
		{"application/json", contentType{mediaType: "application/json"}},
		{"Application/JSON; Charset=UTF-8", contentType{"application/json", [][2]string{{"charset", "UTF-8"}}}},
		{"text/plain; q=1; charset=ascii", contentType{"text/plain", [][2]string{{"charset", "ascii"}, {"q", "1"}}}},
		{"application/json; charset", contentType{mediaType: "application/json"}},
		{"garbage", contentType{}},
	} {
		got := parseContentType(tt.in)
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(contentType{})); diff != "" {
			t.Errorf("parseContentType(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestGetPutPost(t *testing.T) {
	check := testutil.Checker(t)
	c, f := newTestClient(t)
	ctx := context.Background()

	js, err := c.Get(ctx, "/projects/my%2Fproject/branches/stable")
	check(err)
	if !strings.Contains(string(js), `"refs/heads/stable"`) {
		t.Errorf("Get returned %s", js)
	}

	js, err = c.Put(ctx, "projects/my%2Fproject/branches/feature%2Fx", &BranchInput{Revision: "76016386"})
	check(err)
	if js == nil {
		t.Errorf("Put returned no JSON")
	}
	if got, want := f.body("PUT /r/projects/my%2Fproject/branches/feature%2Fx"), `{"revision":"76016386"}`; got != want {
		t.Errorf("Put sent body %s, want %s", got, want)
	}

	js, err = c.Post(ctx, "projects/my%2Fproject/branches:delete", url.Values{"branches": {"stable"}})
	check(err)
	if js != nil {
		t.Errorf("Post of non-JSON response returned %s, want nil", js)
	}
	if got, want := f.body("POST /r/projects/my%2Fproject/branches:delete"), "branches=stable"; got != want {
		t.Errorf("Post sent body %q, want %q", got, want)
	}

	_, err = c.Get(ctx, "projects/missing/branches/")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("Get(missing) error = %v, want 404 *StatusError", err)
	}
	if !strings.Contains(string(se.Body), "Not found") || se.Method != http.MethodGet {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestListBranches(t *testing.T) {
	c, f := newTestClient(t)
	got, err := c.ListBranches(context.Background(), "my/project")
	testutil.Check(t, err)

	want := map[string]*BranchInfo{
		"HEAD":             {Ref: "HEAD", Revision: "master"},
		"refs/meta/config": {Ref: "refs/meta/config", Revision: "76016386a0d8ecc7b6be212424978bb45959d668"},
		"master":           {Ref: "refs/heads/master", Revision: "67ebf73496383c6777035e374d2d664009e2aa5c", CanDelete: true},
		"stable": {
			Ref:       "refs/heads/stable",
			Revision:  "64ca533bd0eb5252d2fee83f63da67caae9b4674",
			CanDelete: true,
			WebLinks: []WebLinkInfo{{
				Name:   "gitiles",
				URL:    "https://gerrit.example.com/plugins/gitiles/my/project/+/refs/heads/stable",
				Target: "_blank",
			}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListBranches mismatch (-want +got):\n%s", diff)
	}

	wantReqs := []string{"POST /r/login/", "GET /r/projects/my%2Fproject/branches/"}
	if diff := cmp.Diff(wantReqs, f.seen()); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestListBranchesResponses(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	// No anti-XSSI prefix.
	bs, err := c.ListBranches(ctx, "plain")
	testutil.Check(t, err)
	if len(bs) != 1 || bs["main"] == nil {
		t.Errorf("ListBranches(plain) = %v", bs)
	}

	// Not JSON.
	bs, err = c.ListBranches(ctx, "html")
	testutil.Check(t, err)
	if len(bs) != 0 {
		t.Errorf("ListBranches(html) = %v, want empty", bs)
	}

	_, err = c.ListBranches(ctx, "strict")
	var me *entity.MappingError
	if !errors.As(err, &me) {
		t.Fatalf("ListBranches(strict) error = %v, want *entity.MappingError", err)
	}
	if me.Key != "is_default" || me.Property != "isDefault" || me.Type != "gerrit.BranchInfo" {
		t.Errorf("MappingError = %+v", me)
	}

	_, err = c.ListBranches(ctx, "broken")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Errorf("ListBranches(broken) error = %v, want *DecodeError", err)
	}
}

func TestBranch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	b, err := c.Branch(ctx, "my/project", "stable")
	testutil.Check(t, err)
	want := &BranchInfo{Ref: "refs/heads/stable", Revision: "64ca533bd0eb5252d2fee83f63da67caae9b4674", CanDelete: true}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("Branch mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.Branch(ctx, "html", ""); err == nil {
		t.Errorf("Branch of missing branch succeeded")
	}
}

func TestCreateBranch(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	in := &BranchInput{Ref: "refs/heads/feature/x", Revision: "76016386a0d8ecc7b6be212424978bb45959d668"}
	b, err := c.CreateBranch(ctx, "my/project", in)
	testutil.Check(t, err)
	if b.Key() != "feature/x" || !b.CanDelete {
		t.Errorf("CreateBranch = %+v", b)
	}

	key := "PUT /r/projects/my%2Fproject/branches/feature%2Fx"
	var sent BranchInput
	testutil.Check(t, json.Unmarshal([]byte(f.body(key)), &sent))
	if diff := cmp.Diff(*in, sent); diff != "" {
		t.Errorf("CreateBranch sent (-want +got):\n%s", diff)
	}

	if _, err := c.CreateBranch(ctx, "my/project", &BranchInput{}); err == nil {
		t.Errorf("CreateBranch without ref succeeded")
	}
}

func TestDeleteBranches(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	testutil.Check(t, c.DeleteBranches(ctx, "my/project", &DeleteBranchesInput{Branches: []string{"stable", "refs/heads/master"}}))
	if got, want := f.body("POST /r/projects/my%2Fproject/branches:delete"), `{"branches":["stable","refs/heads/master"]}`; got != want {
		t.Errorf("DeleteBranches sent %s, want %s", got, want)
	}

	// Nothing to delete sends nothing.
	n := len(f.seen())
	testutil.Check(t, c.DeleteBranches(ctx, "my/project", &DeleteBranchesInput{}))
	if len(f.seen()) != n {
		t.Errorf("DeleteBranches with no branches sent a request")
	}
}

func TestFiles(t *testing.T) {
	c, _ := newTestClient(t)
	files, err := c.Files(context.Background(), "myProject~master~I8473b95934b5732ac55d26311a706c9c2bde9940", "")
	testutil.Check(t, err)

	want := map[string]*FileInfo{
		"/COMMIT_MSG": {Status: "A", LinesInserted: 7, SizeDelta: 551, Size: 551},
		"gerrit-server/src/main/java/com/google/gerrit/server/project/RefControl.java": {
			LinesInserted: 5, LinesDeleted: 3, SizeDelta: 98, Size: 23348,
		},
		"logo.png": {Status: "R", Binary: true, OldPath: "old-logo.png", Size: 4096},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
}
