// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// HTTPClient returns an HTTP client suitable for [New].
// If insecureSkipVerify is set, the server's TLS certificate is not
// verified; use it only for test servers with self-signed certificates.
func HTTPClient(insecureSkipVerify bool) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: gzipped(t)}
}

// A gzipTransport decompresses gzip-encoded responses.
// The client asks Gerrit for gzip explicitly, which turns off
// the decompression that [http.Transport] does on its own.
type gzipTransport struct {
	base http.RoundTripper
}

// gzipped returns rt wrapped to decompress responses.
// A nil rt means [http.DefaultTransport].
func gzipped(rt http.RoundTripper) http.RoundTripper {
	if _, ok := rt.(*gzipTransport); ok {
		return rt
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &gzipTransport{base: rt}
}

func (t *gzipTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") || req.Method == http.MethodHead {
		return resp, nil
	}

	zr, err := gzip.NewReader(resp.Body)
	switch {
	case errors.Is(err, io.EOF):
		resp.Body.Close()
		resp.Body = http.NoBody
	case err != nil:
		resp.Body.Close()
		return nil, err
	default:
		resp.Body = &gzipBody{zr: zr, body: resp.Body}
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// A gzipBody reads a decompressed response body.
type gzipBody struct {
	zr   *gzip.Reader
	body io.ReadCloser
}

func (b *gzipBody) Read(p []byte) (int, error) { return b.zr.Read(p) }

func (b *gzipBody) Close() error {
	b.zr.Close()
	return b.body.Close()
}
