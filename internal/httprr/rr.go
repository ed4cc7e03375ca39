// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httprr implements HTTP record and replay of Gerrit traffic,
// for tests and for tracing the command line tool.
//
// [Open] creates a new [RecordReplay]. Whether it is recording or replaying
// is controlled by the -httprecord flag, which is defined by this package
// only in test programs (built by “go test”).
// [Create] always records.
//
// A trace file starts with the line "httprr trace v1". Each record that
// follows is a line "n1 n2" giving the byte lengths of the request and
// the response, then the request and response in HTTP wire format.
package httprr

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const header = "httprr trace v1"

var record = new(string)

func init() {
	if testing.Testing() {
		record = flag.String("httprecord", "", "re-record traces for files matching `regexp`")
	}
}

// A RecordReplay is an [http.RoundTripper] that either records
// (request, response) pairs to a file while passing requests on to
// another RoundTripper, or replays responses from such a file.
type RecordReplay struct {
	file string
	real http.RoundTripper

	mu        sync.Mutex
	reqScrub  []func(*http.Request) error
	respScrub []func(*bytes.Buffer) error
	replay    map[string]string // replay mode: request wire → response wire
	record    *os.File          // record mode: the trace being written
	writeErr  error
}

// ScrubReq adds request scrubbing functions to rr.
//
// Scrubbers run, in registration order, on a copy of each request before
// it is used as a lookup key or saved, to remove secrets and
// non-deterministic values. The request sent to the server is unchanged.
// A scrubber can assume that a non-nil req.Body has type [*Body].
func (rr *RecordReplay) ScrubReq(scrubs ...func(req *http.Request) error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.reqScrub = append(rr.reqScrub, scrubs...)
}

// ScrubResp adds response scrubbing functions to rr.
// They run, in registration order, on the wire form of each
// response before it is saved.
func (rr *RecordReplay) ScrubResp(scrubs ...func(*bytes.Buffer) error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.respScrub = append(rr.respScrub, scrubs...)
}

// Recording reports whether rr is in recording mode.
func (rr *RecordReplay) Recording() bool {
	return rr.record != nil
}

// Open returns a [RecordReplay] for the named trace file.
//
// If the -httprecord flag matches file, Open records a new trace,
// sending requests with rt. Otherwise it replays the existing trace.
// Either way the Gerrit credential scrubbers are installed.
func Open(file string, rt http.RoundTripper) (*RecordReplay, error) {
	rec, err := Recording(file)
	if err != nil {
		return nil, err
	}
	if rec {
		return Create(file, rt)
	}
	return replay(file, rt)
}

// Recording reports whether the -httprecord flag matches file.
func Recording(file string) (bool, error) {
	if *record == "" {
		return false, nil
	}
	re, err := regexp.Compile(*record)
	if err != nil {
		return false, fmt.Errorf("invalid -httprecord flag: %v", err)
	}
	return re.MatchString(file), nil
}

// Create returns a [RecordReplay] that records a new trace in file,
// sending requests with rt.
func Create(file string, rt http.RoundTripper) (*RecordReplay, error) {
	f, err := os.Create(file)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "%s\n", header); err != nil {
		f.Close()
		return nil, err
	}
	rr := &RecordReplay{file: file, real: rt, record: f}
	rr.scrubGerrit()
	return rr, nil
}

// replay returns a replay-mode RecordReplay for the trace in file.
func replay(file string, rt http.RoundTripper) (*RecordReplay, error) {
	bdata, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	data := string(bdata)
	line, data, ok := strings.Cut(data, "\n")
	if !ok || line != header {
		return nil, fmt.Errorf("read %s: not an httprr trace", file)
	}

	log := make(map[string]string)
	for data != "" {
		line, data, ok = strings.Cut(data, "\n")
		f1, f2, _ := strings.Cut(line, " ")
		n1, err1 := strconv.Atoi(f1)
		n2, err2 := strconv.Atoi(f2)
		if !ok || err1 != nil || err2 != nil || n1 > len(data) || n2 > len(data[n1:]) {
			return nil, fmt.Errorf("read %s: corrupt httprr trace", file)
		}
		log[data[:n1]] = data[n1 : n1+n2]
		data = data[n1+n2:]
	}
	rr := &RecordReplay{file: file, real: rt, replay: log}
	rr.scrubGerrit()
	return rr, nil
}

// Client returns an [http.Client] using rr as its transport.
func (rr *RecordReplay) Client() *http.Client {
	return &http.Client{Transport: rr}
}

// A Body is the body of a request seen by a scrubber.
type Body struct {
	Data       []byte
	ReadOffset int
}

func (b *Body) Read(p []byte) (int, error) {
	n := copy(p, b.Data[b.ReadOffset:])
	if n == 0 {
		return 0, io.EOF
	}
	b.ReadOffset += n
	return n, nil
}

func (b *Body) Close() error { return nil }

// RoundTrip implements [http.RoundTripper].
// In replay mode, a request missing from the trace is an error.
func (rr *RecordReplay) RoundTrip(req *http.Request) (*http.Response, error) {
	reqWire, err := rr.reqWire(req)
	if err != nil {
		return nil, err
	}
	if rr.replay != nil {
		respWire, ok := rr.replay[reqWire]
		if !ok {
			return nil, fmt.Errorf("cached HTTP response not found for:\n%s", reqWire)
		}
		resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(respWire)), req)
		if err != nil {
			return nil, fmt.Errorf("read %s: corrupt httprr trace: %v", rr.file, err)
		}
		return resp, nil
	}

	if err := rr.writeError(); err != nil {
		return nil, err
	}
	resp, err := rr.real.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	respWire, err := rr.respWire(resp)
	if err != nil {
		return nil, err
	}
	if err := rr.writeLog(reqWire, respWire); err != nil {
		return nil, err
	}
	return resp, nil
}

// reqWire returns the scrubbed wire form of req.
// It replaces req.Body with an equivalent [*Body].
func (rr *RecordReplay) reqWire(req *http.Request) (string, error) {
	key := req.Clone(context.Background())
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return "", err
		}
		req.Body = &Body{Data: body}
		key.Body = &Body{Data: bytes.Clone(body)}
	}

	rr.mu.Lock()
	scrubs := rr.reqScrub
	rr.mu.Unlock()
	for _, scrub := range scrubs {
		if err := scrub(key); err != nil {
			return "", err
		}
	}
	if key.Body != nil {
		key.ContentLength = int64(len(key.Body.(*Body).Data))
	}

	// WriteProxy keeps the URL's scheme and host.
	var w strings.Builder
	if err := key.WriteProxy(&w); err != nil {
		return "", err
	}
	return w.String(), nil
}

// respWire returns the scrubbed wire form of resp,
// leaving an equivalent response in *resp.
func (rr *RecordReplay) respWire(resp *http.Response) (string, error) {
	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		return "", err
	}
	resp2, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf.Bytes())), resp.Request)
	if err != nil {
		// unreachable unless resp.Write does not round-trip with http.ReadResponse
		return "", err
	}
	*resp = *resp2

	rr.mu.Lock()
	scrubs := rr.respScrub
	rr.mu.Unlock()
	for _, scrub := range scrubs {
		if err := scrub(&buf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func (rr *RecordReplay) writeError() error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.writeErr
}

// writeLog appends a record to the trace.
// On a write error the trace is removed and every later
// RoundTrip fails.
func (rr *RecordReplay) writeLog(reqWire, respWire string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.writeErr != nil {
		return rr.writeErr
	}
	_, err1 := fmt.Fprintf(rr.record, "%d %d\n", len(reqWire), len(respWire))
	_, err2 := rr.record.WriteString(reqWire)
	_, err3 := rr.record.WriteString(respWire)
	if err := cmp.Or(err1, err2, err3); err != nil {
		rr.writeErr = err
		rr.record.Close()
		os.Remove(rr.file)
		return err
	}
	return nil
}

// Close closes the trace. It is a no-op in replay mode.
func (rr *RecordReplay) Close() error {
	if err := rr.writeError(); err != nil {
		return err
	}
	if rr.record != nil {
		return rr.record.Close()
	}
	return nil
}
