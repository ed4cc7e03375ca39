// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	ometric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// requestsMetric counts requests sent to Gerrit,
// by method and response status code (0 for transport failures).
const requestsMetric = "gerrit/requests"

func noopCounter() ometric.Int64Counter {
	ctr, _ := noop.NewMeterProvider().Meter("gerrit").Int64Counter(requestsMetric)
	return ctr
}

// SetMeter makes c record request counts with m.
// It must be called before c is used.
func (c *Client) SetMeter(m ometric.Meter) error {
	ctr, err := m.Int64Counter(requestsMetric,
		ometric.WithDescription("number of Gerrit REST requests"),
		ometric.WithUnit("{request}"))
	if err != nil {
		return err
	}
	c.requests = ctr
	return nil
}

func (c *Client) count(ctx context.Context, method string, code int) {
	c.requests.Add(ctx, 1, ometric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("code", code)))
}
