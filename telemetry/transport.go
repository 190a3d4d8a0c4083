package telemetry

import (
	"context"
	"io"
	"net/http"
	"time"
)

// InstrumentedTransport wraps an http.RoundTripper with remote request metrics.
type InstrumentedTransport struct {
	base      http.RoundTripper
	defaultOp string
}

// NewInstrumentedTransport creates a new instrumented transport.
// Requests whose context carries no operation tag are recorded under defaultOp.
// If base is nil, http.DefaultTransport is used.
func NewInstrumentedTransport(base http.RoundTripper, defaultOp string) *InstrumentedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if defaultOp == "" {
		defaultOp = OpUnknown
	}
	return &InstrumentedTransport{base: base, defaultOp: defaultOp}
}

// RoundTrip implements http.RoundTripper with metrics recording.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	op := OperationFromContext(req.Context())
	if op == "" {
		op = t.defaultOp
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		outcome := "error"
		if req.Context().Err() != nil {
			outcome = "canceled"
		}
		RecordRemoteRequest(req.Context(), op, duration, 0, outcome)
		return nil, err
	}

	outcome := StatusClass(resp.StatusCode)
	switch outcome {
	case "2xx":
		outcome = "success"
	case "4xx":
		if resp.StatusCode == http.StatusNotFound {
			outcome = "not_found"
		}
	}

	resp.Body = &instrumentedBody{
		ReadCloser: resp.Body,
		ctx:        req.Context(),
		op:         op,
		start:      start,
		outcome:    outcome,
	}

	return resp, nil
}

// instrumentedBody wraps a response body to record bytes read on close.
type instrumentedBody struct {
	io.ReadCloser
	ctx      context.Context
	op       string
	start    time.Time
	bytes    int64
	outcome  string
	recorded bool
}

func (b *instrumentedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.bytes += int64(n)
	return n, err
}

func (b *instrumentedBody) Close() error {
	if !b.recorded {
		b.recorded = true
		RecordRemoteRequest(b.ctx, b.op, time.Since(b.start), b.bytes, b.outcome)
	}
	return b.ReadCloser.Close()
}
