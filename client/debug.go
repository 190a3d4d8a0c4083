package client

import (
	"log/slog"
	"net/http"
	"time"
)

// debugTransport logs every request and response at debug level.
type debugTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func newDebugTransport(next http.RoundTripper, logger *slog.Logger) *debugTransport {
	return &debugTransport{next: next, logger: logger}
}

func (d *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	d.logger.DebugContext(ctx, "repospanner request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"request_id", req.Header.Get("X-Request-Id"),
		"user_agent", req.UserAgent(),
	)

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		d.logger.DebugContext(ctx, "repospanner request error",
			"url", req.URL.Redacted(),
			"duration", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	attrs := []any{
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"proto", resp.Proto,
		"content_length", resp.ContentLength,
		"duration", time.Since(start),
	}
	if resp.TLS != nil {
		attrs = append(attrs, "tls_resumed", resp.TLS.DidResume)
	}
	d.logger.DebugContext(ctx, "repospanner response", attrs...)

	return resp, nil
}
