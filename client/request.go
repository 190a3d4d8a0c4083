package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfeidau/repospanner"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 1024

// Request is a single prepared GET against the repoSpanner server.
// Each Request owns its own *http.Request; the connection pool and TLS
// session cache are shared through the Client.
type Request struct {
	client *Client
	req    *http.Request
}

// PrepareRequest builds a request for relPath below the client's base URL.
// Leading and repeated slashes in relPath are collapsed; dot segments are
// passed through untouched.
func (c *Client) PrepareRequest(ctx context.Context, relPath string) (*Request, error) {
	target := c.baseURL + "/" + collapseSlashes(relPath)

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %w", repospanner.ErrRequestInit, target, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repospanner.ErrRequestInit, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	return &Request{client: c, req: req}, nil
}

func collapseSlashes(p string) string {
	p = strings.TrimLeft(p, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// URL returns the absolute URL of the request.
func (r *Request) URL() string {
	return r.req.URL.String()
}

// Header returns the request headers, for callers that need to add to them
// before Do.
func (r *Request) Header() http.Header {
	return r.req.Header
}

// Do sends the request. On success the caller must close the response body.
// Network and TLS failures wrap ErrTransport. A non-2xx response is returned
// as a *StatusError; a 404 matches ErrNotFound.
func (r *Request) Do() (*http.Response, error) {
	resp, err := r.client.http.Do(r.req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repospanner.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		r.client.logger.Debug("repospanner request failed",
			"url", r.URL(),
			"status", resp.StatusCode,
			"request_id", r.req.Header.Get("X-Request-Id"),
		)

		return nil, &repospanner.StatusError{
			URL:        r.URL(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}
