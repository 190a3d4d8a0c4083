package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/net/http2"

	"github.com/wolfeidau/repospanner"
	"github.com/wolfeidau/repospanner/config"
	"github.com/wolfeidau/repospanner/telemetry"
)

// Client talks to the repoSpanner server of one repository. It owns a
// single transport, so connections, DNS results and TLS sessions are shared
// by every request it issues.
type Client struct {
	identity  string
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

func newClient(identity string, cfg config.Config, r *Registry) (*Client, error) {
	base, err := normalizeBaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := newTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfig,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("%w: configuring http2: %w", repospanner.ErrClientInit, err)
	}

	var rt http.RoundTripper = transport
	if cfg.Debug || debugFromEnv() {
		rt = newDebugTransport(rt, r.logger.With("identity", identity))
	}
	rt = telemetry.NewInstrumentedTransport(rt, telemetry.OpUnknown)
	if r.wrap != nil {
		rt = r.wrap(rt)
	}
	rt = httpsOnly{next: rt}

	return &Client{
		identity:  identity,
		baseURL:   base,
		userAgent: r.userAgent,
		logger:    r.logger,
		http: &http.Client{
			Transport: rt,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// debugFromEnv reports whether config.DebugEnv asks for transport logging.
// It is read once per client, when the client is built.
func debugFromEnv() bool {
	return cast.ToBool(os.Getenv(config.DebugEnv))
}

// normalizeBaseURL checks that raw is an https URL and strips exactly one
// trailing slash.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parsing url: %w", repospanner.ErrClientInit, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("%w: url %q must use https", repospanner.ErrClientInit, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url %q has no host", repospanner.ErrClientInit, raw)
	}

	if n := len(raw); n > 0 && raw[n-1] == '/' {
		raw = raw[:n-1]
	}
	return raw, nil
}

func newTLSConfig(cfg config.Config) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: loading client certificate: %w", repospanner.ErrClientInit, err)
	}

	caPEM, err := os.ReadFile(cfg.CACert)
	if err != nil {
		return nil, fmt.Errorf("%w: reading ca bundle: %w", repospanner.ErrClientInit, err)
	}

	// Only the configured CA is trusted, never the system roots.
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: no certificates found in %s", repospanner.ErrClientInit, cfg.CACert)
	}

	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            pool,
		Certificates:       []tls.Certificate{pair},
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}, nil
}

// Identity returns the repository identity the client was built for.
func (c *Client) Identity() string {
	return c.identity
}

// BaseURL returns the normalized base URL, without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// httpsOnly refuses to send anything but https requests.
type httpsOnly struct {
	next http.RoundTripper
}

func (h httpsOnly) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("refusing %s request to %s", req.URL.Scheme, req.URL.Redacted())
	}
	return h.next.RoundTrip(req)
}
