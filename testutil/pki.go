// Package testutil provides a throwaway PKI and mutual-TLS test servers.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/repospanner/config"
)

// PKI is a CA plus a server and client certificate signed by it, written
// as PEM files under a temporary directory.
type PKI struct {
	Dir string

	CACert     string
	ClientCert string
	ClientKey  string

	pool   *x509.CertPool
	server tls.Certificate
}

type keyPair struct {
	cert *x509.Certificate
	der  []byte
	key  *ecdsa.PrivateKey
}

var serial atomic.Int64

// NewPKI generates a fresh PKI for the test.
func NewPKI(t testing.TB) *PKI {
	t.Helper()

	dir := t.TempDir()

	ca := issue(t, nil, &x509.Certificate{
		Subject:               pkix.Name{CommonName: "repospanner test ca"},
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	})

	srv := issue(t, ca, &x509.Certificate{
		Subject:     pkix.Name{CommonName: "localhost"},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})

	cli := issue(t, ca, &x509.Certificate{
		Subject:     pkix.Name{CommonName: "repospanner test client"},
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})

	p := &PKI{
		Dir:        dir,
		CACert:     filepath.Join(dir, "ca.pem"),
		ClientCert: filepath.Join(dir, "client.pem"),
		ClientKey:  filepath.Join(dir, "client.key"),
		pool:       x509.NewCertPool(),
	}
	p.pool.AddCert(ca.cert)

	writePEM(t, p.CACert, "CERTIFICATE", ca.der)
	writePEM(t, p.ClientCert, "CERTIFICATE", cli.der)
	writePEM(t, p.ClientKey, "EC PRIVATE KEY", marshalKey(t, cli.key))

	p.server = tls.Certificate{
		Certificate: [][]byte{srv.der},
		PrivateKey:  srv.key,
		Leaf:        srv.cert,
	}

	return p
}

// Config returns an enabled repository configuration pointing at url and
// using the generated client credentials.
func (p *PKI) Config(url string) config.Config {
	return config.Config{
		Enabled: true,
		URL:     url,
		Cert:    p.ClientCert,
		Key:     p.ClientKey,
		CACert:  p.CACert,
	}
}

// NewServer starts an HTTPS server that requires a client certificate
// issued by the PKI's CA. The server is closed when the test ends.
func (p *PKI) NewServer(t testing.TB, h http.Handler) *httptest.Server {
	t.Helper()

	srv := httptest.NewUnstartedServer(h)
	srv.TLS = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{p.server},
		ClientCAs:    p.pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	return srv
}

func issue(t testing.TB, parent *keyPair, tmpl *x509.Certificate) *keyPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl.SerialNumber = big.NewInt(serial.Add(1))
	tmpl.NotBefore = time.Now().Add(-time.Hour)
	tmpl.NotAfter = time.Now().Add(24 * time.Hour)

	signer, signerKey := tmpl, key
	if parent != nil {
		signer, signerKey = parent.cert, parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &keyPair{cert: cert, der: der, key: key}
}

func marshalKey(t testing.TB, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return der
}

func writePEM(t testing.TB, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0600))
}
