// Package transport provides the http.RoundTrippers used to reach the
// commerce cart API: a Chrome TLS fingerprint transport and a bearer-token
// decorator bound to the current session.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Storefront APIs behind a CDN may throttle Go's default TLS fingerprint,
// which turns every poll tick into a rate-limited failure. ChromeTransport
// dials with a uTLS Chrome ClientHello and lets ALPN pick the protocol:
//
//   - h2 goes through http2.Transport over the uTLS connection
//   - hosts that answer with http/1.1 are remembered and served by the
//     HTTP/1.1 transport from then on, so polling does not re-probe h2
//
// Enabled with the chrome_tls config flag.
// =============================================================================

// errHTTP1Only reports that the server negotiated something other than h2.
var errHTTP1Only = errors.New("server did not negotiate h2")

// ChromeOptions configures NewChromeTransport.
type ChromeOptions struct {
	DialTimeout time.Duration      // Connect + handshake budget; default 10s
	Hello       utls.ClientHelloID // Zero value means HelloChrome_Auto
	RootCAs     *x509.CertPool     // nil means the system roots
}

// ChromeTransport is an http.RoundTripper presenting Chrome's TLS fingerprint.
type ChromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport

	mu     sync.Mutex
	h1Only map[string]bool // host:port → server lacks h2
}

// NewChromeTransport creates a ChromeTransport. Plain http:// URLs (local
// development) skip TLS and go through the HTTP/1.1 transport.
func NewChromeTransport(opts ChromeOptions) *ChromeTransport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Hello == (utls.ClientHelloID{}) {
		opts.Hello = utls.HelloChrome_Auto
	}

	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	t := &ChromeTransport{h1Only: make(map[string]bool)}

	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := dialChromeTLS(ctx, dialer, network, addr, opts)
			if err != nil {
				return nil, err
			}
			if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
				conn.Close()
				return nil, errHTTP1Only
			}
			return conn, nil
		},
	}

	t.h1 = &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, opts)
		},
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return t
}

// RoundTrip implements http.RoundTripper.
func (t *ChromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "http" || t.prefersHTTP1(req.URL.Host) {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, errHTTP1Only) {
		t.markHTTP1(req.URL.Host)
	}

	// The h2 attempt may have consumed the body
	retry, ok := rewind(req)
	if !ok {
		return nil, err
	}
	return t.h1.RoundTrip(retry)
}

// CloseIdleConnections closes idle connections on both protocols.
func (t *ChromeTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()
}

func (t *ChromeTransport) prefersHTTP1(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h1Only[host]
}

func (t *ChromeTransport) markHTTP1(host string) {
	t.mu.Lock()
	t.h1Only[host] = true
	t.mu.Unlock()
}

// rewind returns a request whose body can be sent again, or false when the
// body cannot be recreated.
func rewind(req *http.Request) (*http.Request, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, true
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, opts ChromeOptions) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	// Default ALPN from the Chrome hello offers h2 and http/1.1
	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host, RootCAs: opts.RootCAs}, opts.Hello)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
