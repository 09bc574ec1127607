// Package transport opens the byte stream a transaction hop runs over:
// plain TCP for http, TLS over TCP for https. Each stream carries exactly
// one request/response exchange and is closed by the caller afterwards.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// ErrUnsupportedScheme is returned for any URL scheme other than http or
// https, before any connection attempt is made.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// Options bound the blocking phases of a hop. Zero values mean no deadline.
type Options struct {
	// ConnectTimeout bounds DNS resolution, TCP connect and, for https,
	// the TLS handshake.
	ConnectTimeout time.Duration
	// ReadTimeout is armed as a deadline on the returned conn, bounding
	// the full send/receive of the hop.
	ReadTimeout time.Duration
	// TLSConfig overrides the TLS client configuration for https streams.
	TLSConfig *tls.Config
}

// Address returns the host:port dial target for u, filling in the default
// port for the scheme. It rejects unsupported schemes.
func Address(u *url.URL) (string, error) {
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in URL %q", u)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
		}
	}
	return net.JoinHostPort(host, port), nil
}

// Dial opens a stream to the authority of u. For https the returned conn
// has completed the TLS handshake. The conn carries a read/write deadline
// per opts; expiry surfaces as a net.Error with Timeout() == true.
func Dial(ctx context.Context, u *url.URL, opts Options) (net.Conn, error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	addr, err := Address(u)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if u.Scheme == "https" {
		cfg := opts.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = u.Hostname()
		}
		tlsConn := tls.Client(conn, cfg)
		if opts.ConnectTimeout > 0 {
			tlsConn.SetDeadline(time.Now().Add(opts.ConnectTimeout))
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", addr, err)
		}
		tlsConn.SetDeadline(time.Time{})
		conn = tlsConn
	}

	deadline := time.Time{}
	if opts.ReadTimeout > 0 {
		deadline = time.Now().Add(opts.ReadTimeout)
	}
	// the context deadline wins if it is sooner
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	if !deadline.IsZero() {
		conn.SetDeadline(deadline)
	}

	return conn, nil
}
