// Package webclient is the transaction orchestrator: it composes the cache,
// the transport and the wire codec into a single Fetch call that follows
// redirects, negotiates the content representation and serves or
// revalidates cached responses.
package webclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go2web/go2web/pkg/cache"
	"github.com/go2web/go2web/pkg/httpwire"
	"github.com/go2web/go2web/pkg/transport"
)

// Default deadlines per hop.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// Options select per-transaction behavior.
type Options struct {
	// ContentType is the requested representation: "html", "json" or
	// empty for the permissive default.
	ContentType string
	// UseCache enables cache lookup and storage for this transaction.
	// When false the cache is neither consulted nor written, but
	// existing entries are left untouched.
	UseCache bool
}

// Client performs HTTP transactions over raw streams.
// The zero value is not usable; construct with New.
type Client struct {
	// Cache may be nil, which disables caching regardless of Options.
	Cache cache.Provider

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxHops        int
	UserAgent      string
	TLSConfig      *tls.Config

	// HeuristicTTL is the freshness window applied when storing a
	// response that carries no explicit expiration information.
	// Zero means cache.DefaultHeuristicTTL.
	HeuristicTTL time.Duration
}

// New returns a client with default deadlines and hop limit, backed by the
// given cache provider (which may be nil).
func New(provider cache.Provider) *Client {
	return &Client{
		Cache:          provider,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxHops:        DefaultMaxHops,
	}
}

// Fetch runs one full transaction: it fetches rawurl, following redirects
// up to the hop limit, and returns the terminal response with its effective
// URL. With caching enabled, a fresh cached entry short-circuits the
// network entirely, and a stale one is revalidated with a conditional
// request; a 304 answer reuses the stored body without re-transfer.
func (c *Client) Fetch(ctx context.Context, rawurl string, opts Options) (*httpwire.Response, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, &FetchError{Kind: KindConnectionFailure, URL: rawurl, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &FetchError{
			Kind: KindUnsupportedScheme,
			URL:  rawurl,
			Err:  transport.ErrUnsupportedScheme,
		}
	}

	accept := AcceptHeader(opts.ContentType)
	req := c.newRequest(u, accept)
	chain := []string{u.String()}

	for {
		if err := ctx.Err(); err != nil {
			return nil, c.classify(err, req.URL, len(chain))
		}
		hop := len(chain)
		useCache := opts.UseCache && c.Cache != nil
		key := cache.Fingerprint(req.Method, req.URL, accept)

		var stale *cache.Entry
		if useCache {
			entry, state, err := c.Cache.Lookup(key)
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("Cache lookup failed")
			}
			switch state {
			case cache.Fresh:
				log.Trace().Str("url", req.URL.String()).Str("key", key).Msg("Cache hit")
				return entry.Response(req.URL), nil
			case cache.Stale:
				log.Trace().Str("url", req.URL.String()).Str("key", key).Msg("Stale entry, revalidating")
				attachValidators(req, &entry)
				stale = &entry
			}
		}

		res, err := c.roundTrip(ctx, req)
		if err != nil {
			return nil, c.classify(err, req.URL, hop)
		}
		log.Trace().
			Str("url", req.URL.String()).
			Int("status", res.StatusCode).
			Int("hop", hop).
			Msg("Response received")

		if res.StatusCode == http.StatusNotModified && stale != nil {
			if err := c.Cache.Refresh(key, res.Header, time.Now()); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Could not refresh cache entry")
			}
			return stale.Response(req.URL), nil
		}

		next, newChain, err := resolveRedirect(req, res, chain, c.maxHops())
		if err != nil {
			return nil, err
		}
		if next == nil {
			if useCache && !isRedirect(res.StatusCode) && res.StatusCode != http.StatusNotModified {
				if entry, ok := cache.NewEntry(res, time.Now(), c.HeuristicTTL); ok {
					if err := c.Cache.Put(key, entry); err != nil {
						log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
					} else {
						log.Trace().Str("key", key).Time("expiry", entry.Expires).Msg("Cache write")
					}
				}
			}
			return res, nil
		}

		log.Trace().
			Str("from", req.URL.String()).
			Str("to", next.URL.String()).
			Int("status", res.StatusCode).
			Msg("Following redirect")
		c.decorate(next, accept)
		req = next
		chain = newChain
	}
}

// newRequest builds the initial GET request for a transaction.
func (c *Client) newRequest(u *url.URL, accept string) *httpwire.Request {
	req := httpwire.NewRequest(http.MethodGet, u)
	c.decorate(req, accept)
	return req
}

// decorate applies the negotiation and identity headers carried across all
// hops of a transaction.
func (c *Client) decorate(req *httpwire.Request, accept string) {
	req.Header.Set("Accept", accept)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
}

// roundTrip performs one hop: open the stream, send the encoded request,
// read the full response. The stream is closed on every exit path; with
// `Connection: close` framing there is nothing to reuse.
func (c *Client) roundTrip(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	conn, err := transport.Dial(ctx, req.URL, transport.Options{
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		TLSConfig:      c.TLSConfig,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// caller cancellation must abort a blocking read, not wait out the
	// read deadline
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-watchDone:
		}
	}()

	if _, err := conn.Write(httpwire.EncodeRequest(req)); err != nil {
		return nil, err
	}
	res, err := httpwire.ReadResponse(bufio.NewReader(conn), req.URL)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return res, err
}

func (c *Client) maxHops() int {
	if c.MaxHops > 0 {
		return c.MaxHops
	}
	return DefaultMaxHops
}

// attachValidators adds the conditional request headers for a stale entry,
// preferring the ETag.
func attachValidators(req *httpwire.Request, entry *cache.Entry) {
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		req.Header.Set("If-Modified-Since", entry.LastModified)
	}
}

// classify maps a low-level failure to the transaction error taxonomy.
func (c *Client) classify(err error, u *url.URL, hops int) *FetchError {
	kind := KindConnectionFailure
	var netErr net.Error
	switch {
	case errors.Is(err, transport.ErrUnsupportedScheme):
		kind = KindUnsupportedScheme
	case errors.Is(err, httpwire.ErrMalformedResponse):
		kind = KindMalformedResponse
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: u.String(), Hops: hops, Err: err}
}
