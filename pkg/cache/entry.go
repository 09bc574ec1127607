// Package cache is a durable, validated HTTP response cache. Entries are
// keyed by a fingerprint of (method, effective URL, negotiated Accept
// value), carry the origin's validators, and expire per the response's
// freshness information. Stale entries are never served directly; they are
// handed back with their validators so the caller can revalidate.
package cache

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go2web/go2web/pkg/httpwire"
)

// Entry is one stored response plus the metadata needed to decide reuse:
// validators for conditional requests and the freshness deadline.
type Entry struct {
	StatusCode int         `json:"status_code"`
	Status     string      `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`

	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`

	// Expires is the freshness deadline; past it the entry must be
	// revalidated before reuse.
	Expires  time.Time `json:"expires"`
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry builds a cache entry from a decoded response. The second return
// is false when the response forbids storage (Cache-Control: no-store).
func NewEntry(res *httpwire.Response, now time.Time, heuristicTTL time.Duration) (Entry, bool) {
	if !storable(res.Header) {
		return Entry{}, false
	}
	return Entry{
		StatusCode:   res.StatusCode,
		Status:       res.Status,
		Header:       res.Header.Clone(),
		Body:         append([]byte(nil), res.Body...),
		ETag:         res.Header.Get("ETag"),
		LastModified: res.Header.Get("Last-Modified"),
		Expires:      freshnessDeadline(res.Header, now, heuristicTTL),
		StoredAt:     now,
	}, true
}

// IsFresh reports whether the entry may be served without revalidation.
func (e *Entry) IsFresh(now time.Time) bool {
	return now.Before(e.Expires)
}

// HasValidators reports whether a conditional request can be issued for
// this entry.
func (e *Entry) HasValidators() bool {
	return e.ETag != "" || e.LastModified != ""
}

// Response reconstructs the stored response with the given effective URL.
func (e *Entry) Response(effective *url.URL) *httpwire.Response {
	return &httpwire.Response{
		StatusCode:   e.StatusCode,
		Status:       e.Status,
		Proto:        "HTTP/1.1",
		Header:       e.Header.Clone(),
		Body:         append([]byte(nil), e.Body...),
		EffectiveURL: effective,
	}
}

// refresh applies a 304 Not Modified to the entry: the stored body is kept,
// header fields provided by the validation response replace the stored ones
// (framing headers excluded), validators are re-captured, and the freshness
// deadline is recomputed.
func (e *Entry) refresh(header http.Header, now time.Time, heuristicTTL time.Duration) {
	for name, values := range header {
		if name == "Content-Length" || name == "Transfer-Encoding" {
			continue
		}
		e.Header[name] = values
	}
	if etag := header.Get("ETag"); etag != "" {
		e.ETag = etag
	}
	if lm := header.Get("Last-Modified"); lm != "" {
		e.LastModified = lm
	}
	e.Expires = freshnessDeadline(e.Header, now, heuristicTTL)
	e.StoredAt = now
}

func (e Entry) marshal() ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEntry(b []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(b, &e)
	return e, err
}
