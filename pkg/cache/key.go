package cache

import (
	"net/url"
	"strings"
)

const (
	methodSeparator = ":"
	acceptSeparator = "\t"
)

// Fingerprint derives the cache key for a request: method, normalized
// effective URL and the negotiated Accept value. Responses negotiated to
// different representations are cached independently.
func Fingerprint(method string, u *url.URL, accept string) string {
	normalized := *u
	normalized.Fragment = ""
	normalized.Host = strings.ToLower(normalized.Host)
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	if normalized.Path == "" {
		normalized.Path = "/"
	}
	return method + methodSeparator + normalized.String() + acceptSeparator + accept
}
