package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultHeuristicTTL is the conservative freshness window applied when a
// response carries no explicit expiration information.
const DefaultHeuristicTTL = 5 * time.Minute

// CacheControl holds the parsed directives of Cache-Control header values.
// Directive names are compared case-insensitively; quoted-string arguments
// are unquoted to token form.
type CacheControl struct {
	directives map[string]string
}

// Get returns the argument of the given directive and whether the directive
// is present at all.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[directive]
	return val, ok
}

// Has reports whether the directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// MaxAge returns the max-age directive as a duration.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.deltaSeconds("max-age")
}

// SMaxAge returns the s-maxage directive as a duration.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.deltaSeconds("s-maxage")
}

func (c CacheControl) deltaSeconds(directive string) (time.Duration, bool) {
	if str, ok := c.Get(directive); ok && str != "" {
		if secs, err := strconv.ParseInt(str, 10, 64); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}

// ParseCacheControl parses all Cache-Control header values into one
// directive map. The last occurrence of a repeated directive wins.
func ParseCacheControl(values []string) CacheControl {
	m := make(map[string]string)
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			name, arg, _ := strings.Cut(strings.TrimSpace(directive), "=")
			m[strings.ToLower(name)] = strings.Trim(arg, "\"")
		}
	}
	return CacheControl{m}
}

// freshnessDeadline computes the moment the response turns stale, evaluated
// at store time. Precedence: s-maxage, max-age, Expires minus Date, then
// the heuristic default. A no-cache directive pins the deadline to now so
// the entry is always revalidated before reuse.
func freshnessDeadline(header http.Header, now time.Time, heuristicTTL time.Duration) time.Time {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if cc.Has("no-cache") {
		return now
	}
	if ttl, ok := cc.SMaxAge(); ok {
		return now.Add(ttl)
	}
	if ttl, ok := cc.MaxAge(); ok {
		return now.Add(ttl)
	}
	if expires, err := http.ParseTime(header.Get("Expires")); err == nil {
		date := now
		if d, err := http.ParseTime(header.Get("Date")); err == nil {
			date = d
		}
		return now.Add(expires.Sub(date))
	}
	if heuristicTTL <= 0 {
		heuristicTTL = DefaultHeuristicTTL
	}
	return now.Add(heuristicTTL)
}

// storable reports whether the response may be written to the cache at all.
func storable(header http.Header) bool {
	return !ParseCacheControl(header.Values("Cache-Control")).Has("no-store")
}
