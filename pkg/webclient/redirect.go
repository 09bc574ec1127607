package webclient

import (
	"net/http"
	"net/url"

	"github.com/go2web/go2web/pkg/httpwire"
)

// DefaultMaxHops is the redirect hop limit.
const DefaultMaxHops = 10

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, // 301
		http.StatusFound,             // 302
		http.StatusSeeOther,          // 303
		http.StatusTemporaryRedirect, // 307
		http.StatusPermanentRedirect: // 308
		return true
	}
	return false
}

// resolveRedirect decides whether the response redirects the transaction.
//
// A nil next request means the response is terminal. On follow, the
// returned chain is a fresh copy extended with the target URL; the input
// chain is never mutated, so hops cannot alias each other's state.
//
// 303 forces the method to GET with no body; 302 is treated the same way,
// pinning the ambiguous downgrade question for this GET-only client.
func resolveRedirect(req *httpwire.Request, res *httpwire.Response, chain []string, maxHops int) (*httpwire.Request, []string, error) {
	if !isRedirect(res.StatusCode) {
		return nil, chain, nil
	}
	location := res.Header.Get("Location")
	if location == "" {
		return nil, chain, nil
	}
	ref, err := url.Parse(location)
	if err != nil {
		// unusable Location: stop with the response as-is
		return nil, chain, nil
	}
	target := res.EffectiveURL.ResolveReference(ref)

	for _, visited := range chain {
		if visited == target.String() {
			return nil, chain, &FetchError{
				Kind: KindRedirectLoop,
				URL:  target.String(),
				Hops: len(chain),
			}
		}
	}
	if len(chain) >= maxHops {
		return nil, chain, &FetchError{
			Kind: KindTooManyRedirects,
			URL:  target.String(),
			Hops: len(chain),
		}
	}

	method := req.Method
	var body []byte
	switch res.StatusCode {
	case http.StatusFound, http.StatusSeeOther:
		method = http.MethodGet
	default:
		body = req.Body
	}

	next := httpwire.NewRequest(method, target)
	next.Body = body

	newChain := make([]string, len(chain), len(chain)+1)
	copy(newChain, chain)
	newChain = append(newChain, target.String())
	return next, newChain, nil
}
