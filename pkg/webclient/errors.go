package webclient

import (
	"errors"
	"fmt"
)

// Kind classifies a failed transaction.
type Kind int

const (
	// KindConnectionFailure covers DNS, TCP connect and TLS handshake
	// failures. Fatal for the hop, never retried automatically.
	KindConnectionFailure Kind = iota
	// KindMalformedResponse means the peer's response could not be
	// parsed off the wire.
	KindMalformedResponse
	// KindRedirectLoop means a redirect target was already visited in
	// this transaction.
	KindRedirectLoop
	// KindTooManyRedirects means the hop limit was reached.
	KindTooManyRedirects
	// KindUnsupportedScheme means the URL scheme was rejected before any
	// connection attempt.
	KindUnsupportedScheme
	// KindTimeout means a connect or read deadline expired.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnectionFailure:
		return "connection failure"
	case KindMalformedResponse:
		return "malformed response"
	case KindRedirectLoop:
		return "redirect loop"
	case KindTooManyRedirects:
		return "too many redirects"
	case KindUnsupportedScheme:
		return "unsupported scheme"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FetchError is the error returned by Client.Fetch. It carries enough
// context to report a clear message: the last attempted URL, the hop count
// and the underlying cause.
type FetchError struct {
	Kind Kind
	URL  string
	Hops int
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s fetching %s (hop %d): %v", e.Kind, e.URL, e.Hops, e.Err)
	}
	return fmt.Sprintf("%s fetching %s (hop %d)", e.Kind, e.URL, e.Hops)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
