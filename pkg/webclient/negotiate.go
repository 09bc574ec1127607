package webclient

import (
	"mime"

	"github.com/go2web/go2web/pkg/httpwire"
)

// Representation is the negotiated shape of a response body, decided once
// from the Content-Type header.
type Representation int

const (
	Unknown Representation = iota
	HTML
	JSON
	PlainText
)

func (r Representation) String() string {
	switch r {
	case HTML:
		return "html"
	case JSON:
		return "json"
	case PlainText:
		return "text"
	default:
		return "unknown"
	}
}

// Requested content types understood by AcceptHeader.
const (
	ContentTypeHTML = "html"
	ContentTypeJSON = "json"
)

// AcceptHeader maps a requested content type to the Accept header value put
// on the wire. Unrecognized or empty input yields a permissive wildcard
// favoring HTML.
func AcceptHeader(contentType string) string {
	switch contentType {
	case ContentTypeHTML:
		return "text/html,application/xhtml+xml"
	case ContentTypeJSON:
		return "application/json"
	default:
		return "text/html,application/xhtml+xml,*/*;q=0.8"
	}
}

// SelectRepresentation classifies the response by its Content-Type header,
// ignoring parameters after ";". Anything unrecognized maps to Unknown and
// is passed through as raw text by the caller.
func SelectRepresentation(res *httpwire.Response) Representation {
	mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if err != nil {
		return Unknown
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return HTML
	case "application/json":
		return JSON
	case "text/plain":
		return PlainText
	default:
		return Unknown
	}
}
