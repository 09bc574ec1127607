// Package httpwire implements HTTP/1.1 message framing directly on top of a
// byte stream: serializing requests to wire bytes and parsing responses off
// a reader, including chunked and connection-close delimited bodies.
package httpwire

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"sort"
)

// Request is a single outgoing HTTP/1.1 request.
// A new Request is built for every hop; instances are not mutated after the
// orchestrator hands them to the codec.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest returns a request for the given method and URL with an empty
// header map.
func NewRequest(method string, u *url.URL) *Request {
	return &Request{
		Method: method,
		URL:    u,
		Header: make(http.Header),
	}
}

// hostHeader returns the authority for the Host header.
// The port is dropped when it is the default for the scheme.
func hostHeader(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" ||
		(u.Scheme == "http" && port == "80") ||
		(u.Scheme == "https" && port == "443") {
		return host
	}
	return host + ":" + port
}

// EncodeRequest serializes the request into its HTTP/1.1 wire form.
// The codec always emits `Connection: close`, so a stream carries exactly
// one transaction and the peer delimits any length-less response body by
// closing the connection.
func EncodeRequest(req *Request) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Method, req.URL.RequestURI())
	fmt.Fprintf(&b, "Host: %s\r\n", hostHeader(req.URL))
	b.WriteString("Connection: close\r\n")
	if len(req.Body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(req.Body))
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		// these are owned by the codec
		if name == "Host" || name == "Connection" || name == "Content-Length" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range req.Header[name] {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}

	b.WriteString("\r\n")
	b.Write(req.Body)
	return b.Bytes()
}
