package httpwire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformedResponse is returned (wrapped) whenever a response cannot be
// parsed off the wire: unparsable status line, headers truncated before the
// blank line, or invalid chunked framing.
var ErrMalformedResponse = errors.New("malformed response")

// Response is a fully read HTTP response.
// Body always matches what the framing declared: exactly Content-Length
// bytes, the concatenation of all chunks, or everything up to stream close.
type Response struct {
	StatusCode   int
	Status       string // reason phrase
	Proto        string
	Header       http.Header
	Body         []byte
	EffectiveURL *url.URL
}

// ReadResponse reads one complete response from br.
// effective is the URL the response was retrieved from and is recorded on
// the returned Response for redirect resolution and cache keying.
// The reader is consumed up to and including the body; nothing is retained.
func ReadResponse(br *bufio.Reader, effective *url.URL) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading status line: %v", ErrMalformedResponse, err)
	}
	proto, code, reason, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	header, err := readHeaders(br)
	if err != nil {
		return nil, err
	}

	body, err := readBody(br, header)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode:   code,
		Status:       reason,
		Proto:        proto,
		Header:       header,
		Body:         body,
		EffectiveURL: effective,
	}, nil
}

// readLine reads a single CRLF-terminated line, returning it without the
// terminator. Bare LF is tolerated.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseStatusLine splits "HTTP/1.1 200 OK" into its parts.
// The reason phrase may be empty ("HTTP/1.1 200").
func parseStatusLine(line string) (proto string, code int, reason string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return "", 0, "", fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}
	code, convErr := strconv.Atoi(parts[1])
	if convErr != nil || code < 100 || code > 999 {
		return "", 0, "", fmt.Errorf("%w: status code %q", ErrMalformedResponse, parts[1])
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return parts[0], code, reason, nil
}

// readHeaders reads header lines until the blank line that ends the header
// section. Names are matched case-insensitively via canonicalization, values
// keep their insertion order, and obsolete line folding (continuation lines
// starting with SP or HTAB) is appended to the previous value.
func readHeaders(br *bufio.Reader) (http.Header, error) {
	header := make(http.Header)
	var lastName string
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("%w: headers truncated: %v", ErrMalformedResponse, err)
		}
		if line == "" {
			return header, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			if lastName == "" {
				return nil, fmt.Errorf("%w: continuation line before any header", ErrMalformedResponse)
			}
			values := header[lastName]
			values[len(values)-1] += " " + strings.TrimSpace(line)
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedResponse, line)
		}
		lastName = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
		header[lastName] = append(header[lastName], strings.TrimSpace(value))
	}
}

// readBody reconstructs the message body according to the framing headers.
// Chunked transfer coding wins over Content-Length; with neither present the
// body is delimited by the peer closing the stream.
func readBody(br *bufio.Reader, header http.Header) ([]byte, error) {
	if isChunked(header) {
		return readChunked(br)
	}
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: content-length %q", ErrMalformedResponse, cl)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("%w: body truncated at %d of %d bytes: %v",
				ErrMalformedResponse, len(body), n, err)
		}
		return body, nil
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("reading connection-close body: %w", err)
	}
	return body, nil
}

func isChunked(header http.Header) bool {
	for _, value := range header.Values("Transfer-Encoding") {
		for _, coding := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(coding), "chunked") {
				return true
			}
		}
	}
	return false
}

// readChunked reconstructs a chunked body: hex size line (chunk extensions
// after ";" ignored), that many data bytes, the trailing CRLF, repeated up
// to the zero-length chunk. Trailer fields after the terminal chunk are
// consumed and discarded.
func readChunked(br *bufio.Reader) ([]byte, error) {
	var body []byte
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk size truncated: %v", ErrMalformedResponse, err)
		}
		sizeStr := line
		if i := strings.Index(sizeStr, ";"); i != -1 {
			sizeStr = sizeStr[:i]
		}
		size, err := strconv.ParseUint(strings.TrimSpace(sizeStr), 16, 63)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk size %q", ErrMalformedResponse, line)
		}
		if size == 0 {
			break
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, fmt.Errorf("%w: chunk truncated: %v", ErrMalformedResponse, err)
		}
		body = append(body, chunk...)
		// discard the CRLF after the chunk data
		if _, err := readLine(br); err != nil {
			return nil, fmt.Errorf("%w: missing chunk terminator: %v", ErrMalformedResponse, err)
		}
	}
	// skip trailers up to the final blank line; EOF here is fine since the
	// message is already complete
	for {
		line, err := readLine(br)
		if err != nil || line == "" {
			return body, nil
		}
	}
}
