// Package httpwire frames exactly one HTTP-style request/response exchange
// per connection: a request line, case-insensitive headers, and a body sized
// by Content-Length. It exists because the transport contract is defined at
// the connection level (malformed input drops the connection with no
// response written), which net/http does not expose.
package httpwire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderAuthToken     = "x-auth-token"
	HeaderAuthorization = "authorization"
)

var (
	ErrMalformedRequestLine = errors.New("httpwire: malformed request line")
	ErrMalformedStatusLine  = errors.New("httpwire: malformed status line")
	ErrMalformedHeader      = errors.New("httpwire: malformed header")
	ErrHeaderTooLarge       = errors.New("httpwire: header too large")
	ErrBodyTooLarge         = errors.New("httpwire: body too large")
	ErrInvalidLength        = errors.New("httpwire: invalid content length")
)

// Limits constrains request/response decode memory use.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: 16 * 1024,
		MaxBodyBytes:   8 * 1024 * 1024,
	}
}

// Request is one parsed inbound request. Header keys are lowercased.
type Request struct {
	Method string
	Path   string
	Proto  string
	Header map[string]string
	Body   []byte
}

// Response is one parsed response on the client side.
type Response struct {
	Status int
	Header map[string]string
	Body   []byte
}

// ReadRequest reads one complete request from r within limits.
func ReadRequest(r *bufio.Reader, limits Limits) (Request, error) {
	line, err := readLine(r, limits.MaxHeaderBytes)
	if err != nil {
		return Request{}, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] == "" || !strings.HasPrefix(parts[1], "/") {
		return Request{}, fmt.Errorf("%w: %q", ErrMalformedRequestLine, truncate(line, 64))
	}
	req := Request{
		Method: parts[0],
		Path:   parts[1],
		Proto:  parts[2],
	}
	req.Header, err = readHeaders(r, limits.MaxHeaderBytes)
	if err != nil {
		return Request{}, err
	}
	req.Body, err = readBody(r, req.Header, limits.MaxBodyBytes)
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// ReadResponse reads one complete response from r within limits.
func ReadResponse(r *bufio.Reader, limits Limits) (Response, error) {
	line, err := readLine(r, limits.MaxHeaderBytes)
	if err != nil {
		return Response{}, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedStatusLine, truncate(line, 64))
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil || status < 100 || status > 599 {
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedStatusLine, truncate(line, 64))
	}
	resp := Response{Status: status}
	resp.Header, err = readHeaders(r, limits.MaxHeaderBytes)
	if err != nil {
		return Response{}, err
	}
	resp.Body, err = readBody(r, resp.Header, limits.MaxBodyBytes)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// WriteRequest writes one request with a JSON body and the given headers.
func WriteRequest(w io.Writer, method, path string, header map[string]string, body []byte) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	for k, v := range header {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// WriteResponse writes one complete JSON response and implies connection close.
func WriteResponse(w io.Writer, status int, body []byte) error {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusText(status))
	b.WriteString("Content-Type: application/json\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readHeaders(r *bufio.Reader, maxBytes int) (map[string]string, error) {
	headers := make(map[string]string)
	total := 0
	for {
		line, err := readLine(r, maxBytes)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		total += len(line)
		if total > maxBytes {
			return nil, ErrHeaderTooLarge
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, truncate(line, 64))
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
}

func readBody(r *bufio.Reader, header map[string]string, maxBytes int) ([]byte, error) {
	raw, ok := header[HeaderContentLength]
	if !ok || raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLength, raw)
	}
	if n > maxBytes {
		return nil, ErrBodyTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// readLine reads a CRLF- or LF-terminated line without the terminator. The
// accumulated line is bounded while reading, so a peer streaming bytes with
// no terminator cannot grow memory past maxBytes plus one buffer fill.
func readLine(r *bufio.Reader, maxBytes int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > maxBytes {
			return "", ErrHeaderTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Status"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
