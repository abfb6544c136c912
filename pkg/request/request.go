// Package request reads and parses the head of an HTTP/1.x request from a
// connection.
//
// Only the request line carries meaning. Header lines are read up to the
// blank line that ends the head and then discarded; request bodies are
// never read.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxBytes bounds the request head when the caller sets no limit
const DefaultMaxBytes = 8192

// readChunk is the size of a single read from the connection
const readChunk = 1024

var (
	// ErrEmpty means the peer closed or failed before sending anything
	ErrEmpty = errors.New("empty request")
	// ErrTooLarge means no header terminator arrived within the size bound
	ErrTooLarge = errors.New("request head too large")
	// ErrMalformed means the request line could not be parsed
	ErrMalformed = errors.New("malformed request")
)

var (
	headTerminator = []byte("\r\n\r\n")
	lineTerminator = []byte("\r\n")
)

// Request is the parsed request line. It is not modified after Parse returns.
type Request struct {
	Method     string // upper-cased
	RawPath    string // exactly as sent, never percent-decoded
	Version    string
	WellFormed bool
}

// IsGet reports whether the request uses the only supported method
func (r *Request) IsGet() bool {
	return r.Method == "GET"
}

// Reader accumulates request bytes from a connection
type Reader struct {
	maxBytes int
}

// NewReader returns a Reader that gives up after maxBytes without a complete head
func NewReader(maxBytes int) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Reader{maxBytes: maxBytes}
}

// Read consumes the request head from r and parses the request line.
//
// It stops at the first CRLF CRLF. If the peer stops sending first, a request
// whose first line is complete is still parsed; a peer that sent nothing
// yields ErrEmpty. Going past the size bound yields ErrTooLarge.
func (rd *Reader) Read(r io.Reader) (*Request, error) {
	var acc bytes.Buffer
	chunk := make([]byte, readChunk)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			searchFrom := acc.Len() - (len(headTerminator) - 1)
			if searchFrom < 0 {
				searchFrom = 0
			}
			acc.Write(chunk[:n])

			if end := headEnd(acc.Bytes(), searchFrom); end >= 0 {
				if end > rd.maxBytes {
					return nil, ErrTooLarge
				}
				return Parse(acc.Bytes()[:end])
			}
			if acc.Len() >= rd.maxBytes {
				return nil, ErrTooLarge
			}
		}

		if err != nil {
			if acc.Len() == 0 {
				if err == io.EOF {
					return nil, ErrEmpty
				}
				return nil, fmt.Errorf("%w: %v", ErrEmpty, err)
			}
			if bytes.Contains(acc.Bytes(), lineTerminator) {
				return Parse(acc.Bytes())
			}
			return nil, fmt.Errorf("%w: incomplete request line", ErrMalformed)
		}
	}
}

// headEnd returns the offset just past the header terminator, searching from
// offset from, or -1 when the terminator has not arrived yet.
func headEnd(b []byte, from int) int {
	i := bytes.Index(b[from:], headTerminator)
	if i < 0 {
		return -1
	}
	return from + i + len(headTerminator)
}

// Parse extracts the request line from head: METHOD SP PATH SP VERSION.
// The path is the text between the first and second space. Anything but
// exactly three fields is ErrMalformed.
func Parse(head []byte) (*Request, error) {
	line := head
	if i := bytes.Index(head, lineTerminator); i >= 0 {
		line = head[:i]
	}

	text := string(line)
	first := strings.IndexByte(text, ' ')
	if first <= 0 {
		return nil, fmt.Errorf("%w: missing method", ErrMalformed)
	}
	rest := text[first+1:]
	second := strings.IndexByte(rest, ' ')
	if second <= 0 {
		return nil, fmt.Errorf("%w: missing path or version", ErrMalformed)
	}

	version := rest[second+1:]
	if !validVersion(version) {
		return nil, fmt.Errorf("%w: bad version %q", ErrMalformed, version)
	}

	return &Request{
		Method:     strings.ToUpper(text[:first]),
		RawPath:    rest[:second],
		Version:    version,
		WellFormed: true,
	}, nil
}

// validVersion reports whether v is HTTP/<digits>.<digits> and nothing else
func validVersion(v string) bool {
	num, ok := strings.CutPrefix(v, "HTTP/")
	if !ok {
		return false
	}
	major, minor, ok := strings.Cut(num, ".")
	return ok && allDigits(major) && allDigits(minor)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
