// Package response builds and sends the status line, header block and payload
// of a single HTTP/1.1 response.
package response

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/niels/nweb/pkg/retry"
	"github.com/niels/nweb/pkg/version"
)

// Response is everything needed to answer one request
type Response struct {
	StatusCode int
	Reason     string
	MimeType   string
	Body       []byte
}

// Header returns the status line and headers, ending with the blank line:
//
//	HTTP/1.1 <code> <reason>
//	Server: nweb/<version>
//	Content-Length: <n>
//	Connection: close
//	Content-Type: <mime>
func (r *Response) Header() []byte {
	b := make([]byte, 0, 128)
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(r.StatusCode), 10)
	b = append(b, ' ')
	b = append(b, r.Reason...)
	b = append(b, "\r\nServer: "...)
	b = append(b, version.ServerHeader()...)
	b = append(b, "\r\nContent-Length: "...)
	b = strconv.AppendInt(b, int64(len(r.Body)), 10)
	b = append(b, "\r\nConnection: close\r\nContent-Type: "...)
	b = append(b, r.MimeType...)
	b = append(b, "\r\n\r\n"...)
	return b
}

// Sender writes responses, retrying writes interrupted by a signal or a full
// socket buffer according to its retry options.
type Sender struct {
	retry retry.Options
}

// NewSender creates a Sender. The retry classifier is always IsInterrupted;
// any other write error ends the response.
func NewSender(opts retry.Options) *Sender {
	opts.IsRetryableFunc = retry.IsInterrupted
	opts.RetryableErrors = nil
	return &Sender{retry: opts}
}

// Send writes the header block followed by the body to w as one sequence.
// Short writes are continued from where they stopped. It returns the number of
// bytes written.
func (s *Sender) Send(ctx context.Context, w io.Writer, r *Response) (int64, error) {
	var total int64
	for _, part := range [][]byte{r.Header(), r.Body} {
		remaining := part
		err := retry.Do(ctx, func() error {
			for len(remaining) > 0 {
				n, err := w.Write(remaining)
				remaining = remaining[n:]
				total += int64(n)
				if err != nil {
					return err
				}
				if n == 0 {
					return io.ErrShortWrite
				}
			}
			return nil
		}, s.retry)
		if err != nil {
			return total, fmt.Errorf("failed to write response: %w", err)
		}
	}
	return total, nil
}

// ErrorPage returns the fixed HTML body sent with error statuses
func ErrorPage(code int, reason string) []byte {
	return []byte(fmt.Sprintf("<!doctype html>\r\n"+
		"<html>\r\n"+
		"<head>\r\n"+
		"  <title>%d %s</title>\r\n"+
		"</head>\r\n"+
		"<body>\r\n"+
		"  <h2>%d: %s</h2>\r\n"+
		"  <p>%s</p>\r\n"+
		"</body>\r\n"+
		"</html>\r\n", code, reason, code, reason, version.ServerHeader()))
}
