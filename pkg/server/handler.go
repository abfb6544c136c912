package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/niels/nweb/pkg/access"
	"github.com/niels/nweb/pkg/config"
	"github.com/niels/nweb/pkg/mime"
	"github.com/niels/nweb/pkg/request"
	"github.com/niels/nweb/pkg/resolve"
	"github.com/niels/nweb/pkg/response"
	"github.com/niels/nweb/pkg/retry"
	"github.com/rs/zerolog"
)

// Handler serves exactly one request per connection: parse, resolve, load,
// send. It never closes the connection; the worker does.
type Handler struct {
	reader         *request.Reader
	resolver       *resolve.Resolver
	sender         *response.Sender
	replyMalformed bool
	readTimeout    time.Duration
	writeTimeout   time.Duration
	log            zerolog.Logger
}

// NewHandler builds a Handler from the server configuration. cfg must have
// passed Validate.
func NewHandler(cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		reader: request.NewReader(cfg.Server.MaxRequestBytes),
		resolver: resolve.New(resolve.Options{
			DocRoot:      cfg.Server.DocRoot,
			Index:        cfg.Server.Index,
			NotFoundPage: cfg.Server.NotFoundPage,
			StrictMime:   cfg.Server.StrictMime,
			Mime:         mime.NewTable(cfg.MimeTypes),
		}),
		sender:         response.NewSender(retry.FromConfig(cfg)),
		replyMalformed: cfg.Server.ReplyMalformed,
		readTimeout:    cfg.ReadTimeoutDuration(),
		writeTimeout:   cfg.WriteTimeoutDuration(),
		log:            log,
	}
}

// Handle reads one request from conn and writes the response. It returns an
// error when the connection is to be closed without a (complete) response.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) (access.Record, error) {
	if h.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}

	req, err := h.reader.Read(conn)
	if err != nil {
		if h.replyMalformed && (errors.Is(err, request.ErrMalformed) || errors.Is(err, request.ErrTooLarge)) {
			h.log.Debug().Err(err).Msg("Answering malformed request")
			return h.send(ctx, conn, "", "", &response.Response{
				StatusCode: http.StatusBadRequest,
				Reason:     http.StatusText(http.StatusBadRequest),
				MimeType:   resolve.ErrorPageType,
				Body:       response.ErrorPage(http.StatusBadRequest, http.StatusText(http.StatusBadRequest)),
			})
		}
		return access.Record{}, fmt.Errorf("failed to read request: %w", err)
	}

	h.log.Debug().
		Str("method", req.Method).
		Str("path", req.RawPath).
		Str("version", req.Version).
		Msg("Read request")

	target, body := h.resolver.Load(h.resolver.Resolve(req))
	if !target.OK() {
		h.log.Debug().
			Str("path", req.RawPath).
			Int("status", target.StatusCode).
			Msg("Request not served")
	}

	return h.send(ctx, conn, req.Method, req.RawPath, &response.Response{
		StatusCode: target.StatusCode,
		Reason:     target.Reason,
		MimeType:   target.MimeType,
		Body:       body,
	})
}

func (h *Handler) send(ctx context.Context, conn net.Conn, method, path string, resp *response.Response) (access.Record, error) {
	if h.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}

	n, err := h.sender.Send(ctx, conn, resp)
	rec := access.Record{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		Bytes:  n,
	}
	return rec, err
}
