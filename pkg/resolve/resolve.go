// Package resolve turns a parsed request into the file to serve, its content
// type and the response status.
package resolve

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/niels/nweb/pkg/mime"
	"github.com/niels/nweb/pkg/request"
	"github.com/niels/nweb/pkg/response"
)

// ErrorPageType is the content type of the built-in error bodies
const ErrorPageType = "text/html"

// Target is the outcome of resolving one request. A resolver only ever moves
// StatusCode away from 200, never back.
type Target struct {
	FilesystemPath string
	StatusCode     int
	Reason         string
	MimeType       string
}

// OK reports whether no resolution step has failed
func (t Target) OK() bool {
	return t.StatusCode == http.StatusOK
}

// downgrade returns t with the given error status unless t already failed
func (t Target) downgrade(code int) Target {
	if !t.OK() {
		return t
	}
	t.StatusCode = code
	t.Reason = http.StatusText(code)
	return t
}

// Options configures a Resolver
type Options struct {
	DocRoot      string // absolute, existing directory
	Index        string // served for "/"
	NotFoundPage string // relative to DocRoot, empty for the built-in page
	StrictMime   bool   // answer 415 for unknown extensions instead of octet-stream
	Mime         *mime.Table
}

// Resolver maps requests onto files below a document root. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	opts Options
}

// New creates a Resolver. A nil Mime table gets the built-in entries.
func New(opts Options) *Resolver {
	if opts.Mime == nil {
		opts.Mime = mime.NewTable(nil)
	}
	if opts.Index == "" {
		opts.Index = "index.html"
	}
	return &Resolver{opts: opts}
}

// Resolve decides status, file and content type for req without reading the
// file. Checks run in order and the first failure sticks:
// method, parent directory references, content type.
func (r *Resolver) Resolve(req *request.Request) Target {
	t := Target{
		StatusCode: http.StatusOK,
		Reason:     http.StatusText(http.StatusOK),
		MimeType:   mime.DefaultType,
	}

	if !req.IsGet() {
		t = t.downgrade(http.StatusNotImplemented)
	}
	// Checked on the raw path, before anything touches the filesystem
	if strings.Contains(req.RawPath, "..") {
		t = t.downgrade(http.StatusForbidden)
	}
	if !t.OK() {
		return t
	}

	name := stripQuery(req.RawPath)
	if name == "/" {
		name = r.opts.Index
	} else {
		name = strings.TrimPrefix(name, "/")
	}
	t.FilesystemPath = filepath.Join(r.opts.DocRoot, filepath.FromSlash(name))

	mimeType, known := r.opts.Mime.ForFile(name)
	t.MimeType = mimeType
	if !known && r.opts.StrictMime {
		t = t.downgrade(http.StatusUnsupportedMediaType)
	}

	return t
}

// Load reads the payload for t. A file that cannot be read downgrades t to
// 404. Failed targets get the configured not-found document or a built-in
// error page as payload.
func (r *Resolver) Load(t Target) (Target, []byte) {
	if t.OK() {
		data, err := readRegular(t.FilesystemPath)
		if err == nil {
			return t, data
		}
		t = t.downgrade(http.StatusNotFound)
	}

	if t.StatusCode == http.StatusNotFound && r.opts.NotFoundPage != "" {
		page := filepath.Join(r.opts.DocRoot, filepath.FromSlash(r.opts.NotFoundPage))
		if data, err := readRegular(page); err == nil {
			t.MimeType, _ = r.opts.Mime.ForFile(page)
			return t, data
		}
	}

	t.MimeType = ErrorPageType
	return t, response.ErrorPage(t.StatusCode, t.Reason)
}

// readRegular reads a regular file fully into memory
func readRegular(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, errNotRegular)
	}

	return io.ReadAll(f)
}

var errNotRegular = errors.New("not a regular file")

// stripQuery drops any query string or fragment from a raw request path
func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
