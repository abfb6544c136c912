package resolve

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/niels/nweb/pkg/mime"
	"github.com/niels/nweb/pkg/request"
)

// setupDocRoot creates a document root with a few files and a secret next to it
func setupDocRoot(t *testing.T) (docroot, secret string) {
	t.Helper()

	base := t.TempDir()
	docroot = filepath.Join(base, "www")
	if err := os.MkdirAll(filepath.Join(docroot, "css"), 0755); err != nil {
		t.Fatalf("Failed to create docroot: %v", err)
	}

	files := map[string]string{
		"index.html":   "hello world",
		"css/site.css": "body{}",
		"data.xyz":     "binary?",
		"README":       "no extension",
		"404.html":     "<h1>custom not found</h1>",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(docroot, filepath.FromSlash(name)), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	secret = filepath.Join(base, "secret.txt")
	if err := os.WriteFile(secret, []byte("top secret"), 0644); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	return docroot, secret
}

func get(path string) *request.Request {
	return &request.Request{Method: "GET", RawPath: path, Version: "HTTP/1.1", WellFormed: true}
}

func TestResolve(t *testing.T) {
	docroot, _ := setupDocRoot(t)
	r := New(Options{DocRoot: docroot, Mime: mime.NewTable(nil)})

	testCases := []struct {
		name         string
		req          *request.Request
		expectedCode int
		expectedPath string
		expectedMime string
	}{
		{"Root maps to index", get("/"), 200, filepath.Join(docroot, "index.html"), "text/html"},
		{"Explicit index", get("/index.html"), 200, filepath.Join(docroot, "index.html"), "text/html"},
		{"Nested file", get("/css/site.css"), 200, filepath.Join(docroot, "css", "site.css"), "text/css"},
		{"Query string ignored", get("/css/site.css?v=2"), 200, filepath.Join(docroot, "css", "site.css"), "text/css"},
		{"Unknown extension served as octet-stream", get("/data.xyz"), 200, filepath.Join(docroot, "data.xyz"), mime.DefaultType},
		{"No extension", get("/README"), 200, filepath.Join(docroot, "README"), mime.DefaultType},
		{"Parent directory", get("/../secret.txt"), 403, "", mime.DefaultType},
		{"Parent directory in the middle", get("/css/../../secret.txt"), 403, "", mime.DefaultType},
		{"Dots anywhere are rejected", get("/file..txt"), 403, "", mime.DefaultType},
		{"Non-GET method", &request.Request{Method: "POST", RawPath: "/index.html"}, 501, "", mime.DefaultType},
		{"Non-GET with traversal keeps first failure", &request.Request{Method: "DELETE", RawPath: "/../x"}, 501, "", mime.DefaultType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target := r.Resolve(tc.req)
			if target.StatusCode != tc.expectedCode {
				t.Errorf("Expected status %d, got %d", tc.expectedCode, target.StatusCode)
			}
			if target.FilesystemPath != tc.expectedPath {
				t.Errorf("Expected path %s, got %s", tc.expectedPath, target.FilesystemPath)
			}
			if target.MimeType != tc.expectedMime {
				t.Errorf("Expected mime %s, got %s", tc.expectedMime, target.MimeType)
			}
		})
	}
}

func TestStrictMime(t *testing.T) {
	docroot, _ := setupDocRoot(t)
	r := New(Options{DocRoot: docroot, StrictMime: true})

	for _, path := range []string{"/data.xyz", "/README", "/missing.xyz"} {
		target, body := r.Load(r.Resolve(get(path)))
		if target.StatusCode != 415 {
			t.Errorf("%s: expected status 415, got %d", path, target.StatusCode)
		}
		if target.Reason != "Unsupported Media Type" {
			t.Errorf("%s: expected reason 'Unsupported Media Type', got %s", path, target.Reason)
		}
		if bytes.Contains(body, []byte("binary?")) {
			t.Errorf("%s: file contents must not be served", path)
		}
	}

	// Known types are unaffected
	target, body := r.Load(r.Resolve(get("/")))
	if target.StatusCode != 200 || string(body) != "hello world" {
		t.Errorf("Expected 200 hello world, got %d %q", target.StatusCode, body)
	}
}

func TestLoad(t *testing.T) {
	docroot, secret := setupDocRoot(t)
	r := New(Options{DocRoot: docroot})

	target, body := r.Load(r.Resolve(get("/")))
	if target.StatusCode != 200 {
		t.Errorf("Expected 200, got %d", target.StatusCode)
	}
	if string(body) != "hello world" {
		t.Errorf("Expected 'hello world', got %q", body)
	}

	target, body = r.Load(r.Resolve(get("/nope.html")))
	if target.StatusCode != 404 || target.Reason != "Not Found" {
		t.Errorf("Expected 404 Not Found, got %d %s", target.StatusCode, target.Reason)
	}
	if target.MimeType != ErrorPageType {
		t.Errorf("Expected error page type, got %s", target.MimeType)
	}
	if !strings.Contains(string(body), "404") {
		t.Errorf("Expected built-in 404 page, got %q", body)
	}

	// Directories are not listed
	target, _ = r.Load(r.Resolve(get("/css")))
	if target.StatusCode != 404 {
		t.Errorf("Expected 404 for a directory, got %d", target.StatusCode)
	}

	target, body = r.Load(r.Resolve(get("/../secret.txt")))
	if target.StatusCode != 403 {
		t.Errorf("Expected 403, got %d", target.StatusCode)
	}
	secretData, _ := os.ReadFile(secret)
	if bytes.Contains(body, secretData) {
		t.Error("Forbidden response must not contain file contents")
	}
}

func TestNotFoundPage(t *testing.T) {
	docroot, _ := setupDocRoot(t)
	r := New(Options{DocRoot: docroot, NotFoundPage: "404.html"})

	target, body := r.Load(r.Resolve(get("/missing.png")))
	if target.StatusCode != 404 {
		t.Errorf("Expected 404, got %d", target.StatusCode)
	}
	if string(body) != "<h1>custom not found</h1>" {
		t.Errorf("Expected custom not found document, got %q", body)
	}
	if target.MimeType != "text/html" {
		t.Errorf("Expected text/html, got %s", target.MimeType)
	}

	// A missing custom page falls back to the built-in one
	r = New(Options{DocRoot: docroot, NotFoundPage: "gone.html"})
	target, body = r.Load(r.Resolve(get("/missing.png")))
	if target.StatusCode != 404 || !strings.Contains(string(body), "404: Not Found") {
		t.Errorf("Expected built-in 404 page, got %d %q", target.StatusCode, body)
	}
}

func TestRootMatchesIndex(t *testing.T) {
	docroot, _ := setupDocRoot(t)
	r := New(Options{DocRoot: docroot})

	rootTarget, rootBody := r.Load(r.Resolve(get("/")))
	indexTarget, indexBody := r.Load(r.Resolve(get("/index.html")))

	if rootTarget != indexTarget {
		t.Errorf("Expected identical targets, got %+v and %+v", rootTarget, indexTarget)
	}
	if !bytes.Equal(rootBody, indexBody) {
		t.Error("Expected identical payloads for / and /index.html")
	}
}

func TestCustomIndex(t *testing.T) {
	docroot, _ := setupDocRoot(t)
	r := New(Options{DocRoot: docroot, Index: "css/site.css"})

	target := r.Resolve(get("/"))
	if target.FilesystemPath != filepath.Join(docroot, "css", "site.css") {
		t.Errorf("Expected custom index path, got %s", target.FilesystemPath)
	}
	if target.MimeType != "text/css" {
		t.Errorf("Expected text/css, got %s", target.MimeType)
	}
}
