// Package mime maps file extensions to content types.
//
// A Table is built once at startup and only read afterwards, so lookups need
// no locking.
package mime

import (
	"sort"
	"strings"
)

// DefaultType is served for extensions the table does not know
const DefaultType = "application/octet-stream"

// Entry is a single extension to content type mapping
type Entry struct {
	Extension string // lowercase, without the leading dot
	Type      string
}

// builtin holds the entries every table starts with
var builtin = []Entry{
	{"gif", "image/gif"},
	{"jpg", "image/jpeg"},
	{"jpeg", "image/jpeg"},
	{"png", "image/png"},
	{"svg", "image/svg+xml"},
	{"webp", "image/webp"},
	{"ico", "image/x-icon"},
	{"css", "text/css"},
	{"js", "text/javascript"},
	{"json", "application/json"},
	{"zip", "application/zip"},
	{"gz", "application/gzip"},
	{"tar", "application/x-tar"},
	{"pdf", "application/pdf"},
	{"htm", "text/html"},
	{"html", "text/html"},
	{"txt", "text/plain"},
}

// Table is an ordered, read-only extension lookup
type Table struct {
	entries []Entry
	index   map[string]int
}

// NewTable returns a table with the built-in entries followed by extra. Keys of
// extra may carry a leading dot and any case; an extra entry for a known
// extension replaces it in place.
func NewTable(extra map[string]string) *Table {
	t := &Table{index: make(map[string]int, len(builtin)+len(extra))}
	for _, e := range builtin {
		t.add(e.Extension, e.Type)
	}

	// Map iteration order is random; sort so the table order is stable
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.add(k, extra[k])
	}
	return t
}

func (t *Table) add(ext, mimeType string) {
	ext = normalize(ext)
	if ext == "" || mimeType == "" {
		return
	}
	if i, ok := t.index[ext]; ok {
		t.entries[i].Type = mimeType
		return
	}
	t.index[ext] = len(t.entries)
	t.entries = append(t.entries, Entry{Extension: ext, Type: mimeType})
}

// Lookup returns the content type for ext and whether it is known
func (t *Table) Lookup(ext string) (string, bool) {
	if i, ok := t.index[normalize(ext)]; ok {
		return t.entries[i].Type, true
	}
	return DefaultType, false
}

// ForFile returns the content type for the text after the last '.' in name.
// Names without an extension resolve to DefaultType.
func (t *Table) ForFile(name string) (string, bool) {
	return t.Lookup(Extension(name))
}

// Entries returns a copy of the table in lookup order
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Extension returns the text after the last '.' in the final path element of
// name, or "" when there is none.
func Extension(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
