package buildout

import (
	"os"
	"path/filepath"
)

// RootSet is an insertion-ordered set of existing directories. The order matters: roots that
// were added first take precedence when the application resolves its configuration.
type RootSet struct {
	paths []string
	seen  map[string]bool
}

// Add records path if it is non-empty, exists, and has not been recorded already. It returns
// true if the path was added.
func (r *RootSet) Add(path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)
	if r.seen[abs] {
		return false
	}
	if _, err := os.Stat(abs); err != nil {
		return false
	}
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	r.seen[abs] = true
	r.paths = append(r.paths, abs)
	return true
}

func (r *RootSet) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return r.seen[filepath.Clean(abs)]
}

// Paths returns a copy of the recorded directories in insertion order.
func (r *RootSet) Paths() []string {
	return append([]string(nil), r.paths...)
}

func (r *RootSet) Len() int { return len(r.paths) }
