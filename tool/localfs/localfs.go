// Package localfs provides the tool.FileSystem bridge over a local workspace
// directory. Every path is resolved inside the root; escapes through ".." or
// symlinks fail.
package localfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FS is a filesystem bridge confined to one directory.
type FS struct {
	root *os.Root
	dir  string
}

// Open opens dir as a workspace root.
func Open(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %q: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace %q: %w", abs, err)
	}
	return &FS{root: root, dir: abs}, nil
}

// Dir returns the absolute workspace directory.
func (f *FS) Dir() string { return f.dir }

// Close releases the root handle.
func (f *FS) Close() error { return f.root.Close() }

// ReadFile reads the named file.
func (f *FS) ReadFile(name string) ([]byte, error) {
	file, err := f.root.Open(clean(name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// WriteFile creates or truncates the named file, creating missing parent
// directories.
func (f *FS) WriteFile(name string, data []byte) error {
	name = clean(name)
	if err := f.mkdirAll(path.Dir(name)); err != nil {
		return err
	}

	file, err := f.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// ReadDir lists the named directory sorted by name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	dir, err := f.root.Open(clean(name))
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (f *FS) mkdirAll(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	cur := ""
	for _, seg := range strings.Split(dir, "/") {
		cur = path.Join(cur, seg)
		if err := f.root.Mkdir(cur, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

// clean turns a tool-supplied path into a root-relative slash path.
func clean(name string) string {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return path.Clean(name)
}
