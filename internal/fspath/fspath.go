// Package fspath teaches the Go type system the difference between an
// absolute path and a path relative to some anchor (a store root, an
// environment directory), so that accidental string concatenation bugs
// become compile errors instead of runtime surprises.
package fspath

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// dirPermissions are the default permission bits applied to directories
// created under a cache or environment root.
const dirPermissions = os.ModeDir | 0775

// AbsolutePath is a path known to be rooted (absolute, including volume on
// Windows). Values are constructed via New or Join, never by casting an
// arbitrary string, so that a typo'd relative path can't silently masquerade
// as absolute.
type AbsolutePath string

// New validates that s is absolute and returns it as an AbsolutePath.
func New(s string) (AbsolutePath, error) {
	if !filepath.IsAbs(s) {
		return "", &NotAbsoluteError{Path: s}
	}
	return AbsolutePath(s), nil
}

// NotAbsoluteError is returned by New when given a relative path.
type NotAbsoluteError struct{ Path string }

func (e *NotAbsoluteError) Error() string {
	return e.Path + " is not an absolute path"
}

// UnsafeFrom casts s to an AbsolutePath without validation. Use only when s
// is already known-good (e.g. the output of filepath.Abs or os.Getwd).
func UnsafeFrom(s string) AbsolutePath { return AbsolutePath(s) }

func (p AbsolutePath) String() string { return string(p) }

// Join appends path segments using the platform separator.
func (p AbsolutePath) Join(segments ...string) AbsolutePath {
	return AbsolutePath(filepath.Join(append([]string{string(p)}, segments...)...))
}

// Dir returns the parent directory.
func (p AbsolutePath) Dir() AbsolutePath { return AbsolutePath(filepath.Dir(string(p))) }

// Base returns the final path element.
func (p AbsolutePath) Base() string { return filepath.Base(string(p)) }

// Ext returns the file extension, including the leading dot.
func (p AbsolutePath) Ext() string { return filepath.Ext(string(p)) }

// RelativeTo returns p expressed relative to base.
func (p AbsolutePath) RelativeTo(base AbsolutePath) (string, error) {
	return filepath.Rel(string(base), string(p))
}

// Contains reports whether p is a parent directory of other.
func (p AbsolutePath) Contains(other AbsolutePath) (bool, error) {
	rel, err := filepath.Rel(string(p), string(other))
	if err != nil {
		return false, err
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..", nil
}

// FileExists reports whether p exists and is not a directory; p itself is
// not followed, so a symlink counts whatever it points to.
func (p AbsolutePath) FileExists() bool {
	info, err := os.Lstat(string(p))
	return err == nil && !info.IsDir()
}

// DirExists reports whether p exists and is a directory.
func (p AbsolutePath) DirExists() bool {
	info, err := os.Lstat(string(p))
	return err == nil && info.IsDir()
}

// Exists reports whether p exists at all (file, directory, or symlink).
func (p AbsolutePath) Exists() bool {
	_, err := os.Lstat(string(p))
	return err == nil
}

// MkdirAll creates p and any missing parents with the default permissions.
func (p AbsolutePath) MkdirAll() error {
	return os.MkdirAll(string(p), dirPermissions|0644)
}

// EnsureDir creates the parent directory of p.
func (p AbsolutePath) EnsureDir() error {
	return os.MkdirAll(filepath.Dir(string(p)), dirPermissions)
}

// ReadFile reads the full contents of the file at p.
func (p AbsolutePath) ReadFile() ([]byte, error) {
	return ioutil.ReadFile(string(p))
}

// WriteFile writes contents to p, creating or truncating it.
func (p AbsolutePath) WriteFile(contents []byte, mode os.FileMode) error {
	return ioutil.WriteFile(string(p), contents, mode)
}

// Open opens p for reading.
func (p AbsolutePath) Open() (*os.File, error) { return os.Open(string(p)) }

// OpenFile opens p with the given flags and mode.
func (p AbsolutePath) OpenFile(flags int, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(string(p), flags, mode)
}

// Create truncates or creates p for writing.
func (p AbsolutePath) Create() (*os.File, error) { return os.Create(string(p)) }

// Remove removes the file or empty directory at p.
func (p AbsolutePath) Remove() error { return os.Remove(string(p)) }

// RemoveAll removes p and everything beneath it.
func (p AbsolutePath) RemoveAll() error { return os.RemoveAll(string(p)) }

// Rename moves p to dest, both absolute paths on the same volume.
func (p AbsolutePath) Rename(dest AbsolutePath) error {
	return os.Rename(string(p), string(dest))
}

// Lstat implements os.Lstat for p.
func (p AbsolutePath) Lstat() (os.FileInfo, error) { return os.Lstat(string(p)) }

// Symlink creates a symlink at p pointing at target.
func (p AbsolutePath) Symlink(target string) error { return os.Symlink(target, string(p)) }

// RelativePath is a path relative to some anchor directory (a store root or
// an environment root), stored without a leading separator. It is portable:
// the same RelativePath value is valid regardless of which machine anchors
// it, unlike an AbsolutePath.
type RelativePath string

// UnsafeRelative casts s to a RelativePath without validation.
func UnsafeRelative(s string) RelativePath { return RelativePath(filepath.Clean(s)) }

func (p RelativePath) String() string { return string(p) }

// RestoreAnchor reattaches p to the given anchor, producing an AbsolutePath.
func (p RelativePath) RestoreAnchor(anchor AbsolutePath) AbsolutePath {
	return anchor.Join(string(p))
}

// Getwd returns the current working directory as an AbsolutePath, resolving
// symlinks the way package managers conventionally do so that two different
// paths to the same directory hash identically.
func Getwd() (AbsolutePath, error) {
	raw, err := os.Getwd()
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(raw)
	if err != nil {
		// Fall back to the unresolved path; EvalSymlinks can fail on
		// network filesystems or permission-denied intermediate dirs.
		resolved = raw
	}
	abs, err := New(resolved)
	if err != nil {
		return "", err
	}
	return abs, nil
}
