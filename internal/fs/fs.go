// Package fs provides small filesystem helpers shared by the artifact cache
// and installer: existence checks, directory creation, and file copying
// with the crash-safety of writing to a temp path before renaming.
package fs

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// DirPermissions are the default permission bits applied to directories.
const DirPermissions = os.ModeDir | 0775

// EnsureDir ensures the directory containing filename exists.
func EnsureDir(filename string) error {
	dir := filepath.Dir(filename)
	err := os.MkdirAll(dir, DirPermissions)
	if err != nil && FileExists(dir) {
		// A file occupies where a directory needs to go; this can happen
		// when an environment's layout changes between pantry versions.
		log.Printf("removing file %s to make room for a required subdirectory", dir)
		if err2 := os.Remove(dir); err2 == nil {
			err = os.MkdirAll(dir, DirPermissions)
		} else {
			return err
		}
	}
	return err
}

// PathExists returns true if filename exists, as a file or a directory.
func PathExists(filename string) bool {
	_, err := os.Lstat(filename)
	return err == nil
}

// FileExists returns true if filename exists and is not a directory; a
// symlink counts whatever it points to.
func FileExists(filename string) bool {
	info, err := os.Lstat(filename)
	return err == nil && !info.IsDir()
}

// IsSymlink returns true if filename exists and is a symlink.
func IsSymlink(filename string) bool {
	info, err := os.Lstat(filename)
	return err == nil && (info.Mode()&os.ModeSymlink) != 0
}

// IsDirectory checks if a given path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyFile copies a file from 'from' to 'to', writing through a temp file in
// the destination directory first so a crash mid-copy never leaves a
// partially-written artifact at the final path.
func CopyFile(from string, to string, mode os.FileMode) error {
	fromFile, err := os.Open(from)
	if err != nil {
		return err
	}
	defer fromFile.Close()

	dir := filepath.Dir(to)
	if dir != "" {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return err
		}
	}
	if mode == 0 {
		mode = 0664
	}

	tmp, err := os.CreateTemp(dir, ".pantry-copy-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, fromFile); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, to); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
