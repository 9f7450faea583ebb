package fs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// LinkOrCopyFile hard-links from to to, falling back to a copy when the
// link fails (common across filesystem boundaries, e.g. store on one mount
// and environment dir on another) and fallback is true. A symlink source is
// replicated as an equivalent symlink rather than being dereferenced.
func LinkOrCopyFile(from string, to string, fallback bool) error {
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		dest, err := os.Readlink(from)
		if err != nil {
			return err
		}
		if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return os.Symlink(dest, to)
	}

	if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Link(from, to); err == nil || !fallback {
		return err
	}
	return CopyFile(from, to, info.Mode())
}

// RecursiveLinkOrCopy replicates the tree rooted at from into to, hard
// linking (or copying, if fallback is requested and linking fails) each
// regular file and recreating directories and symlinks in place. This is
// the isolated-linker strategy's primitive: one subtree per package, shared
// with the content-addressed store via hard links rather than duplicated
// bytes wherever the filesystem allows it.
func RecursiveLinkOrCopy(from, to string, fallback bool) error {
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return LinkOrCopyFile(from, to, fallback)
	}
	return Walk(from, func(name string, isDir bool) error {
		rel, err := filepath.Rel(from, name)
		if err != nil {
			return err
		}
		dest := filepath.Join(to, rel)
		if isDir {
			if fi, err := os.Lstat(name); err == nil && fi.Mode()&os.ModeSymlink != 0 {
				return LinkOrCopyFile(name, dest, fallback)
			}
			return os.MkdirAll(dest, DirPermissions)
		}
		same, err := SameFile(name, dest)
		if err != nil {
			return err
		}
		if same {
			return nil
		}
		return LinkOrCopyFile(name, dest, fallback)
	})
}

// Walk is filepath.Walk's signature trimmed to what Pantry needs, implemented
// over godirwalk for the large node_modules-shaped trees a hoisted
// environment produces (godirwalk avoids the lstat-per-entry cost
// filepath.Walk pays on every node).
func Walk(rootPath string, callback func(name string, isDir bool) error) error {
	return godirwalk.Walk(rootPath, &godirwalk.Options{
		Callback: func(name string, info *godirwalk.Dirent) error {
			isDir, err := info.IsDirOrSymlinkToDir()
			if err != nil {
				var pathErr *os.PathError
				if errors.As(err, &pathErr) {
					return godirwalk.SkipThis
				}
				return err
			}
			return callback(name, isDir)
		},
		ErrorCallback: func(_ string, err error) godirwalk.ErrorAction {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
	})
}

// SameFile reports whether a and b name the same file on disk (same device
// and inode), so a recursive copy can skip self-copies.
func SameFile(a string, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	aInfo, err := os.Lstat(a)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	bInfo, err := os.Lstat(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(aInfo, bInfo), nil
}
