package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkOrCopyFileHardLinks(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from.txt")
	to := filepath.Join(dir, "to.txt")
	require.NoError(t, os.WriteFile(from, []byte("hello"), 0o644))

	require.NoError(t, LinkOrCopyFile(from, to, true))

	fromInfo, err := os.Lstat(from)
	require.NoError(t, err)
	toInfo, err := os.Lstat(to)
	require.NoError(t, err)
	require.True(t, os.SameFile(fromInfo, toInfo))
}

func TestLinkOrCopyFileReplicatesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	dest := filepath.Join(dir, "dest.txt")
	require.NoError(t, LinkOrCopyFile(link, dest, true))

	destTarget, err := os.Readlink(dest)
	require.NoError(t, err)
	require.Equal(t, target, destTarget)
}

func TestRecursiveLinkOrCopy(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bin", "tool"), []byte("#!/bin/sh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("hi"), 0o644))

	dst := t.TempDir()
	require.NoError(t, RecursiveLinkOrCopy(src, dst, true))

	require.True(t, FileExists(filepath.Join(dst, "bin", "tool")))
	require.True(t, FileExists(filepath.Join(dst, "README")))
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.Link(a, b))
	c := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(c, []byte("y"), 0o644))

	same, err := SameFile(a, b)
	require.NoError(t, err)
	require.True(t, same)

	same, err = SameFile(a, c)
	require.NoError(t, err)
	require.False(t, same)

	same, err = SameFile(a, filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	require.False(t, same)
}

func TestWalkVisitsFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "file.txt"), []byte("x"), 0o644))

	var sawDir, sawFile bool
	err := Walk(dir, func(name string, isDir bool) error {
		if isDir && filepath.Base(name) == "nested" {
			sawDir = true
		}
		if !isDir && filepath.Base(name) == "file.txt" {
			sawFile = true
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, sawDir)
	require.True(t, sawFile)
}
