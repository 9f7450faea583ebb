package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDirCreatesParent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "file.txt")
	require.NoError(t, EnsureDir(target))
	require.True(t, IsDirectory(filepath.Join(dir, "a", "b")))
}

func TestEnsureDirRemovesFileBlockingDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	target := filepath.Join(blocker, "file.txt")

	require.NoError(t, EnsureDir(target))
	require.True(t, IsDirectory(blocker))
}

func TestPathExistsAndFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.True(t, PathExists(file))
	require.True(t, FileExists(file))
	require.True(t, PathExists(dir))
	require.False(t, FileExists(dir))
	require.False(t, PathExists(filepath.Join(dir, "missing")))
}

func TestIsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	require.True(t, IsSymlink(link))
	require.False(t, IsSymlink(target))
}

func TestCopyFileIsCrashSafe(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from.txt")
	require.NoError(t, os.WriteFile(from, []byte("contents"), 0o644))
	to := filepath.Join(dir, "nested", "to.txt")

	require.NoError(t, CopyFile(from, to, 0o644))

	contents, err := os.ReadFile(to)
	require.NoError(t, err)
	require.Equal(t, "contents", string(contents))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp file")
}
