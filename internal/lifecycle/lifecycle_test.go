package lifecycle

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
)

func tmpDir(t *testing.T) fspath.AbsolutePath {
	t.Helper()
	p, err := fspath.New(t.TempDir())
	require.NoError(t, err)
	return p
}

func TestRunSequentialSucceeds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell scripts only")
	}
	r := New(Options{})
	err := r.RunSequential(context.Background(), []Script{
		{Package: "a", Phase: "install", Command: "exit 0", Dir: tmpDir(t)},
	})
	require.NoError(t, err)
}

func TestRunSequentialFailureIsClassified(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell scripts only")
	}
	r := New(Options{})
	err := r.RunSequential(context.Background(), []Script{
		{Package: "a", Phase: "install", Command: "exit 7", Dir: tmpDir(t)},
	})
	require.Error(t, err)
	assert.True(t, pantryerrors.Is(err, pantryerrors.KindLifecycleScriptFailed))
}

func TestRunSequentialIgnoreScripts(t *testing.T) {
	r := New(Options{IgnoreScripts: true})
	err := r.RunSequential(context.Background(), []Script{
		{Package: "a", Phase: "install", Command: "exit 7", Dir: tmpDir(t)},
	})
	require.NoError(t, err)
}

func TestRunSequentialTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell scripts only")
	}
	r := New(Options{Timeout: 50 * time.Millisecond})
	err := r.RunSequential(context.Background(), []Script{
		{Package: "a", Phase: "install", Command: "sleep 5", Dir: tmpDir(t)},
	})
	require.Error(t, err)
	assert.True(t, pantryerrors.Is(err, pantryerrors.KindTimeout))
}

func TestRunParallelStopsOnFirstFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell scripts only")
	}
	r := New(Options{Concurrency: 2})
	dir := tmpDir(t)
	scripts := []Script{
		{Package: "a", Phase: "run", Command: "exit 1", Dir: dir},
		{Package: "b", Phase: "run", Command: "exit 0", Dir: dir},
		{Package: "c", Phase: "run", Command: "exit 0", Dir: dir},
	}
	err := r.RunParallel(context.Background(), scripts)
	require.Error(t, err)
}
