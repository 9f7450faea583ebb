// Package lifecycle runs preinstall/install/postinstall and user `run`
// scripts (§4.K): each in a child process whose environment holds only the
// Script's own Env entries (nothing is inherited from the calling process
// or built from the activation payload), with a per-script timeout, in a
// bounded worker pool that stops dispatching new work as soon as one
// script fails fatally.
package lifecycle

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-gatedio"
	"github.com/hashicorp/go-hclog"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
)

// Script is one lifecycle (or user `run`) invocation.
type Script struct {
	Package string
	Phase   string // "preinstall", "install", "postinstall", or a run-script name
	Command string // shell command line, run via the platform's script shell
	Dir     fspath.AbsolutePath
	Env     map[string]string
}

// Options configures a Runner.
type Options struct {
	ProjectRoot fspath.AbsolutePath
	Timeout     time.Duration // per-script; 0 = 10 minutes
	Concurrency int           // for RunParallel; 0 = runtime.NumCPU()
	IgnoreScripts bool
	Logger      hclog.Logger
}

// Runner executes Scripts.
type Runner struct {
	opts Options
}

// New builds a Runner.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Runner{opts: opts}
}

// RunSequential runs scripts in order, stopping at the first failure. This
// is what the installer uses for preinstall/install/postinstall, which
// must observe a package's own topological position.
func (r *Runner) RunSequential(ctx context.Context, scripts []Script) error {
	if r.opts.IgnoreScripts {
		return nil
	}
	for _, s := range scripts {
		if err := r.runOne(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// RunParallel runs independent scripts (project `run` invocations across
// unrelated workspace packages) in a bounded pool sized Concurrency. A
// shared flag set by the first fatal failure stops workers from starting
// new tasks, matching §4.K's "on any worker's fatal error the pool sets a
// shared flag causing remaining workers to exit without starting new
// tasks."
func (r *Runner) RunParallel(ctx context.Context, scripts []Script) error {
	if r.opts.IgnoreScripts {
		return nil
	}

	var (
		mu      sync.Mutex
		failed  int32
		firstErr error
		idx     int32 = -1
		wg      sync.WaitGroup
	)

	worker := func() {
		defer wg.Done()
		for {
			if atomic.LoadInt32(&failed) != 0 {
				return
			}
			i := atomic.AddInt32(&idx, 1)
			if int(i) >= len(scripts) {
				return
			}
			if err := r.runOne(ctx, scripts[i]); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				atomic.StoreInt32(&failed, 1)
				return
			}
		}
	}

	n := r.opts.Concurrency
	if n > len(scripts) {
		n = len(scripts)
	}
	if n < 1 {
		n = 1
	}
	wg.Add(n)
	for i := 0; i < n; i++ {
		go worker()
	}
	wg.Wait()
	return firstErr
}

// runOne runs a single script, enforcing Options.Timeout, and classifying
// any non-zero exit as KindLifecycleScriptFailed (§6, §7).
func (r *Runner) runOne(ctx context.Context, s Script) error {
	shell, shellFlag := scriptShell()
	cmd := exec.Command(shell, shellFlag, s.Command)
	cmd.Dir = s.Dir.String()

	cmd.Env = buildEnv(s.Env)

	// go-gatedio's ByteBuffer is a mutex-guarded bytes.Buffer: safe to read
	// from this goroutine while the child is still writing to it, which a
	// bare bytes.Buffer is not.
	stdout := gatedio.NewByteBuffer()
	stderr := gatedio.NewByteBuffer()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cmd.Start(); err != nil {
		return pantryerrors.Wrap(pantryerrors.KindLifecycleScriptFailed, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		return r.classify(s, err, stdout.String(), stderr.String())
	case <-runCtx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return pantryerrors.New(pantryerrors.KindTimeout)
	}
}

func (r *Runner) classify(s Script, err error, stdout, stderr string) error {
	code := 1
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	r.opts.Logger.Debug("lifecycle script failed", "package", s.Package, "phase", s.Phase, "stdout", stdout, "stderr", stderr)
	e := pantryerrors.LifecycleScriptFailed(s.Package, code)
	return fmt.Errorf("%w (phase %s)", e, s.Phase)
}

func buildEnv(extra map[string]string) []string {
	base := []string{}
	for k, v := range extra {
		base = append(base, k+"="+v)
	}
	return base
}

// scriptShell returns the shell and its "run a command line" flag for the
// current platform, matching how package-manager lifecycle scripts are
// conventionally executed.
func scriptShell() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "/bin/sh", "-c"
}
