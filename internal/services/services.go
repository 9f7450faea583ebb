// Package services starts and supervises the long-running processes a
// manifest declares (§3 "Normalized manifest", ServiceDecl), each
// contributing to the environment's published Env alongside PATH (§4.B).
package services

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/pantryhq/pantry/internal/manifest"
	"github.com/pantryhq/pantry/internal/process"
)

// Supervisor runs a manifest's declared services as managed child
// processes, adapted from the teacher's process.Manager (graceful
// SIGINT-then-timeout stop, shared across every running child).
type Supervisor struct {
	manager *process.Manager
	logger  hclog.Logger
}

// NewSupervisor builds a Supervisor.
func NewSupervisor(logger hclog.Logger) *Supervisor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Supervisor{manager: process.NewManager(logger), logger: logger}
}

// Run starts every declared service concurrently in dir, with env merged
// under each service's own Env overrides, and blocks until ctx is
// canceled or every service has exited on its own. Stop is always called
// before Run returns, so ctx cancellation tears every service down
// together rather than leaving siblings running.
func (s *Supervisor) Run(ctx context.Context, dir string, decls []manifest.ServiceDecl, env map[string]string) error {
	if len(decls) == 0 {
		return nil
	}

	errCh := make(chan error, len(decls))
	var wg sync.WaitGroup
	for _, svc := range decls {
		svc := svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			shell, flag := scriptShell()
			cmd := exec.Command(shell, flag, svc.Command)
			cmd.Dir = dir
			cmd.Env = mergeEnv(env, svc.Env)
			if err := s.manager.Exec(cmd); err != nil && err != process.ErrClosing {
				errCh <- fmt.Errorf("service %s: %w", svc.Name, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	s.Stop()
	<-done

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Stop signals every running service to stop, waiting for graceful exit
// before force-killing (process.Manager's own KillTimeout).
func (s *Supervisor) Stop() { s.manager.Close() }

func mergeEnv(base, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func scriptShell() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "/bin/sh", "-c"
}
