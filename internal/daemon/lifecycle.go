package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/pantryhq/pantry/internal/fspath"
)

// ServeSubcommand is the hidden CLI subcommand cmd/pantry registers to run
// Server.Serve in the foreground; Start execs the current binary with this
// argument, detached, so "pantry daemon start" returns immediately while
// pantryd keeps running after the parent exits.
const ServeSubcommand = "__pantryd-serve"

// startPollInterval and startTimeout bound how long Start waits for the
// freshly spawned daemon to open its socket before giving up.
const (
	startPollInterval = 20 * time.Millisecond
	startTimeout      = 2 * time.Second
)

// Start launches pantryd for repoRoot as a detached background process if
// one isn't already listening, then waits for its socket to appear. It is
// a no-op, not an error, when a daemon is already running.
func Start(runtimeRoot fspath.AbsolutePath, repoRoot string, logger hclog.Logger) error {
	if client, err := Dial(runtimeRoot, repoRoot); err == nil {
		_ = client.Close()
		return nil
	}

	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating pantry executable: %w", err)
	}

	cmd := exec.Command(bin, ServeSubcommand, repoRoot)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting pantryd: %w", err)
	}
	// The child is now independent; losing track of its *os.Process is
	// intentional, it outlives this call.
	if err := cmd.Process.Release(); err != nil {
		logger.Debug("failed releasing daemon process handle", "error", err)
	}

	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		if client, derr := Dial(runtimeRoot, repoRoot); derr == nil {
			_ = client.Close()
			return nil
		}
		time.Sleep(startPollInterval)
	}
	return fmt.Errorf("pantryd did not become ready within %s", startTimeout)
}

// Stop asks a running pantryd for repoRoot to shut down. It is a no-op,
// not an error, when no daemon is running.
func Stop(runtimeRoot fspath.AbsolutePath, repoRoot string) error {
	client, err := Dial(runtimeRoot, repoRoot)
	if err != nil {
		return nil
	}
	defer client.Close()
	return client.Shutdown()
}
