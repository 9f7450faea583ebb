//go:build !windows
// +build !windows

package process

/**
 * Adapted from the source at
 * https://github.com/hashicorp/consul-template/tree/3ea7d99ad8eff17897e0d63dac86d74770170bb8/child/child_test.go
 *
 * Tests in this file use signals or pgid features not available on windows.
 * The signal exercised throughout is SIGINT, the one Manager.Exec actually
 * configures as KillSignal for every service it supervises, rather than an
 * arbitrary signal the teacher's generic Child never sees in production.
 */

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/hashicorp/go-gatedio"
)

// gracefulShutdownScript models a service that traps SIGINT to flush and
// exit cleanly, the way a well-behaved dev server responds to the signal
// services.Supervisor.Stop sends.
const gracefulShutdownScript = "trap 'echo shutting down; exit' INT; while true; do sleep 0.2; done"

func TestSignal(t *testing.T) {
	c := testServiceChild(t)
	cmd := exec.Command("sh", "-c", gracefulShutdownScript)
	c.cmd = cmd

	out := gatedio.NewByteBuffer()
	c.cmd.Stdout = out

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	time.Sleep(fileWaitSleepDelay)

	if err := c.Signal(syscall.SIGINT); err != nil {
		t.Fatal(err)
	}

	time.Sleep(fileWaitSleepDelay)

	expected := "shutting down\n"
	if out.String() != expected {
		t.Errorf("expected %q to be %q", out.String(), expected)
	}
}

func TestStop_childAlreadyDead(t *testing.T) {
	c := testServiceChild(t)
	c.cmd = exec.Command("sh", "-c", "exit 1")
	c.splay = 100 * time.Second
	c.killSignal = syscall.SIGINT

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(fileWaitSleepDelay)

	killStartTime := time.Now()
	c.Stop()
	killEndTime := time.Now()

	if killEndTime.Sub(killStartTime) > fileWaitSleepDelay {
		t.Error("expected not to wait for splay")
	}
}

func TestSignal_noProcess(t *testing.T) {
	c := testServiceChild(t)
	if err := c.Signal(syscall.SIGINT); err != nil {
		t.Fatal(err)
	}
}

// TestKill_signal verifies that Manager's own KillSignal (SIGINT, set in
// Manager.Exec) reaches a running service the same way TestSignal verified
// a manually-sent one does.
func TestKill_signal(t *testing.T) {
	c := testServiceChild(t)
	cmd := exec.Command("sh", "-c", gracefulShutdownScript)
	c.killSignal = syscall.SIGINT

	out := gatedio.NewByteBuffer()
	cmd.Stdout = out
	c.cmd = cmd

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	time.Sleep(fileWaitSleepDelay)

	c.Kill()

	time.Sleep(fileWaitSleepDelay)

	expected := "shutting down\n"
	if out.String() != expected {
		t.Errorf("expected %q to be %q", out.String(), expected)
	}
}

func TestKill_noProcess(t *testing.T) {
	c := testServiceChild(t)
	c.killSignal = syscall.SIGINT
	c.Kill()
}

func TestStop_noWaitForSplay(t *testing.T) {
	c := testServiceChild(t)
	c.cmd = exec.Command("sh", "-c", gracefulShutdownScript)
	c.splay = 100 * time.Second
	c.killSignal = syscall.SIGINT

	out := gatedio.NewByteBuffer()
	c.cmd.Stdout = out

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(fileWaitSleepDelay)

	killStartTime := time.Now()
	c.StopImmediately()
	killEndTime := time.Now()

	expected := "shutting down\n"
	if out.String() != expected {
		t.Errorf("expected %q to be %q", out.String(), expected)
	}

	if killEndTime.Sub(killStartTime) > fileWaitSleepDelay {
		t.Error("expected not to wait for splay")
	}
}

// TestSetpgid verifies the process-group behavior Manager relies on to
// signal an entire service's process tree (shell plus any children it
// forks), not just the shell itself.
func TestSetpgid(t *testing.T) {
	t.Run("true", func(t *testing.T) {
		c := testServiceChild(t)
		c.cmd = exec.Command("sh", "-c", "while true; do sleep 0.2; done")
		c.setpgid = true

		if err := c.Start(); err != nil {
			t.Fatal(err)
		}
		defer c.Stop()

		gpid, err := syscall.Getpgid(c.Pid())
		if err != nil {
			t.Fatal("Getpgid error:", err)
		}

		if c.Pid() != gpid {
			t.Fatal("pid and gpid should match")
		}
	})
	t.Run("false", func(t *testing.T) {
		c := testServiceChild(t)
		c.cmd = exec.Command("sh", "-c", "while true; do sleep 0.2; done")
		c.setpgid = false

		if err := c.Start(); err != nil {
			t.Fatal(err)
		}
		defer c.Stop()

		gpid, err := syscall.Getpgid(c.Pid())
		if err != nil {
			t.Fatal("Getpgid error:", err)
		}

		if c.Pid() == gpid {
			t.Fatal("pid and gpid should NOT match")
		}
	})
}
