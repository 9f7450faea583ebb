package process

/**
 * Adapted from the source at
 * https://github.com/hashicorp/consul-template/tree/3ea7d99ad8eff17897e0d63dac86d74770170bb8/child/child_test.go
 *
 * Fixtures below are shaped like the shell invocations services.Supervisor
 * actually builds (shell -c "<ServiceDecl.Command>") rather than arbitrary
 * commands, so a failure here says something about service supervision
 * specifically.
 */

import (
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-gatedio"
	"github.com/hashicorp/go-hclog"
)

const fileWaitSleepDelay = 150 * time.Millisecond

// testServiceChild builds a Child around a no-op service command, the way
// services.Supervisor.Run does before handing it to a Manager.
func testServiceChild(t *testing.T) *Child {
	cmd := exec.Command("sh", "-c", "echo service ready")
	cmd.Stdout = ioutil.Discard
	cmd.Stderr = ioutil.Discard
	c, err := newChild(NewInput{
		Cmd:         cmd,
		KillSignal:  os.Kill,
		KillTimeout: 2 * time.Second,
		Splay:       0 * time.Second,
		Logger:      hclog.Default(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew(t *testing.T) {
	stdin := gatedio.NewByteBuffer()
	stdout := gatedio.NewByteBuffer()
	stderr := gatedio.NewByteBuffer()
	killSignal := os.Kill
	killTimeout := fileWaitSleepDelay
	splay := fileWaitSleepDelay

	cmd := exec.Command("sh", "-c", "echo service ready")
	cmd.Stdin = stdin
	cmd.Stderr = stderr
	cmd.Stdout = stdout
	cmd.Env = []string{"PANTRY_SERVICE=web"}
	c, err := newChild(NewInput{
		Cmd:         cmd,
		KillSignal:  killSignal,
		KillTimeout: killTimeout,
		Splay:       splay,
		Logger:      hclog.Default(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if c.killSignal != killSignal {
		t.Errorf("expected %q to be %q", c.killSignal, killSignal)
	}

	if c.killTimeout != killTimeout {
		t.Errorf("expected %q to be %q", c.killTimeout, killTimeout)
	}

	if c.splay != splay {
		t.Errorf("expected %q to be %q", c.splay, splay)
	}

	if c.stopCh == nil {
		t.Errorf("expected %#v to be", c.stopCh)
	}
}

func TestExitCh_noProcess(t *testing.T) {
	c := testServiceChild(t)
	ch := c.ExitCh()
	if ch != nil {
		t.Errorf("expected %#v to be nil", ch)
	}
}

func TestExitCh(t *testing.T) {
	c := testServiceChild(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	ch := c.ExitCh()
	if ch == nil {
		t.Error("expected ch to exist")
	}
}

func TestPid_noProcess(t *testing.T) {
	c := testServiceChild(t)
	pid := c.Pid()
	if pid != 0 {
		t.Errorf("expected %q to be 0", pid)
	}
}

func TestPid(t *testing.T) {
	c := testServiceChild(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	pid := c.Pid()
	if pid == 0 {
		t.Error("expected pid to not be 0")
	}
}

// TestStart verifies the env a services.Supervisor merges for a service
// (base env plus the service's own overrides) reaches the child process.
func TestStart(t *testing.T) {
	c := testServiceChild(t)

	stdin := gatedio.NewByteBuffer()
	stdout := gatedio.NewByteBuffer()
	stderr := gatedio.NewByteBuffer()
	env := []string{"BASE=1", "PANTRY_SERVICE=worker"}
	cmd := exec.Command("sh", "-c", "env")
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = env
	c.cmd = cmd

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	select {
	case <-c.ExitCh():
	case <-time.After(fileWaitSleepDelay):
		t.Fatal("process should have exited")
	}

	output := stdout.String()
	for _, envVar := range env {
		if !strings.Contains(output, envVar) {
			t.Errorf("expected to find %q in %q", envVar, output)
		}
	}
}

// TestKill_noSignal models a long-running service (the common case: a dev
// server that never exits on its own) being force-killed when no graceful
// signal is configured.
func TestKill_noSignal(t *testing.T) {
	c := testServiceChild(t)
	c.cmd = exec.Command("sh", "-c", "while true; do sleep 0.2; done")
	c.killTimeout = 20 * time.Millisecond
	c.killSignal = nil

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	time.Sleep(fileWaitSleepDelay)

	c.Kill()

	time.Sleep(fileWaitSleepDelay)

	if c.cmd != nil {
		t.Errorf("expected cmd to be nil")
	}
}
