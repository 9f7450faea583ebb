// Package daemon implements pantryd, the optional warm-cache activation
// server described in SPEC_FULL.md's "Warm-daemon activation path": a
// long-lived process hosting the same two-tier cache internal/activation
// uses in-process, reachable over a Unix domain socket so repeated shell
// activations skip re-walking the filesystem and re-fingerprinting the
// manifest. It is never supervised and never required; the CLI's activate
// path falls back to an in-process activation.Hook whenever dialing the
// socket fails.
package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nightlyone/lockfile"

	"github.com/pantryhq/pantry/internal/activation"
	"github.com/pantryhq/pantry/internal/fspath"
)

// socketName and pidName are the files pantryd places under its runtime
// directory, one per project root (see pathsFor).
const (
	socketName = "pantryd.sock"
	pidName    = "pantryd.pid"
)

// pathsFor derives the runtime directory for repoRoot's daemon instance:
// <runtimeRoot>/<sha256(repoRoot)[:16]>/. Hashing the root, rather than
// using it directly, keeps the Unix socket path under the platform's path
// length limit regardless of how deep the project lives.
func pathsFor(runtimeRoot fspath.AbsolutePath, repoRoot string) (sockPath, pidPath fspath.AbsolutePath) {
	sum := sha256.Sum256([]byte(repoRoot))
	hash := hex.EncodeToString(sum[:])[:16]
	dir := runtimeRoot.Join(hash)
	return dir.Join(socketName), dir.Join(pidName)
}

// Server hosts the Activate RPC over a Unix socket for one project root.
type Server struct {
	hook        *activation.Hook
	repoRoot    string
	runtimeRoot fspath.AbsolutePath
	logger      hclog.Logger
	idleTimeout time.Duration

	reqCh      chan struct{}
	shutdownCh chan struct{}
}

// Options configures a Server.
type Options struct {
	Hook        *activation.Hook
	RepoRoot    string
	RuntimeRoot fspath.AbsolutePath // normally platform.Dirs.Data
	Logger      hclog.Logger
	IdleTimeout time.Duration // shut down after this long with no requests; 0 disables
}

// New builds a Server; call Serve to run it.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Server{
		hook:        opts.Hook,
		repoRoot:    opts.RepoRoot,
		runtimeRoot: opts.RuntimeRoot,
		logger:      opts.Logger,
		idleTimeout: opts.IdleTimeout,
		reqCh:       make(chan struct{}, 1),
		shutdownCh:  make(chan struct{}),
	}
}

// ShutdownArgs is the RPC argument for Server.Shutdown.
type ShutdownArgs struct{}

// ShutdownReply is the RPC result for Server.Shutdown.
type ShutdownReply struct{}

// Shutdown asks a running pantryd to stop serving, the RPC `pantry daemon
// stop` calls.
func (s *Server) Shutdown(args ShutdownArgs, reply *ShutdownReply) error {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
	return nil
}

// ActivateArgs is the RPC argument for Server.Activate.
type ActivateArgs struct {
	Dir string
}

// ActivateReply is the RPC result for Server.Activate. Found is false when
// no manifest was located upward from Dir, mirroring activation.Hook's
// no-op return.
type ActivateReply struct {
	Found     bool
	PathValue string
	EnvVars   map[string]string
}

// Activate is the single RPC pantryd exposes, net/rpc's required
// `func(T1, *T2) error` shape.
func (s *Server) Activate(args ActivateArgs, reply *ActivateReply) error {
	select {
	case s.reqCh <- struct{}{}:
	default:
	}
	payload, ok, err := s.hook.Activate(context.Background(), args.Dir)
	if err != nil {
		return err
	}
	if !ok {
		reply.Found = false
		return nil
	}
	reply.Found = true
	reply.PathValue = payload.PathValue
	reply.EnvVars = payload.EnvVars
	return nil
}

// Serve acquires the project's pidfile lock, listens on its Unix socket,
// and blocks until idle-timeout, a caught signal, or listener failure. Only
// one pantryd may run per project root; a second Serve call for the same
// root fails to acquire the lock and returns immediately.
func (s *Server) Serve(shutdown <-chan struct{}) error {
	sockPath, pidPath := pathsFor(s.runtimeRoot, s.repoRoot)
	if err := pidPath.Dir().MkdirAll(); err != nil {
		return err
	}

	lock, err := lockfile.New(pidPath.String())
	if err != nil {
		return fmt.Errorf("pantryd: invalid pid path %s: %w", pidPath, err)
	}
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("pantryd already running for this project (pidfile %s): %w", pidPath, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			s.logger.Error("failed unlocking pidfile", "error", uerr)
		}
	}()

	if err := os.RemoveAll(sockPath.String()); err != nil && !os.IsNotExist(err) {
		return err
	}
	lis, err := net.Listen("unix", sockPath.String())
	if err != nil {
		return err
	}
	defer lis.Close()

	rpcServer := rpc.NewServer()
	if err := rpcServer.Register(s); err != nil {
		return err
	}

	idleCh := make(chan struct{})
	if s.idleTimeout > 0 {
		go s.idleLoop(idleCh)
	}

	errCh := make(chan error, 1)
	go func() {
		for {
			conn, aerr := lis.Accept()
			if aerr != nil {
				errCh <- aerr
				return
			}
			go rpcServer.ServeConn(conn)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-idleCh:
		s.logger.Info("pantryd idle timeout reached, shutting down")
		return nil
	case <-s.shutdownCh:
		s.logger.Info("pantryd received Shutdown RPC")
		return nil
	case <-shutdown:
		s.logger.Info("pantryd received shutdown signal")
		return nil
	}
}

func (s *Server) idleLoop(idleCh chan<- struct{}) {
	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()
	for {
		select {
		case <-s.reqCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.idleTimeout)
		case <-timer.C:
			close(idleCh)
			return
		}
	}
}
