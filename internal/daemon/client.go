package daemon

import (
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/pantryhq/pantry/internal/activation"
	"github.com/pantryhq/pantry/internal/fspath"
)

// dialTimeout bounds how long Dial waits for pantryd's socket
// before falling back to in-process activation; the socket is local, so a
// present daemon answers effectively instantly and an absent one should
// fail fast rather than stall a shell prompt.
const dialTimeout = 50 * time.Millisecond

// Client talks to a running pantryd over its Unix socket.
type Client struct {
	conn *rpc.Client
}

// Dial connects to repoRoot's pantryd instance. Callers should treat any
// error as "no daemon running" and fall back to an in-process
// activation.Hook; Dial never starts a daemon itself.
func Dial(runtimeRoot fspath.AbsolutePath, repoRoot string) (*Client, error) {
	sockPath, _ := pathsFor(runtimeRoot, repoRoot)
	conn, err := net.DialTimeout("unix", sockPath.String(), dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: rpc.NewClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Shutdown asks the connected daemon to stop serving.
func (c *Client) Shutdown() error {
	return c.conn.Call("Server.Shutdown", ShutdownArgs{}, &ShutdownReply{})
}

// Activate calls the daemon's Activate RPC and adapts its reply back into
// an *activation.Payload, the same shape internal/activation's in-process
// path returns, so callers don't need to know which path served them.
func (c *Client) Activate(dir string) (*activation.Payload, bool, error) {
	var reply ActivateReply
	if err := c.conn.Call("Server.Activate", ActivateArgs{Dir: dir}, &reply); err != nil {
		return nil, false, fmt.Errorf("pantryd Activate RPC: %w", err)
	}
	if !reply.Found {
		return nil, false, nil
	}
	return &activation.Payload{PathValue: reply.PathValue, EnvVars: reply.EnvVars}, true, nil
}
