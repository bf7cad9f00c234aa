// Package client emits hook events to a running perch daemon. It is what
// the assistant's hook script would be, in-process: one connection per
// event, and for permission requests the connection stays open until the
// decision comes back.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/harunnryd/perch/internal/errors"
	"github.com/harunnryd/perch/internal/hook"
)

const defaultDialTimeout = 2 * time.Second

type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

func New(socketPath string) *Client {
	return &Client{
		socketPath:  socketPath,
		dialTimeout: defaultDialTimeout,
	}
}

// Notify sends a fire-and-forget event. The connection is closed as soon
// as the payload is written.
func (c *Client) Notify(ctx context.Context, evt hook.Event) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return c.send(ctx, conn, evt)
}

// RequestPermission sends a permission request and blocks until the
// daemon writes a decision back or closes the connection. A close without
// a decision means the daemon could not (or chose not to) answer; the
// caller should fall back to prompting on its own.
func (c *Client) RequestPermission(ctx context.Context, evt hook.Event) (hook.Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return hook.Response{}, err
	}
	defer conn.Close()

	if err := c.send(ctx, conn, evt); err != nil {
		return hook.Response{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return hook.Response{}, errors.Wrap(err, "set read deadline")
		}
	}

	body, err := io.ReadAll(conn)
	if err != nil {
		return hook.Response{}, errors.Wrap(errors.MapError(err), "await decision")
	}
	if len(body) == 0 {
		return hook.Response{}, errors.Transient("connection closed without decision")
	}

	var resp hook.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return hook.Response{}, fmt.Errorf("decode decision: %w", errors.ErrInvalidPayload)
	}
	if _, err := hook.ParseDecision(string(resp.Decision)); err != nil {
		return hook.Response{}, err
	}
	return resp, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, errors.Wrap(errors.MapError(err), "dial perch socket")
	}
	return conn, nil
}

func (c *Client) send(ctx context.Context, conn net.Conn, evt hook.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return errors.Wrap(err, "set write deadline")
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return errors.Wrap(errors.MapError(err), "send event")
	}
	return nil
}
