// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// dialTimeout covers only the connect phase; exchanges are bounded by
// the caller's context.
const dialTimeout = 5 * time.Second

// Conn is the client side of a session. Exchanges are serialized: a
// Call holds the session until its response arrives. After a transport
// failure or an abandoned exchange the session is unusable and every
// later Call fails with ConnectionFailed.
type Conn struct {
	conn           net.Conn
	address        string
	maxMessageSize int64

	mu       sync.Mutex
	broken   error
	isBroken atomic.Bool
	closed   atomic.Bool
}

// Dial connects to an instance. network is "unix" for the IPC socket or
// "tcp" for the RPC endpoint.
func Dial(ctx context.Context, network, address string) (*Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, storeerr.New(storeerr.ConnectionFailed, "connecting to %s %s: %v", network, address, err)
	}
	return NewConn(conn), nil
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:           conn,
		address:        conn.RemoteAddr().String(),
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// SetMaxMessageSize bounds response frames. Call before the first
// exchange.
func (c *Conn) SetMaxMessageSize(size int64) {
	c.maxMessageSize = size
}

// Address returns the remote address of the session.
func (c *Conn) Address() string {
	return c.address
}

// Call sends one request and decodes the response data into result,
// which may be nil. A failed response is returned as a typed
// *storeerr.Error. The context's deadline bounds the whole exchange and
// fails it with Timeout.
func (c *Conn) Call(ctx context.Context, action string, request, result any) error {
	envelope, err := NewRequest(action, request)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return storeerr.New(storeerr.ConnectionFailed, "session with %s is closed", c.address)
	}
	if c.broken != nil {
		return storeerr.New(storeerr.ConnectionFailed, "session with %s is broken: %v", c.address, c.broken)
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return c.fail(ctx, action, err)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
		close(fired)
	})

	var response Response
	err = WriteMessage(c.conn, envelope)
	if err == nil {
		err = ReadMessage(c.conn, c.maxMessageSize, &response)
	}
	if !stop() {
		<-fired
		if err == nil {
			// The exchange completed but the deadline is now in
			// the past; the next call resets it.
			err = ctx.Err()
		}
	}
	if err != nil {
		return c.fail(ctx, action, err)
	}

	if err := response.Err(); err != nil {
		return err
	}
	return response.Decode(result)
}

// fail marks the session broken and classifies err.
func (c *Conn) fail(ctx context.Context, action string, err error) error {
	c.broken = err
	c.isBroken.Store(true)
	c.conn.Close()
	switch {
	case c.closed.Load():
		return storeerr.New(storeerr.ConnectionFailed, "%s: session with %s is closed", action, c.address)
	case errors.Is(ctx.Err(), context.Canceled):
		return storeerr.New(storeerr.Timeout, "%s on %s: cancelled", action, c.address)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return storeerr.New(storeerr.Timeout, "%s on %s: deadline exceeded", action, c.address)
	default:
		return storeerr.New(storeerr.ConnectionFailed, "%s on %s: %v", action, c.address, err)
	}
}

// Connected reports whether the session can still carry exchanges.
func (c *Conn) Connected() bool {
	return !c.closed.Load() && !c.isBroken.Load()
}

// Close ends the session. It may be called while a Call is in flight,
// which then fails with ConnectionFailed.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}
