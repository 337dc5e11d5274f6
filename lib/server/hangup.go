// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// connReader reads request frames from a session's connection. While a
// blocking handler runs, nothing else reads the connection, so watch
// reads it on the handler's behalf to notice the peer hanging up.
type connReader struct {
	conn net.Conn
	// pending holds bytes the watcher read ahead of the next frame.
	pending []byte
}

func (r *connReader) Read(p []byte) (int, error) {
	if len(r.pending) > 0 {
		count := copy(p, r.pending)
		r.pending = r.pending[count:]
		return count, nil
	}
	return r.conn.Read(p)
}

// watch returns a context that is cancelled when the peer closes the
// connection or it fails. The returned stop function ends the watch and
// must be called before the next read.
func (r *connReader) watch(ctx context.Context) (context.Context, func()) {
	watched, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var next [1]byte
		count, err := r.conn.Read(next[:])
		if count > 0 {
			// A request sent before the response: keep it for the
			// session loop and stop watching.
			r.pending = append(r.pending, next[:count]...)
			return
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			cancel()
		}
	}()
	stop := func() {
		r.conn.SetReadDeadline(time.Now())
		<-done
		r.conn.SetReadDeadline(time.Time{})
		cancel()
	}
	return watched, stop
}
