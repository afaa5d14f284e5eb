// SPDX-License-Identifier: ice License 1.0

package adapters

import (
	"context"
	"net"
	stdlibtime "time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const writerQueueDepth = 64

// NewWebSocketAdapter wraps an already-upgraded connection in a WS, and
// returns a context that is canceled the moment the connection's reader
// or writer gives up — whichever happens first.
func NewWebSocketAdapter(ctx context.Context, conn net.Conn, readTimeout, writeTimeout stdlibtime.Duration) (*WebsocketAdapter, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a := &WebsocketAdapter{
		conn:         conn,
		out:          make(chan wsWrite, writerQueueDepth),
		closeChannel: make(chan struct{}),
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
	}
	go func() {
		<-a.closeChannel
		cancel()
	}()

	return a, ctx
}

// ReadMessage blocks until a full frame arrives, the deadline elapses, or
// the connection closes.
func (a *WebsocketAdapter) ReadMessage() (messageType int, p []byte, err error) {
	if a.readTimeout > 0 {
		if err = a.conn.SetReadDeadline(stdlibtime.Now().Add(a.readTimeout)); err != nil {
			return 0, nil, err
		}
	}
	data, opCode, err := wsutil.ReadClientData(a.conn)
	if err != nil {
		return 0, nil, err
	}

	return int(opCode), data, nil
}

// WriteMessage enqueues a frame for the writer goroutine. It never blocks
// the caller on network I/O: callers serialize through the same channel,
// so frames on one connection are never interleaved.
func (a *WebsocketAdapter) WriteMessage(messageType int, data []byte) error {
	a.closeMx.Lock()
	closed := a.closed
	a.closeMx.Unlock()
	if closed {
		return net.ErrClosed
	}

	select {
	case a.out <- wsWrite{data: data, opCode: messageType}:
		return nil
	case <-a.closeChannel:
		return net.ErrClosed
	}
}

// Write is the per-connection writer task: it drains the out channel and
// performs the actual network write, so every frame leaves the wire whole.
func (a *WebsocketAdapter) Write(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.closeChannel:
			return
		case w := <-a.out:
			if a.writeTimeout > 0 {
				if err := a.conn.SetWriteDeadline(stdlibtime.Now().Add(a.writeTimeout)); err != nil {
					a.setWriteErr(err)
					_ = a.Close()

					return
				}
			}
			if err := wsutil.WriteServerMessage(a.conn, ws.OpCode(w.opCode), w.data); err != nil {
				a.setWriteErr(err)
				_ = a.Close()

				return
			}
		}
	}
}

func (a *WebsocketAdapter) setWriteErr(err error) {
	a.wrErrMx.Lock()
	a.wrErr = err
	a.wrErrMx.Unlock()
}

func (a *WebsocketAdapter) Close() error {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.closeChannel)

	return a.conn.Close()
}
