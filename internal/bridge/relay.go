// Package bridge implements the per-session RFB bridge: for generic VNC, a
// WebSocket-to-TCP adapter bound to an ephemeral local port; for cluster
// VMs, a direct WebSocket client to the cluster's VM-VNC sub-resource.
// It also owns the bridge table invariant (at most one live bridge per
// session) and the binary-clean, cancellable copy loop shared by every
// leg of the proxy path: two goroutines joined by first-completes-
// cancels-the-other.
package bridge

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
)

// CloseError reports the WebSocket close code observed when a relay leg
// terminated, so callers can propagate it to the other leg (1000/1001
// normal, 1011 internal error).
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string { return e.Text }

// Relay runs a full-duplex, binary-clean copy loop between two WebSocket
// connections until either side closes, then cancels the other. There is
// no cross-leg ordering guarantee between the two directions; RFB
// tolerates that.
func Relay(ctx context.Context, a, b *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- pump(ctx, a, b) }()
	go func() { errs <- pump(ctx, b, a) }()

	first := <-errs
	cancel()
	// pump's blocking ReadMessage does not observe ctx directly; force it
	// to return by closing the underlying connections, so the other leg
	// unblocks immediately rather than waiting for its own next I/O event.
	_ = a.Close()
	_ = b.Close()
	<-errs // wait for the second pump to observe the close and exit
	return first
}

// pump copies WebSocket messages from src to dst until ctx is cancelled
// or either side errors/closes. Each message is relayed whole, so byte
// sequences arrive framed exactly as sent.
func pump(ctx context.Context, src, dst *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, data, err := src.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				return &CloseError{Code: ce.Code, Text: "peer closed"}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := dst.WriteMessage(msgType, data); err != nil {
			return err
		}
	}
}

// CodeOf extracts the WebSocket close code from err, defaulting to
// 1011 (internal error) for anything that isn't a recognized close.
func CodeOf(err error) int {
	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return websocket.CloseInternalServerErr
}
