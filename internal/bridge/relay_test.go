package bridge

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsEchoServer upgrades every request and hands the connection to fn on
// its own goroutine, mirroring the one-relay-per-upgrade shape the
// gateway endpoints use in production.
func wsEchoServer(t *testing.T, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, err := dialWSErr(srv)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// dialWSErr is dialWS without the *testing.T dependency, for use inside
// server-handler goroutines where calling t.Fatalf would be invalid
// (it must only be called from the goroutine running the test).
func dialWSErr(srv *httptest.Server) (*websocket.Conn, error) {
	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

// TestRelayBinaryTransparency: an arbitrary byte sequence pushed
// through the relay's downstream leg arrives unchanged, framed at
// message boundaries, on the upstream leg, and vice versa.
func TestRelayBinaryTransparency(t *testing.T) {
	payload := []byte{0x52, 0x46, 0x42, 0x20, 0x30, 0x30, 0x33, 0x2E, 0x30, 0x30, 0x38, 0x0A}

	// The "upstream" side: echoes whatever it receives straight back.
	upstreamSrv := wsEchoServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, data)
	})

	// The "downstream" side: on upgrade, dials the upstream and relays.
	relaySrv := wsEchoServer(t, func(downstream *websocket.Conn) {
		defer downstream.Close()
		upstream, err := dialWSErr(upstreamSrv)
		if err != nil {
			return
		}
		defer upstream.Close()
		_ = Relay(context.Background(), downstream, upstream)
	})

	browserConn := dialWS(t, relaySrv)
	defer browserConn.Close()

	if err := browserConn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, got, err := browserConn.ReadMessage()
	if err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %x, want %x", got, payload)
	}
}

// TestRelayCancellationClosesBothLegs: closing one leg causes the
// relay to tear down the other within a bounded grace period.
func TestRelayCancellationClosesBothLegs(t *testing.T) {
	// upstreamAccepted is the server-side end of the relay's upstream
	// leg: a distinct *websocket.Conn object from the one Relay itself
	// reads/writes, so the test can observe its teardown without a
	// concurrent-reader race on the conn Relay owns.
	upstreamAccepted := make(chan *websocket.Conn, 1)
	block := make(chan struct{})
	upstreamSrv := wsEchoServer(t, func(conn *websocket.Conn) {
		upstreamAccepted <- conn
		<-block // held open until the test tears it down explicitly
	})

	relaySrv := wsEchoServer(t, func(downstream *websocket.Conn) {
		upstream, err := dialWSErr(upstreamSrv)
		if err != nil {
			return
		}
		_ = Relay(context.Background(), downstream, upstream)
	})
	browserConn := dialWS(t, relaySrv)

	acceptedUpstream := <-upstreamAccepted
	defer close(block)

	// Closing the browser leg must cause Relay to close its dialed
	// upstream conn, which the server-accepted peer observes as a read
	// error.
	upstreamClosed := make(chan error, 1)
	go func() {
		_, _, err := acceptedUpstream.ReadMessage()
		upstreamClosed <- err
	}()

	_ = browserConn.Close()

	select {
	case err := <-upstreamClosed:
		if err == nil {
			t.Fatal("expected upstream read to fail after relay teardown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream leg did not close within the 2s grace period")
	}
}
