package bridge

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
)

type fakeBridge struct {
	closed bool
}

func (f *fakeBridge) Serve(ctx context.Context, downstream *websocket.Conn) error { return nil }
func (f *fakeBridge) Close() error {
	f.closed = true
	return nil
}

func TestTablePutAndGet(t *testing.T) {
	tbl := NewTable()
	b := &fakeBridge{}
	tbl.Put("s1", b)

	got, ok := tbl.Get("s1")
	if !ok || got != b {
		t.Fatal("expected to retrieve the registered bridge")
	}
}

func TestTablePutTakeoverClosesPrevious(t *testing.T) {
	tbl := NewTable()
	first := &fakeBridge{}
	second := &fakeBridge{}

	tbl.Put("s1", first)
	tbl.Put("s1", second)

	if !first.closed {
		t.Fatal("expected prior bridge closed on takeover")
	}
	got, _ := tbl.Get("s1")
	if got != second {
		t.Fatal("expected second bridge to be the live entry")
	}
}

func TestTableTerminateClosesAndRemoves(t *testing.T) {
	tbl := NewTable()
	b := &fakeBridge{}
	port := tbl.Ports().Allocate("s1")
	tbl.Put("s1", b)

	tbl.Terminate("s1")

	if !b.closed {
		t.Fatal("expected bridge closed on terminate")
	}
	if _, ok := tbl.Get("s1"); ok {
		t.Fatal("expected entry removed after terminate")
	}
	if _, taken := tbl.Ports().byPort[port]; taken {
		t.Fatal("expected port released on terminate")
	}
}

func TestTableTerminateUnknownSessionIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Terminate("never-registered") // must not panic
}

func TestTableShutdownClosesAll(t *testing.T) {
	tbl := NewTable()
	b1, b2 := &fakeBridge{}, &fakeBridge{}
	tbl.Put("s1", b1)
	tbl.Put("s2", b2)

	tbl.Shutdown()

	if !b1.closed || !b2.closed {
		t.Fatal("expected all bridges closed on shutdown")
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table after shutdown, got %d entries", tbl.Len())
	}
}

func TestTableOnlyOneLiveBridgePerSession(t *testing.T) {
	tbl := NewTable()
	tbl.Put("s1", &fakeBridge{})
	tbl.Put("s1", &fakeBridge{})
	tbl.Put("s1", &fakeBridge{})

	if tbl.Len() != 1 {
		t.Fatalf("expected exactly one live bridge for s1, got %d", tbl.Len())
	}
}
