package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	apperrors "github.com/legacy-use/gateway/internal/errors"
)

// fakeExecCommandContext re-invokes this test binary as the "adapter"
// subprocess, selecting behavior via GO_WANT_HELPER_PROCESS (the standard
// os/exec self-exec test idiom) so StartGenericBridge can be exercised
// without a real adapter binary on disk.
func fakeExecCommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

// TestHelperProcess is not a real test; it is the subprocess body invoked
// by fakeExecCommandContext. It binds the local port passed as argv[0]
// and sits until killed, emulating a real websocket adapter binding.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) > 1 {
		if ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%s", args[1])); err == nil {
			defer ln.Close()
			time.Sleep(10 * time.Second)
		}
	}
	os.Exit(0)
}

func TestStartGenericBridgeSucceedsWhenAdapterBinds(t *testing.T) {
	orig := execCommandContext
	execCommandContext = fakeExecCommandContext
	defer func() { execCommandContext = orig }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	localPort := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	b, err := StartGenericBridge(context.Background(), "s1", "10.0.0.1", 5900, localPort, GenericConfig{
		AdapterPath: "fake-adapter",
		WebRoot:     "/var/www",
	})
	if err != nil {
		t.Fatalf("StartGenericBridge: %v", err)
	}
	defer b.Close()

	if b.localPort != localPort {
		t.Fatalf("expected localPort %d, got %d", localPort, b.localPort)
	}
}

func TestStartGenericBridgeFailsWhenAdapterNeverBinds(t *testing.T) {
	origExec := execCommandContext
	execCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "true")
	}
	defer func() { execCommandContext = origExec }()

	origAttempts, origInterval := ProbeAttempts, ProbeInterval
	ProbeAttempts, ProbeInterval = 2, 10*time.Millisecond
	defer func() { ProbeAttempts, ProbeInterval = origAttempts, origInterval }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	localPort := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = StartGenericBridge(context.Background(), "s1", "10.0.0.1", 5900, localPort, GenericConfig{
		AdapterPath: "fake-adapter",
	})
	if err == nil {
		t.Fatal("expected error when adapter never binds")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != apperrors.CodeBridgeStartupFailure {
		t.Fatalf("expected CodeBridgeStartupFailure, got %s", appErr.Code)
	}
}
