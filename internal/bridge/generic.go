package bridge

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/logger"
)

// execCommandContext is a seam over exec.CommandContext for tests.
var execCommandContext = exec.CommandContext

// ProbeAttempts and ProbeInterval bound the adapter bind wait: TCP
// connect, up to 10 attempts at 500ms spacing. Vars rather than consts so
// tests can shrink the probe window.
var (
	ProbeAttempts = 10
	ProbeInterval = 500 * time.Millisecond
)

// GenericConfig configures the external WebSocket-to-TCP adapter process.
type GenericConfig struct {
	// AdapterPath is the executable that listens on a local port and
	// forwards to host:port while also serving a static viewer tree.
	AdapterPath string
	// WebRoot is the static viewer asset directory passed to the adapter.
	WebRoot string
}

// GenericBridge is a per-session WebSocket-to-TCP adapter bound to an
// ephemeral local port.
type GenericBridge struct {
	sessionID string
	localPort int
	cmd       *exec.Cmd
}

// StartGenericBridge launches the adapter process and waits for it to
// bind. Returns a BridgeStartupFailure AppError, with the adapter's
// captured output, if it never binds within ProbeAttempts*ProbeInterval.
func StartGenericBridge(ctx context.Context, sessionID, host string, port, localPort int, cfg GenericConfig) (*GenericBridge, error) {
	log := logger.Bridge().With().Str("session", sessionID).Int("local_port", localPort).Logger()

	var stdout, stderr bytes.Buffer
	cmd := execCommandContext(ctx, cfg.AdapterPath,
		fmt.Sprintf("%d", localPort),
		fmt.Sprintf("%s:%d", host, port),
		"--web", cfg.WebRoot,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, apperrors.BridgeStartupFailure(sessionID, fmt.Errorf("launch adapter: %w", err))
	}

	b := &GenericBridge{sessionID: sessionID, localPort: localPort, cmd: cmd}

	if !probePort(localPort) {
		_ = b.Close()
		log.Warn().Str("stdout", stdout.String()).Str("stderr", stderr.String()).Msg("adapter failed to bind")
		return nil, apperrors.BridgeStartupFailure(sessionID,
			fmt.Errorf("adapter did not bind to port %d within %d attempts: stderr=%q", localPort, ProbeAttempts, stderr.String()))
	}

	log.Info().Str("host", host).Int("port", port).Msg("generic bridge started")
	return b, nil
}

func probePort(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for attempt := 0; attempt < ProbeAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", addr, ProbeInterval)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(ProbeInterval)
	}
	return false
}

// Serve opens a local WebSocket client to the adapter and relays between
// it and downstream until either side closes.
func (b *GenericBridge) Serve(ctx context.Context, downstream *websocket.Conn) error {
	local, _, err := websocket.DefaultDialer.DialContext(ctx, (&url.URL{
		Scheme: "ws", Host: fmt.Sprintf("127.0.0.1:%d", b.localPort), Path: "/",
	}).String(), nil)
	if err != nil {
		return apperrors.BridgeStartupFailure(b.sessionID, fmt.Errorf("dial local adapter: %w", err))
	}
	defer local.Close()

	return Relay(ctx, downstream, local)
}

// Close terminates the adapter subprocess.
func (b *GenericBridge) Close() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	return b.cmd.Process.Kill()
}
