package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/simlegate/onstomp/stomp"
	"github.com/simlegate/onstomp/stomp/log"
	"github.com/simlegate/onstomp/stomp/wsconn"
)

func TestRunServesBrokerAndMetrics(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ShutdownTimeout = time.Second
	var logs bytes.Buffer
	logger := log.NewConsoleAdapter(zerolog.SyncWriter(&logs), zerolog.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, listener, logger)
	}()

	base := listener.Addr().String()
	conn, err := wsconn.Dial(context.Background(), "ws://"+base+cfg.Path, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Transmit(stomp.NewFrame(stomp.CommandSend, stomp.HeaderDestination, "/queue/a")))

	require.Eventually(t, func() bool {
		response, err := http.Get("http://" + base + cfg.MetricsPath)
		if err != nil {
			return false
		}
		defer response.Body.Close()
		body, _ := io.ReadAll(response.Body)
		return bytes.Contains(body, []byte("fakestomp_frames_received_total 1"))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	_ = conn.Close()
	require.Contains(t, logs.String(), "fakestomp listening")
}

func TestRootCommandRejectsMissingConfig(t *testing.T) {
	cmd := newRootCommand(io.Discard)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")})
	require.ErrorContains(t, cmd.Execute(), "not found")
}

func TestRootCommandRejectsInvalidFlags(t *testing.T) {
	cmd := newRootCommand(io.Discard)
	cmd.SetArgs([]string{"--path", "stomp"})
	require.ErrorContains(t, cmd.Execute(), "must start with /")
}
