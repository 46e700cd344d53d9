package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestServeStreamsWorkload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrc := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Host:        "127.0.0.1",
		Port:        0,
		Interval:    10 * time.Millisecond,
		Orders:      1,
		Ready:       func(addr string) { addrc <- addr },
	}
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(ctx)

	errc := make(chan error, 1)
	go func() { errc <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-addrc:
	case err := <-errc:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}

	conn, err := websocket.Dial("ws://"+addr+"/ws", "", "http://"+addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	var first streamMessage
	require.NoError(t, websocket.JSON.Receive(conn, &first))
	assert.Equal(t, "snapshot", first.Type)

	var update map[string]any
	require.NoError(t, websocket.JSON.Receive(conn, &update))
	assert.Contains(t, []any{"log", "count", "hist", "timeline", "happened"}, update["type"])

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, out.String(), "Serving live report on http://"+addr)
}

func TestServePortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Host:        "127.0.0.1",
		Port:        port,
	}
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err = runServe(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to start live server")
}
