package daemon

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForListen(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("nothing listening on %s after %s", addr, timeout)
}

func TestStartServesMainHandlerAndShutsDownCleanly(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr := NewManager(Config{
		ListenAddr:      addr,
		ShutdownTimeout: 2 * time.Second,
	}, http.NotFoundHandler(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	waitForListen(t, addr, time.Second)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after shutdown signal")
	}
}

func TestStartTwiceReturnsErrAlreadyStarted(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr := NewManager(Config{ListenAddr: addr, ShutdownTimeout: time.Second}, http.NotFoundHandler(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mgr.Start(ctx) }()
	waitForListen(t, addr, time.Second)

	err := mgr.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestShutdownHooksRunInReverseOrder(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr := NewManager(Config{ListenAddr: addr, ShutdownTimeout: 2 * time.Second}, http.NotFoundHandler(), nil, nil)

	var order []string
	mgr.RegisterShutdownHook("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	mgr.RegisterShutdownHook("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	waitForListen(t, addr, time.Second)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after shutdown signal")
	}
	require.Equal(t, []string{"second", "first"}, order)
}

func TestShutdownBeforeStartReturnsErrNotStarted(t *testing.T) {
	mgr := NewManager(Config{ShutdownTimeout: time.Second}, http.NotFoundHandler(), nil, nil)
	err := mgr.Shutdown(context.Background())
	require.ErrorIs(t, err, ErrNotStarted)
}
