package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	cfg.Address = "127.0.0.1:0"
	return cfg
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(Config{Address: ":0"})
	assert.Error(t, err)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}

func TestGracefulShutdown_RunsHooksInOrder(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, srv.Listen())

	gs := NewGracefulShutdown(srv, time.Second, nil)
	var order []string
	gs.RegisterHook("jobs", func(ctx context.Context) error {
		order = append(order, "jobs")
		return nil
	})
	gs.RegisterHook("redis", func(ctx context.Context) error {
		order = append(order, "redis")
		return errors.New("already closed")
	})
	gs.RegisterHook("db", func(ctx context.Context) error {
		order = append(order, "db")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr())
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis")
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	assert.Equal(t, []string{"jobs", "redis", "db"}, order)
}

func TestGracefulShutdown_ListenError(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "256.0.0.1:99999"
	srv, err := New(cfg)
	require.NoError(t, err)

	err = NewGracefulShutdown(srv, time.Second, nil).Run(context.Background())
	assert.Error(t, err)
}
