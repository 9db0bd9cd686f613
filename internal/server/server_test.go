// Package server provides end-to-end tests over real TCP connections.
package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jassi-singh/ember-kv/internal/client"
	"github.com/jassi-singh/ember-kv/internal/engine"
	"github.com/jassi-singh/ember-kv/internal/pool"
	"github.com/jassi-singh/ember-kv/internal/protocol"
)

// startServer boots a server on a loopback port with a fresh KV engine
// and returns its address.
func startServer(t *testing.T, poolKind string) string {
	t.Helper()

	e, err := engine.OpenKV(t.TempDir(), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	p, err := pool.New(poolKind, 4)
	require.NoError(t, err)

	srv := New(e, p)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	return srv.Addr()
}

func TestServer_SetGetRm(t *testing.T) {
	for _, poolKind := range []string{pool.KindNaive, pool.KindSharedQueue, pool.KindGroup} {
		t.Run(poolKind, func(t *testing.T) {
			addr := startServer(t, poolKind)

			resp, err := client.Set(addr, "k", "v")
			require.NoError(t, err)
			require.Empty(t, resp.Err)
			require.Nil(t, resp.Value)

			resp, err = client.Get(addr, "k")
			require.NoError(t, err)
			require.Empty(t, resp.Err)
			require.True(t, resp.Found)
			require.NotNil(t, resp.Value)
			require.Equal(t, "v", *resp.Value)

			resp, err = client.Get(addr, "missing")
			require.NoError(t, err)
			require.Empty(t, resp.Err)
			require.False(t, resp.Found)
			require.Nil(t, resp.Value)

			resp, err = client.Rm(addr, "k")
			require.NoError(t, err)
			require.Empty(t, resp.Err)

			resp, err = client.Rm(addr, "k")
			require.NoError(t, err)
			require.Equal(t, protocol.KindNonExistentKey, resp.Err)
		})
	}
}

func TestServer_UnknownOp(t *testing.T) {
	addr := startServer(t, pool.KindSharedQueue)

	resp, err := client.Do(addr, protocol.Request{Op: "scan", Key: "k"})
	require.NoError(t, err)
	require.Equal(t, protocol.KindOther, resp.Err)
}

func TestServer_ConcurrentClientsDisjointKeys(t *testing.T) {
	addr := startServer(t, pool.KindSharedQueue)

	var group errgroup.Group
	clients := 16
	perClient := 50
	for c := 0; c < clients; c++ {
		c := c
		group.Go(func() error {
			for i := 0; i < perClient; i++ {
				key := fmt.Sprintf("c%d-k%d", c, i)
				value := fmt.Sprintf("v%d-%d", c, i)

				resp, err := client.Set(addr, key, value)
				if err != nil {
					return err
				}
				if resp.Err != "" {
					return fmt.Errorf("set %s: %s", key, resp.Err)
				}

				resp, err = client.Get(addr, key)
				if err != nil {
					return err
				}
				if !resp.Found || resp.Value == nil || *resp.Value != value {
					return fmt.Errorf("get %s: got %v, want %q", key, resp.Value, value)
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}

func TestServer_CloseStopsAccepting(t *testing.T) {
	e, err := engine.OpenKV(t.TempDir(), engine.Options{})
	require.NoError(t, err)
	defer e.Close()

	p, err := pool.NewSharedQueue(2)
	require.NoError(t, err)

	srv := New(e, p)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	addr := srv.Addr()
	resp, err := client.Set(addr, "k", "v")
	require.NoError(t, err)
	require.Empty(t, resp.Err)

	require.NoError(t, srv.Close())
	require.NoError(t, <-done)

	_, err = client.Get(addr, "k")
	require.Error(t, err)
}
