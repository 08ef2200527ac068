//go:build linux
// +build linux

package server_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-proxy/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// echoBackend accepts connections and copies every byte straight back.
func echoBackend(t *testing.T) netip.AddrPort {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(conn)
		}
	}()
	return netip.MustParseAddrPort(l.Addr().String())
}

// startProxy runs a real proxy loop until the test ends.
func startProxy(t *testing.T, dest netip.AddrPort, mutate func(*server.Config)) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.ListenAddr = netip.MustParseAddrPort("127.0.0.1:0")
	cfg.Destination = dest
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := server.New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("proxy loop did not stop")
		}
	})
	return srv
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_FragmentedRoundTrip(t *testing.T) {
	srv := startProxy(t, echoBackend(t), func(c *server.Config) { c.ReadChunkSize = 1000 })

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	rng := rand.New(rand.NewSource(42))
	payload := make([]byte, 256<<10)
	rng.Read(payload)

	go func() {
		rest := payload
		for len(rest) > 0 {
			n := 1 + rng.Intn(4096)
			if n > len(rest) {
				n = len(rest)
			}
			if _, err := conn.Write(rest[:n]); err != nil {
				return
			}
			rest = rest[n:]
		}
	}()

	got := make([]byte, len(payload))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got), "echoed bytes differ")

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return srv.Stats().Live == 0 }, "pair was not torn down")
}

func TestRelay_ConcurrentPairs(t *testing.T) {
	pairs := 200
	if testing.Short() {
		pairs = 20
	}
	srv := startProxy(t, echoBackend(t), nil)

	var wg sync.WaitGroup
	errs := make(chan error, pairs)
	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", srv.Addr().String())
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

			msg := pattern(1024, seed)
			if _, err := conn.Write(msg); err != nil {
				errs <- err
				return
			}
			got := make([]byte, len(msg))
			if _, err := io.ReadFull(conn, got); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(msg, got) {
				errs <- errors.New("payload mismatch")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	waitFor(t, func() bool { return srv.Stats().Live == 0 }, "halves leaked")
	st := srv.Stats()
	assert.EqualValues(t, pairs, st.Accepted)
	assert.EqualValues(t, 2*pairs, st.Closed)
	assert.Zero(t, st.Connecting)
}

func TestRelay_RefusedBackendClosesClientQuickly(t *testing.T) {
	// grab a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := netip.MustParseAddrPort(l.Addr().String())
	require.NoError(t, l.Close())

	srv := startProxy(t, dead, func(c *server.Config) { c.ConnectTimeout = 5 * time.Second })

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		require.False(t, ne.Timeout(), "client was not closed before the read deadline")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	waitFor(t, func() bool { return srv.Stats().Live == 0 }, "refused pair leaked")
}

func TestRelay_BackendHangupFlushesToClient(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	greeting := bytes.Repeat([]byte("banner "), 10000)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		_, _ = c.Write(greeting)
		_ = c.Close()
	}()

	srv := startProxy(t, netip.MustParseAddrPort(l.Addr().String()), nil)
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, greeting, got)
	waitFor(t, func() bool { return srv.Stats().Live == 0 }, "pair leaked after drain")
}

func TestNew_BindFailureIsFatal(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := server.DefaultConfig()
	cfg.ListenAddr = netip.MustParseAddrPort(l.Addr().String())
	cfg.Destination = netip.MustParseAddrPort("127.0.0.1:9")
	_, err = server.New(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}
