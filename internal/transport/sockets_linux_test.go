//go:build linux
// +build linux

package transport_test

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopback = netip.MustParseAddrPort("127.0.0.1:0")

func eventually(t *testing.T, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := fn()
		if !errors.Is(err, api.ErrWouldBlock) {
			require.NoError(t, err)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("operation never completed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSockets_ConnectAcceptRelay(t *testing.T) {
	s := transport.NewSockets()
	lfd, err := s.Listen(loopback)
	require.NoError(t, err)
	defer s.Close(lfd)

	addr, err := s.LocalAddr(lfd)
	require.NoError(t, err)
	require.NotZero(t, addr.Port())

	cfd, connected, err := s.Connect(addr)
	require.NoError(t, err)
	defer s.Close(cfd)
	if !connected {
		eventually(t, func() error { return s.FinishConnect(cfd) })
	}

	var afd int
	eventually(t, func() error {
		var err error
		afd, _, err = s.Accept(lfd)
		return err
	})
	defer s.Close(afd)

	n, err := s.Write(cfd, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 16)
	eventually(t, func() error {
		var err error
		n, err = s.Read(afd, buf)
		return err
	})
	assert.Equal(t, "ping", string(buf[:n]))

	require.NoError(t, s.Close(cfd))
	eventually(t, func() error {
		var err error
		n, err = s.Read(afd, buf)
		return err
	})
	assert.Zero(t, n, "orderly shutdown reads as zero bytes")
}

func TestSockets_AcceptWouldBlock(t *testing.T) {
	s := transport.NewSockets()
	lfd, err := s.Listen(loopback)
	require.NoError(t, err)
	defer s.Close(lfd)

	_, _, err = s.Accept(lfd)
	assert.ErrorIs(t, err, api.ErrWouldBlock)
}

func TestSockets_ConnectRefused(t *testing.T) {
	s := transport.NewSockets()
	lfd, err := s.Listen(loopback)
	require.NoError(t, err)
	addr, err := s.LocalAddr(lfd)
	require.NoError(t, err)
	require.NoError(t, s.Close(lfd))

	fd, _, err := s.Connect(addr)
	if err != nil {
		return // refused synchronously
	}
	defer s.Close(fd)

	deadline := time.Now().Add(2 * time.Second)
	for {
		err = s.FinishConnect(fd)
		if !errors.Is(err, api.ErrWouldBlock) {
			break
		}
		require.True(t, time.Now().Before(deadline), "connect never failed")
		time.Sleep(time.Millisecond)
	}
	assert.Error(t, err)
}
