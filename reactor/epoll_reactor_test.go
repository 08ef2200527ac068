//go:build linux
// +build linux

package reactor_test

import (
	"testing"
	"time"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpoll_TokenRoundTrip(t *testing.T) {
	p, err := reactor.New()
	require.NoError(t, err)
	defer p.Close()

	a, b := socketPair(t)
	const token = uint64(1)<<40 | 0xdeadbeef
	require.NoError(t, p.Add(a, token, api.InterestRead))

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events := make([]api.Event, 8)
	n, err := p.Wait(events, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, token, events[0].Token)
	assert.True(t, events[0].Ready.Has(api.Readable))
	assert.False(t, events[0].Ready.Has(api.Writable))
}

func TestEpoll_ModifyAndRemove(t *testing.T) {
	p, err := reactor.New()
	require.NoError(t, err)
	defer p.Close()

	a, _ := socketPair(t)
	require.NoError(t, p.Add(a, 5, 0))

	events := make([]api.Event, 4)
	n, err := p.Wait(events, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n, "no interest must report nothing")

	require.NoError(t, p.Modify(a, 5, api.InterestWrite))
	n, err = p.Wait(events, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.True(t, events[0].Ready.Has(api.Writable))

	require.NoError(t, p.Remove(a))
	assert.ErrorIs(t, p.Remove(a), api.ErrNotFound)
}

func TestEpoll_WaitIsBounded(t *testing.T) {
	p, err := reactor.New()
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	n, err := p.Wait(make([]api.Event, 1), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), time.Second)
}
