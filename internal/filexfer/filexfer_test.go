package filexfer

import (
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func portOf(t *testing.T, r *Receive) int {
	t.Helper()
	addr, ok := r.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}

func waitDone(t *testing.T, r *Receive) Result {
	t.Helper()
	select {
	case <-r.Done():
		return r.Result()
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not finish")
		return Result{}
	}
}

func TestTransferSizes(t *testing.T) {
	for _, size := range []int{0, 1, 1023, 1024, 1_000_000} {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "payload.bin")
			data := make([]byte, size)
			_, err := rand.Read(data)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(src, data, 0o644))

			downloads := filepath.Join(t.TempDir(), "Downloads")
			rx := New(Options{DownloadDir: downloads})
			r, err := rx.ReceiveFile(context.Background(), "payload.bin")
			require.NoError(t, err)

			tx := New(Options{Port: portOf(t, r)})
			n, err := tx.SendFile(context.Background(), src, "127.0.0.1")
			require.NoError(t, err)
			require.EqualValues(t, size, n)

			res := waitDone(t, r)
			require.NoError(t, res.Err)
			require.EqualValues(t, size, res.Bytes)
			require.Equal(t, filepath.Join(downloads, "payload.bin"), res.Path)

			got, err := os.ReadFile(res.Path)
			require.NoError(t, err)
			require.Equal(t, data, got)
		})
	}
}

func TestSecondReceiveOnSamePortFails(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := New(Options{DownloadDir: dir}).ReceiveFile(ctx, "a.txt")
	require.NoError(t, err)

	_, err = New(Options{Port: portOf(t, first), DownloadDir: dir}).ReceiveFile(ctx, "b.txt")
	require.ErrorIs(t, err, ErrIO)
}

func TestCancelBeforeConnect(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	r, err := New(Options{DownloadDir: dir}).ReceiveFile(ctx, "never.txt")
	require.NoError(t, err)
	cancel()

	res := waitDone(t, r)
	require.ErrorIs(t, res.Err, context.Canceled)
	_, err = os.Stat(filepath.Join(dir, "never.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	// The port is released.
	ln, err := net.Listen("tcp", r.Addr().String())
	require.NoError(t, err)
	ln.Close()
}

func TestWaitReturnsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, err := New(Options{DownloadDir: t.TempDir()}).ReceiveFile(ctx, "x")
	require.NoError(t, err)
	cancel()

	path, n, err := r.Wait()
	require.Empty(t, path)
	require.Zero(t, n)
	require.ErrorIs(t, err, context.Canceled)
}

func TestInvalidFileName(t *testing.T) {
	s := New(Options{DownloadDir: t.TempDir()})
	for _, name := range []string{"", ".", "..", "../evil", "a/b", `a\b`, "/etc/passwd"} {
		_, err := s.ReceiveFile(context.Background(), name)
		require.ErrorIs(t, err, ErrIO, "name %q", name)
	}
}

func TestSendMissingFile(t *testing.T) {
	_, err := New(Options{Port: 1}).SendFile(context.Background(), filepath.Join(t.TempDir(), "missing"), "127.0.0.1")
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSendNobodyListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	src := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err = New(Options{Port: port, DialTimeout: time.Second}).SendFile(context.Background(), src, "127.0.0.1")
	require.ErrorIs(t, err, ErrIO)
}
