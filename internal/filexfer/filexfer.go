// Package filexfer moves whole files between peers over a raw TCP stream.
//
// The receiver binds the file port, accepts exactly one connection and
// writes everything it reads into the downloads directory until the sender
// closes. There is no header, length prefix or checksum: the end of the file
// is the end of the stream.
package filexfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/1ureka/lanchat/internal/util"
)

// ErrIO wraps every transfer failure: filesystem, bind, dial and stream
// errors alike.
var ErrIO = errors.New("file transfer")

const (
	readBlockSize      = 1024
	defaultDialTimeout = 10 * time.Second
)

// Options configures a Session.
type Options struct {
	Port        int           // TCP file port, 0 binds an ephemeral port
	DownloadDir string        // where received files are written
	DialTimeout time.Duration // bound on connecting to the receiver
}

// Session sends and receives files on one port.
type Session struct {
	opts Options
}

// New creates a Session. A zero DialTimeout means 10 seconds.
func New(opts Options) *Session {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	return &Session{opts: opts}
}

// SendFile reads the file at path and streams it to destIP's file port. It
// returns the number of bytes written. Nothing is retried.
func (s *Session) SendFile(ctx context.Context, path, destIP string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}

	addr := net.JoinHostPort(destIP, strconv.Itoa(s.opts.Port))
	dialer := net.Dialer{Timeout: s.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("%w: dial %s: %w", ErrIO, addr, err)
	}
	defer conn.Close()

	// Unblock the write if ctx is cancelled mid-transfer.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	util.LogDebug("file: sending %s (%s) to %s", filepath.Base(path), humanize.IBytes(uint64(len(data))), addr)

	n, err := conn.Write(data)
	util.Stats.AddFileSent(n)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return int64(n), fmt.Errorf("%w: write to %s: %w", ErrIO, addr, err)
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return int64(n), fmt.Errorf("%w: close %s: %w", ErrIO, addr, err)
	}
	return int64(n), nil
}

// ReceiveFile binds the file port and waits for one sender in the
// background. Bind errors are returned immediately, so a second concurrent
// receive on the same port fails here. Cancelling ctx stops the receive.
func (s *Session) ReceiveFile(ctx context.Context, fileName string) (*Receive, error) {
	if err := validName(fileName); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrIO, s.opts.DownloadDir, err)
	}

	addr := ":" + strconv.Itoa(s.opts.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", ErrIO, addr, err)
	}

	r := &Receive{
		ln:   ln,
		path: filepath.Join(s.opts.DownloadDir, fileName),
		done: make(chan struct{}),
	}
	go r.run(ctx)

	util.LogDebug("file: waiting for %s on %s", fileName, ln.Addr())
	return r, nil
}

// validName accepts a bare file name only.
func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: invalid file name %q", ErrIO, name)
	case strings.ContainsAny(name, `/\`), filepath.Base(name) != name, filepath.IsAbs(name):
		return fmt.Errorf("%w: file name %q must not contain a path", ErrIO, name)
	}
	return nil
}
