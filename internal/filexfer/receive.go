package filexfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/1ureka/lanchat/internal/util"
)

// Result is the outcome of one inbound transfer.
type Result struct {
	Path  string
	Bytes int64
	Err   error
}

// Receive is an inbound transfer in progress.
type Receive struct {
	ln     net.Listener
	path   string
	done   chan struct{}
	result Result
}

// Addr returns the bound listener address.
func (r *Receive) Addr() net.Addr {
	return r.ln.Addr()
}

// Done is closed when the transfer has finished, successfully or not.
func (r *Receive) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (r *Receive) Result() Result {
	<-r.done
	return r.result
}

// Wait blocks until the transfer ends.
func (r *Receive) Wait() (string, int64, error) {
	res := r.Result()
	return res.Path, res.Bytes, res.Err
}

// run accepts exactly one connection and streams it to disk.
func (r *Receive) run(ctx context.Context) {
	defer close(r.done)
	r.result = r.receive(ctx)
}

func (r *Receive) receive(ctx context.Context) Result {
	// Close the listener when ctx is done so Accept returns.
	stopAccept := context.AfterFunc(ctx, func() { r.ln.Close() })

	conn, err := r.ln.Accept()
	stopAccept()
	r.ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return Result{Err: ctx.Err()}
		}
		return Result{Err: fmt.Errorf("%w: accept: %w", ErrIO, err)}
	}
	defer conn.Close()

	util.LogDebug("file: %s connected", conn.RemoteAddr())

	stopRead := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopRead()

	f, err := os.Create(r.path)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: create %s: %w", ErrIO, r.path, err)}
	}

	n, err := copyBlocks(f, conn)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: close %s: %w", ErrIO, r.path, closeErr)
	}
	if err != nil {
		os.Remove(r.path)
		if ctx.Err() != nil {
			return Result{Bytes: n, Err: ctx.Err()}
		}
		return Result{Bytes: n, Err: err}
	}

	return Result{Path: r.path, Bytes: n}
}

// copyBlocks reads src in fixed blocks until EOF and writes each block to
// dst.
func copyBlocks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, readBlockSize)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("%w: write: %w", ErrIO, werr)
			}
			total += int64(n)
			util.Stats.AddFileRecv(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("%w: read: %w", ErrIO, err)
		}
	}
}
