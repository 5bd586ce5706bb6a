package server

import (
	"context"
	"io"
	"sync"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
)

// bufferedWriter decouples outbound writes from the socket so a slow reader
// on the far side cannot stall the routing fabric. Writes append to an
// in-memory buffer and never block; a drain task owns the socket. The buffer
// has a hard ceiling, beyond which the connection is torn down rather than
// allowed to grow without bound.
type bufferedWriter struct {
	w       io.Writer
	maxData int

	mu   sync.Mutex
	buf  []byte
	err  error
	wake chan struct{}
}

func newBufferedWriter(w io.Writer, maxData int) *bufferedWriter {
	return &bufferedWriter{
		w:       w,
		maxData: maxData,
		wake:    make(chan struct{}, 1),
	}
}

// Write enqueues framed bytes without blocking. Once the writer has failed,
// further writes return the stored error and data is discarded.
func (b *bufferedWriter) Write(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if len(b.buf)+len(p) > b.maxData {
		b.err = errors.ErrSendBufferFull
		b.buf = nil
		b.signal()
		return b.err
	}
	b.buf = append(b.buf, p...)
	b.signal()
	return nil
}

func (b *bufferedWriter) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run drains the buffer to the socket until the context is cancelled or the
// writer fails. The socket write happens outside the lock so enqueuing never
// waits on the network.
func (b *bufferedWriter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.wake:
		}

		b.mu.Lock()
		if b.err != nil {
			err := b.err
			b.mu.Unlock()
			return err
		}
		pending := b.buf
		b.buf = nil
		b.mu.Unlock()

		if len(pending) == 0 {
			continue
		}
		if _, err := b.w.Write(pending); err != nil {
			b.mu.Lock()
			b.err = err
			b.mu.Unlock()
			return err
		}
	}
}
