package upload

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// chunkWriter buffers writes and sends them as binary frames of exactly size bytes.
// Close sends the remaining short chunk, if any.
type chunkWriter struct {
	log  *zap.SugaredLogger
	ctx  context.Context
	conn Writer
	buf  []byte

	// onChunk is called after each frame is sent, with the frame length.
	onChunk func(n int)
}

func newChunkWriter(ctx context.Context, log *zap.SugaredLogger, conn Writer, size int, onChunk func(n int)) *chunkWriter {
	return &chunkWriter{
		log:     log,
		ctx:     ctx,
		conn:    conn,
		buf:     make([]byte, 0, size),
		onChunk: onChunk,
	}
}

func (w *chunkWriter) Write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		n := copy(w.buf[len(w.buf):cap(w.buf)], b)
		w.buf = w.buf[:len(w.buf)+n]
		b = b[n:]
		written += n
		if len(w.buf) == cap(w.buf) {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *chunkWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	n := len(w.buf)
	err := w.conn.WriteBinary(w.ctx, w.buf)
	if err != nil {
		return fmt.Errorf("sending %d byte chunk: %w", n, err)
	}
	w.buf = w.buf[:0]
	if w.onChunk != nil {
		w.onChunk(n)
	}
	return nil
}

func (w *chunkWriter) Close() error {
	err := w.flush()
	w.log.Debugw("closed chunk writer", "Error", err)
	return err
}
