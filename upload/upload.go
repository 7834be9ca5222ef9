package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/guseggert/cncremote/transport"
	"github.com/guseggert/cncremote/ui"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"nhooyr.io/websocket"
)

// ChunkSize is the size of every binary frame except possibly the last.
const ChunkSize = 1024

// ErrShortFile is returned when the reader ends before the declared size.
var ErrShortFile = errors.New("file shorter than its declared size")

// Writer is the outbound half of the upload connection.
type Writer interface {
	WriteText(ctx context.Context, s string) error
	WriteBinary(ctx context.Context, b []byte) error
}

// Conn is an open upload connection.
type Conn interface {
	Writer
	Events() <-chan transport.Event
	CloseWithStatus(code websocket.StatusCode, reason string) error
}

// Transfer is the state of one upload.
type Transfer struct {
	ID         uuid.UUID
	FileName   string
	TotalBytes int64
	ChunkSize  int

	mut       sync.Mutex
	bytesSent int64
	chunks    int
}

func (t *Transfer) addChunk(n int) {
	t.mut.Lock()
	t.bytesSent += int64(n)
	t.chunks++
	t.mut.Unlock()
}

func (t *Transfer) BytesSent() int64 {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.bytesSent
}

// Chunks returns the number of binary frames sent so far.
func (t *Transfer) Chunks() int {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.chunks
}

// Result is the outcome of an upload once the channel closed.
type Result struct {
	Transfer  *Transfer
	CloseCode websocket.StatusCode
}

type Session struct {
	log       *zap.SugaredLogger
	sinks     ui.Sinks
	chunkSize int
}

type Option func(s *Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.log = l.Named("upload_session").Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(s *Session) {
		s.log = s.log.WithOptions(zap.IncreaseLevel(l))
	}
}

// WithChunkSize overrides ChunkSize. Controllers expect the default.
func WithChunkSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func NewSession(sinks ui.Sinks, opts ...Option) *Session {
	s := &Session{
		log:       zap.NewNop().Sugar(),
		sinks:     sinks.WithDefaults(),
		chunkSize: ChunkSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) newTransfer(name string, size int64) *Transfer {
	return &Transfer{
		ID:         uuid.New(),
		FileName:   name,
		TotalBytes: size,
		ChunkSize:  s.chunkSize,
	}
}

// Send frames the transfer on w: the name, the length, then the contents in chunks.
// The reader must provide at least size bytes; anything past size is not sent.
func (s *Session) Send(ctx context.Context, w Writer, name string, r io.Reader, size int64) (*Transfer, error) {
	t := s.newTransfer(name, size)
	return t, s.send(ctx, w, t, r)
}

func (s *Session) send(ctx context.Context, w Writer, t *Transfer, r io.Reader) error {
	log := s.log.With("Transfer", t.ID.String())
	log.Debugw("uploading file", "Name", t.FileName, "Length", t.TotalBytes)

	if err := w.WriteText(ctx, t.FileName); err != nil {
		return fmt.Errorf("sending file name: %w", err)
	}
	if err := w.WriteText(ctx, strconv.FormatInt(t.TotalBytes, 10)); err != nil {
		return fmt.Errorf("sending file length: %w", err)
	}

	cw := newChunkWriter(ctx, log.Named("chunk_writer"), w, t.ChunkSize, t.addChunk)
	_, err := io.CopyN(cw, r, t.TotalBytes)
	closeErr := cw.Close()
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: sent %d of %d bytes", ErrShortFile, t.BytesSent(), t.TotalBytes)
	}
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	log.Debugw("done sending file", "Chunks", t.Chunks(), "Bytes", t.BytesSent())
	return nil
}

// Upload runs a transfer on an open upload connection and returns once the connection has closed.
//
// Frames are sent as soon as the connection reports it is open. Every inbound message is appended to the upload
// result sink, transport errors go to the upload error sink, and the close code is reported on the upload status sink.
// If ctx is done the connection is closed, which aborts the transfer.
func (s *Session) Upload(ctx context.Context, conn Conn, name string, r io.Reader, size int64) (*Result, error) {
	t := s.newTransfer(name, size)
	sendErrCh := make(chan error, 1)
	var sendErr error
	started, sendDone := false, false
	ctxDone := ctx.Done()

	onSendDone := func(err error) {
		sendDone = true
		if err != nil {
			sendErr = err
			s.sinks.UploadError.ReportError(err.Error())
			if err := conn.CloseWithStatus(websocket.StatusInternalError, err.Error()); err != nil {
				s.log.Debugf("error closing upload conn: %s", err)
			}
			return
		}
		s.sinks.UploadStatus.SetStatus("the File has been transferred.")
	}

	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			s.log.Debugf("upload context done: %s", ctx.Err())
			if err := conn.CloseWithStatus(websocket.StatusGoingAway, "upload canceled"); err != nil {
				s.log.Debugf("error closing upload conn: %s", err)
			}
		case err := <-sendErrCh:
			onSendDone(err)
		case ev, ok := <-conn.Events():
			if !ok {
				return &Result{Transfer: t}, s.finalErr(ctx, sendErr)
			}
			switch ev.Type {
			case transport.EventOpened:
				s.sinks.UploadStatus.SetStatus("Connected.")
				if !started {
					started = true
					go func() {
						sendErrCh <- s.send(ctx, conn, t, r)
					}()
				}
			case transport.EventMessage:
				s.sinks.UploadResult.AppendUploadResult(ev.Text())
			case transport.EventError:
				s.log.Debugf("upload transport error: %s", ev.Err)
				s.sinks.UploadError.ReportError("There was an ERROR: " + ev.Err.Error())
			case transport.EventClosed:
				if started && !sendDone {
					// writes fail fast once the connection is gone
					onSendDone(<-sendErrCh)
				}
				s.sinks.UploadStatus.SetStatus(fmt.Sprintf("Connection is closed...%d", ev.Code))
				return &Result{Transfer: t, CloseCode: ev.Code}, s.finalErr(ctx, sendErr)
			}
		}
	}
}

func (s *Session) finalErr(ctx context.Context, sendErr error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("upload canceled: %w", ctx.Err())
	}
	return sendErr
}
