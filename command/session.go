package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/guseggert/cncremote/transport"
	"github.com/guseggert/cncremote/ui"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Writer is the outbound half of the command connection.
type Writer interface {
	WriteText(ctx context.Context, s string) error
	WriteBinary(ctx context.Context, b []byte) error
}

// Session issues commands and owns the routing state (silence flag, capture slot) of the command channel.
// Run and Query may be called from any goroutine, but concurrent calls race on the routing state:
// the last writer wins.
type Session struct {
	log   *zap.SugaredLogger
	sinks ui.Sinks
	r     *routing
	demux *Demux

	connMut sync.Mutex
	conn    Writer
}

type Option func(s *Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.log = l.Named("command_session").Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(s *Session) {
		s.log = s.log.WithOptions(zap.IncreaseLevel(l))
	}
}

func NewSession(sinks ui.Sinks, opts ...Option) *Session {
	s := &Session{
		log:   zap.NewNop().Sugar(),
		sinks: sinks.WithDefaults(),
		r:     &routing{},
	}
	for _, o := range opts {
		o(s)
	}
	s.demux = newDemux(s.log.Named("demux"), s.sinks, s.r)
	return s
}

// Demux returns the demultiplexer that shares this session's routing state.
func (s *Session) Demux() *Demux { return s.demux }

// Attach sets the connection commands are written to. A nil Writer detaches.
func (s *Session) Attach(w Writer) {
	s.connMut.Lock()
	s.conn = w
	s.connMut.Unlock()
}

// Detach clears the connection only if it is still w.
func (s *Session) Detach(w Writer) {
	s.connMut.Lock()
	if s.conn == w {
		s.conn = nil
	}
	s.connMut.Unlock()
}

func (s *Session) writer() (Writer, error) {
	s.connMut.Lock()
	defer s.connMut.Unlock()
	if s.conn == nil {
		return nil, transport.ErrNotConnected
	}
	return s.conn, nil
}

func (s *Session) State() State { return s.r.state() }

// Reset uninstalls any capture handler and clears the silence flag.
func (s *Session) Reset() {
	s.log.Debug("resetting routing state")
	s.r.reset()
}

// SendRaw writes b as-is, without a terminator. Used for single-byte control codes.
func (s *Session) SendRaw(ctx context.Context, b []byte) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	s.log.Debugw("sending raw bytes", "Len", len(b))
	if err := w.WriteBinary(ctx, b); err != nil {
		return fmt.Errorf("sending raw bytes: %w", err)
	}
	return nil
}

// send writes text without touching the routing state.
func (s *Session) send(ctx context.Context, text string) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	if err := w.WriteText(ctx, text); err != nil {
		return fmt.Errorf("sending %q: %w", text, err)
	}
	return nil
}

// Run sets the silence flag and sends the command followed by a newline.
func (s *Session) Run(ctx context.Context, text string, silent bool) error {
	s.r.setSilent(silent)
	s.log.Debugw("running command", "Command", text, "Silent", silent)
	return s.send(ctx, text+"\n")
}

func (s *Session) RunSilent(ctx context.Context, text string) error {
	return s.Run(ctx, text, true)
}

// Query installs a file listing capture and runs the command. onLine gets each matching file name,
// onComplete is called once when "End file list" arrives. If the terminator never arrives the capture stays
// installed until the next Query or Reset.
func (s *Session) Query(ctx context.Context, text string, onLine func(name string), onComplete func()) error {
	return s.QueryCapture(ctx, text, FileListCapture(onLine, onComplete))
}

// QueryCapture installs c, replacing any previous capture, and runs the command.
func (s *Session) QueryCapture(ctx context.Context, text string, c Capture) error {
	_, err := s.query(ctx, text, c)
	return err
}

func (s *Session) query(ctx context.Context, text string, c Capture) (uint64, error) {
	id := s.r.install(c.Handler(), c.OnComplete)
	s.log.Debugw("installed capture", "ID", id, "Terminator", c.Terminator)
	err := s.Run(ctx, text, false)
	if err != nil {
		s.r.uninstall(id)
		return 0, err
	}
	return id, nil
}

// ListFiles runs a file listing command and waits for its terminator.
// If ctx is done first, the capture is uninstalled (unless another query replaced it already).
func (s *Session) ListFiles(ctx context.Context, text string) ([]string, error) {
	var (
		mut   sync.Mutex
		names []string
		done  = make(chan struct{})
	)
	c := FileListCapture(
		func(name string) {
			mut.Lock()
			names = append(names, name)
			mut.Unlock()
		},
		func() { close(done) },
	)
	id, err := s.query(ctx, text, c)
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
		mut.Lock()
		defer mut.Unlock()
		return names, nil
	case <-ctx.Done():
		s.r.uninstall(id)
		return nil, fmt.Errorf("waiting for %q: %w", FileListTerminator, ctx.Err())
	}
}

// Serve consumes a command connection's events until the stream ends or ctx is done.
// Messages go through the demultiplexer; lifecycle events go to the status and error sinks.
func (s *Session) Serve(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case transport.EventOpened:
				s.sinks.Status.SetStatus("CONNECTED")
			case transport.EventMessage:
				s.demux.Dispatch(ev.Text())
			case transport.EventError:
				s.log.Debugf("transport error: %s", ev.Err)
				s.sinks.Error.ReportError("Error:" + ev.Err.Error())
			case transport.EventClosed:
				s.log.Debugw("command channel closed", "Code", ev.Code)
				s.sinks.Status.SetStatus("DISCONNECTED")
			}
		}
	}
}
