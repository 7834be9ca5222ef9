package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Channel names a WebSocket endpoint on the controller, dialed as baseURL + "/" + channel.
type Channel string

const (
	ChannelCommand Channel = "command"
	ChannelUpload  Channel = "upload"
)

// toggles reports whether connecting an already open channel means "disconnect".
func (c Channel) toggles() bool {
	return c == ChannelCommand
}

// Transport holds the current connection of each channel.
// Channels do not share state, but a new Connect on a channel replaces the previous Conn.
type Transport struct {
	log         *zap.SugaredLogger
	baseURL     string
	httpClient  *http.Client
	readLimit   int64
	eventBuffer int

	mut   sync.Mutex
	conns map[Channel]*Conn
}

type Option func(t *Transport)

func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		t.log = l.Named("transport").Sugar()
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.httpClient = c
	}
}

// WithReadLimit sets the maximum size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(t *Transport) {
		t.readLimit = n
	}
}

func WithEventBuffer(n int) Option {
	return func(t *Transport) {
		if n < 1 {
			n = 1
		}
		t.eventBuffer = n
	}
}

// BaseURL turns a bare host[:port] into a ws:// URL. URLs that already carry a scheme are kept.
func BaseURL(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "ws://" + host
}

func New(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		log:         zap.NewNop().Sugar(),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		readLimit:   defaultReadLimit,
		eventBuffer: defaultEventBuffer,
		conns:       map[Channel]*Conn{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Transport) BaseURL() string { return t.baseURL }

// Conn returns the most recent connection for the channel, or nil.
func (t *Transport) Conn(ch Channel) *Conn {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.conns[ch]
}

// State returns the state of the channel's current connection.
func (t *Transport) State(ch Channel) State {
	c := t.Conn(ch)
	if c == nil {
		return Disconnected
	}
	return c.State()
}

// Connect opens a connection for the channel and returns it once it is Open.
//
// If the command channel is already Open, Connect closes it and returns (nil, nil) without reopening.
// For any other channel an existing connection that is not yet Disconnected is closed and replaced.
func (t *Transport) Connect(ctx context.Context, ch Channel) (*Conn, error) {
	if prev := t.Conn(ch); prev != nil {
		state := prev.State()
		if ch.toggles() && state == Open {
			t.log.Debugw("channel already open, disconnecting", "Channel", ch)
			if err := prev.Close(); err != nil {
				t.log.Debugf("error closing %s conn: %s", ch, err)
			}
			return nil, nil
		}
		if state != Disconnected {
			if err := prev.Close(); err != nil {
				t.log.Debugf("error closing %s conn: %s", ch, err)
			}
		}
	}

	c := newConn(t.log.Named(string(ch)), ch, t.baseURL+"/"+string(ch), t.httpClient, t.readLimit, t.eventBuffer)
	t.mut.Lock()
	t.conns[ch] = c
	t.mut.Unlock()

	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect closes the channel's connection, if any.
func (t *Transport) Disconnect(ch Channel) error {
	c := t.Conn(ch)
	if c == nil || c.State() == Disconnected {
		return nil
	}
	return c.Close()
}

// Close closes every channel.
func (t *Transport) Close() error {
	t.mut.Lock()
	var conns []*Conn
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mut.Unlock()

	var firstErr error
	for _, c := range conns {
		if c.State() == Disconnected {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
