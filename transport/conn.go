package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultReadLimit   = 32768
	defaultEventBuffer = 128
)

// Conn is a single WebSocket connection for one channel.
// A Conn is dialed once; reconnecting means creating a new Conn.
type Conn struct {
	log        *zap.SugaredLogger
	channel    Channel
	url        string
	httpClient *http.Client
	readLimit  int64

	mut       sync.Mutex
	state     State
	ws        *websocket.Conn
	closeCode websocket.StatusCode

	// set by a close that arrives while dialing
	closeRequested bool
	closeReason    string

	events chan Event
	done   chan struct{}

	closeConnOnce sync.Once
}

func newConn(log *zap.SugaredLogger, channel Channel, url string, httpClient *http.Client, readLimit int64, eventBuffer int) *Conn {
	return &Conn{
		log:        log,
		channel:    channel,
		url:        url,
		httpClient: httpClient,
		readLimit:  readLimit,
		events:     make(chan Event, eventBuffer),
		done:       make(chan struct{}),
	}
}

func (c *Conn) Channel() Channel { return c.channel }

func (c *Conn) URL() string { return c.url }

// Events returns the event stream of the connection.
func (c *Conn) Events() <-chan Event { return c.events }

// Done is closed once the connection is gone and EventClosed has been emitted.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) State() State {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mut.Lock()
	c.state = s
	c.mut.Unlock()
}

func (c *Conn) dial(ctx context.Context) error {
	c.setState(Connecting)
	c.log.Debugw("dialing WebSocket", "URL", c.url)
	wsConn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		c.log.Debugf("dial error: %s", err)
		c.setState(Disconnected)
		close(c.events)
		close(c.done)
		return &Error{Op: "dial", Channel: c.channel, Err: err}
	}
	wsConn.SetReadLimit(c.readLimit)

	c.mut.Lock()
	if c.closeRequested {
		code, reason := c.closeCode, c.closeReason
		c.mut.Unlock()
		c.log.Debugw("closed while connecting", "Code", code)
		if err := wsConn.Close(code, reason); err != nil {
			c.log.Debugf("error closing conn: %s", err)
		}
		c.setState(Disconnected)
		c.events <- Event{Type: EventClosed, Code: code}
		close(c.events)
		close(c.done)
		return &Error{Op: "dial", Channel: c.channel, Err: ErrClosedWhileConnecting}
	}
	c.ws = wsConn
	c.state = Open
	c.mut.Unlock()

	c.events <- Event{Type: EventOpened}
	go c.readMessages()
	return nil
}

func (c *Conn) readMessages() {
	defer close(c.done)
	defer close(c.events)

	for {
		typ, data, err := c.ws.Read(context.Background())
		if err != nil {
			code := websocket.CloseStatus(err)
			if code == -1 {
				c.mut.Lock()
				code = c.closeCode
				c.mut.Unlock()
			}
			if code == 0 {
				c.log.Debugf("message reader got error: %s", err)
				c.events <- Event{Type: EventError, Err: &Error{Op: "read", Channel: c.channel, Err: err}}
				code = websocket.StatusAbnormalClosure
			}
			c.setState(Disconnected)
			c.log.Debugw("connection closed", "Code", code)
			c.events <- Event{Type: EventClosed, Code: code}
			return
		}
		c.log.Debugw("got message", "Type", typ, "Len", len(data))
		c.events <- Event{Type: EventMessage, MessageType: typ, Data: data}
	}
}

func (c *Conn) write(ctx context.Context, typ websocket.MessageType, b []byte) error {
	c.mut.Lock()
	ws, state := c.ws, c.state
	c.mut.Unlock()
	if ws == nil || state != Open {
		return &Error{Op: "write", Channel: c.channel, Err: ErrNotConnected}
	}
	err := ws.Write(ctx, typ, b)
	if err != nil {
		return &Error{Op: "write", Channel: c.channel, Err: err}
	}
	return nil
}

// WriteText sends s as a single text frame.
func (c *Conn) WriteText(ctx context.Context, s string) error {
	return c.write(ctx, websocket.MessageText, []byte(s))
}

// WriteBinary sends b as a single binary frame.
func (c *Conn) WriteBinary(ctx context.Context, b []byte) error {
	return c.write(ctx, websocket.MessageBinary, b)
}

// Close closes the connection with a normal closure.
func (c *Conn) Close() error {
	return c.CloseWithStatus(websocket.StatusNormalClosure, "")
}

func (c *Conn) CloseWithStatus(code websocket.StatusCode, reason string) error {
	// websocket reason can't be above 123 chars
	if len(reason) > 100 {
		reason = reason[0:100]
	}
	c.mut.Lock()
	if c.ws == nil {
		// still dialing, dial closes the conn once it is up
		if c.state == Connecting {
			c.closeRequested = true
			c.closeCode = code
			c.closeReason = reason
			c.state = Closing
		}
		c.mut.Unlock()
		return nil
	}
	c.mut.Unlock()

	var err error
	c.closeConnOnce.Do(func() {
		c.mut.Lock()
		ws := c.ws
		if c.state == Open {
			c.state = Closing
		}
		c.closeCode = code
		c.mut.Unlock()
		err = ws.Close(code, reason)
		if err != nil {
			c.log.Debugf("error closing conn: %s", err)
			err = fmt.Errorf("closing %s conn: %w", c.channel, err)
		}
	})
	return err
}
