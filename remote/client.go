package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/guseggert/cncremote/command"
	"github.com/guseggert/cncremote/transport"
	"github.com/guseggert/cncremote/ui"
	"github.com/guseggert/cncremote/upload"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Client struct {
	log *zap.SugaredLogger

	host             string
	sinks            ui.Sinks
	exclusiveUpload  bool
	reconnectTimeout time.Duration
	chunkSize        int
	transportOpts    []transport.Option
	httpRetryMax     int

	transport  *transport.Transport
	httpClient *http.Client
	commands   *command.Session
	uploads    *upload.Session

	serveMut  sync.Mutex
	serveDone chan struct{}
}

type Option func(c *Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l.Named("remote").Sugar()
		c.transportOpts = append(c.transportOpts, transport.WithLogger(l))
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(c *Client) {
		c.log = c.log.WithOptions(zap.IncreaseLevel(l))
	}
}

func WithSinks(s ui.Sinks) Option {
	return func(c *Client) {
		c.sinks = s
	}
}

// WithExclusiveUpload controls whether the command channel is closed during an upload and reopened afterwards.
func WithExclusiveUpload(b bool) Option {
	return func(c *Client) {
		c.exclusiveUpload = b
	}
}

// WithReconnectTimeout bounds reopening the command channel after an upload.
func WithReconnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.reconnectTimeout = d
	}
}

func WithChunkSize(n int) Option {
	return func(c *Client) {
		c.chunkSize = n
	}
}

// WithHTTPRetryMax sets how often Fetch retries a failed request.
func WithHTTPRetryMax(n int) Option {
	return func(c *Client) {
		c.httpRetryMax = n
	}
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Client) {
		c.transportOpts = append(c.transportOpts, opts...)
	}
}

// New builds a client for the controller at host, either a bare host[:port] or a ws:// URL.
func New(host string, opts ...Option) *Client {
	c := &Client{
		log:              zap.NewNop().Sugar(),
		host:             host,
		exclusiveUpload:  true,
		reconnectTimeout: 10 * time.Second,
		chunkSize:        upload.ChunkSize,
		httpRetryMax:     3,
	}
	for _, o := range opts {
		o(c)
	}
	c.sinks = c.sinks.WithDefaults()

	c.transport = transport.New(transport.BaseURL(host), c.transportOpts...)
	c.httpClient = newHTTPClient(c.log.Named("http"), c.httpRetryMax)
	c.commands = command.NewSession(c.sinks, command.WithLogger(c.log.Desugar()))
	c.uploads = upload.NewSession(c.sinks, upload.WithLogger(c.log.Desugar()), upload.WithChunkSize(c.chunkSize))
	return c
}

func (c *Client) Host() string { return c.host }

// Commands returns the command session of the client.
func (c *Client) Commands() *command.Session { return c.commands }

func (c *Client) Transport() *transport.Transport { return c.transport }

// Connected reports whether the command channel is open.
func (c *Client) Connected() bool {
	return c.transport.State(transport.ChannelCommand) == transport.Open
}

// Connect opens the command channel and starts routing its replies.
// If the channel is already open it is closed instead, and Connect returns false.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	toggling := c.Connected()
	if !toggling {
		c.sinks.Status.SetStatus("Connecting...")
	}

	conn, err := c.transport.Connect(ctx, transport.ChannelCommand)
	if err != nil {
		c.sinks.Error.ReportError("Error:" + err.Error())
		c.sinks.Status.SetStatus("DISCONNECTED")
		return false, fmt.Errorf("connecting command channel: %w", err)
	}
	if conn == nil {
		c.log.Debug("command channel toggled off")
		c.waitServe()
		return false, nil
	}

	// a previous connection may still be draining
	c.waitServe()

	c.commands.Attach(conn)
	done := make(chan struct{})
	c.serveMut.Lock()
	c.serveDone = done
	c.serveMut.Unlock()
	go func() {
		defer close(done)
		defer c.commands.Detach(conn)
		err := c.commands.Serve(context.Background(), conn.Events())
		c.log.Debugw("command channel done", "Error", err)
	}()
	return true, nil
}

// waitServe waits until the events of the last command connection are fully routed.
func (c *Client) waitServe() {
	c.serveMut.Lock()
	done := c.serveDone
	c.serveMut.Unlock()
	if done != nil {
		<-done
	}
}

// Disconnect closes the command channel and waits for its last events to be routed.
func (c *Client) Disconnect() error {
	err := c.transport.Disconnect(transport.ChannelCommand)
	c.waitServe()
	return err
}

// Upload sends a file over the upload channel and returns once the controller has closed it.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader, size int64) (*upload.Result, error) {
	c.sinks.UploadResult.ClearUploadResult()

	wasOpen := false
	if c.exclusiveUpload && c.transport.State(transport.ChannelCommand) != transport.Disconnected {
		wasOpen = true
		c.log.Debug("closing command channel for upload")
		if err := c.Disconnect(); err != nil {
			c.log.Debugf("error closing command channel: %s", err)
		}
	}

	res, err := c.upload(ctx, name, r, size)

	if wasOpen {
		rctx, cancel := context.WithTimeout(context.Background(), c.reconnectTimeout)
		defer cancel()
		if _, rerr := c.Connect(rctx); rerr != nil {
			c.log.Debugf("error reopening command channel: %s", rerr)
			if err == nil {
				err = rerr
			}
		}
	}
	return res, err
}

func (c *Client) upload(ctx context.Context, name string, r io.Reader, size int64) (*upload.Result, error) {
	conn, err := c.transport.Connect(ctx, transport.ChannelUpload)
	if err != nil {
		c.sinks.UploadError.ReportError("There was an ERROR: " + err.Error())
		return nil, fmt.Errorf("connecting upload channel: %w", err)
	}
	res, err := c.uploads.Upload(ctx, conn, name, r, size)
	if err != nil {
		return res, fmt.Errorf("uploading %q: %w", name, err)
	}
	return res, nil
}

// UploadFile uploads a local file under its base name.
func (c *Client) UploadFile(ctx context.Context, path string) (*upload.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	return c.Upload(ctx, filepath.Base(path), f, fi.Size())
}

// Close closes both channels.
func (c *Client) Close() error {
	err := c.transport.Close()
	c.waitServe()
	return err
}
