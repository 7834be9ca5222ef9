package controller

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"nhooyr.io/websocket"
)

// Controller serves /command, /upload and /files/*path.
type Controller struct {
	logger *zap.SugaredLogger

	listenAddr string
	uploadDir  string
	responder  Responder
	status     string

	httpServer *http.Server
	listener   net.Listener

	mut   sync.Mutex
	files map[string]bool
	conns map[*websocket.Conn]bool
}

type Option func(c *Controller)

func WithListenAddr(s string) Option {
	return func(c *Controller) {
		c.listenAddr = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = l.Named("controller").Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(c *Controller) {
		c.logger = c.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

// WithUploadDir sets where uploaded files are written. Defaults to a new temp dir.
func WithUploadDir(dir string) Option {
	return func(c *Controller) {
		c.uploadDir = dir
	}
}

// WithResponder overrides the replies to ordinary command lines.
func WithResponder(r Responder) Option {
	return func(c *Controller) {
		c.responder = r
	}
}

// WithStatus sets the body of the bracketed status report sent for "?".
func WithStatus(s string) Option {
	return func(c *Controller) {
		c.status = s
	}
}

// WithFiles preloads names into the file listing.
func WithFiles(names ...string) Option {
	return func(c *Controller) {
		for _, n := range names {
			c.files[n] = true
		}
	}
}

func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		logger:     zap.NewNop().Sugar(),
		listenAddr: "127.0.0.1:0",
		responder:  DefaultResponder,
		status:     "Idle|MPos:0.0000,0.0000,0.0000|WPos:0.0000,0.0000,0.0000",
		files:      map[string]bool{},
		conns:      map[*websocket.Conn]bool{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.uploadDir == "" {
		dir, err := os.MkdirTemp("", "cncremote-controller")
		if err != nil {
			return nil, fmt.Errorf("creating upload dir: %w", err)
		}
		c.uploadDir = dir
	}
	return c, nil
}

func (c *Controller) listen() error {
	l, err := net.Listen("tcp", c.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	c.listener = l
	c.httpServer = &http.Server{Handler: c.router()}
	c.logger.Debugw("controller listening", "Addr", l.Addr().String())
	return nil
}

func (c *Controller) serve() error {
	err := c.httpServer.Serve(c.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens on the configured address and serves in the background.
func (c *Controller) Start() error {
	if err := c.listen(); err != nil {
		return err
	}
	go func() {
		if err := c.serve(); err != nil {
			c.logger.Debugf("controller server error: %s", err)
		}
	}()
	return nil
}

// Run serves until Stop is called.
func (c *Controller) Run() error {
	if err := c.listen(); err != nil {
		return err
	}
	return c.serve()
}

func (c *Controller) router() http.Handler {
	router := httprouter.New()
	router.GET("/command", c.commandWS)
	router.GET("/upload", c.uploadWS)
	router.GET("/files/*path", c.readFile)
	return router
}

// Addr returns the host:port being served, once started.
func (c *Controller) Addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *Controller) URL() string {
	return "ws://" + c.Addr()
}

func (c *Controller) UploadDir() string { return c.uploadDir }

// Files returns the sorted file listing.
func (c *Controller) Files() []string {
	c.mut.Lock()
	defer c.mut.Unlock()
	var names []string
	for n := range c.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Controller) addFile(name string) {
	c.mut.Lock()
	c.files[name] = true
	c.mut.Unlock()
}

// track registers a WebSocket conn so Stop can close it. The returned func unregisters it.
func (c *Controller) track(conn *websocket.Conn) func() {
	c.mut.Lock()
	c.conns[conn] = true
	c.mut.Unlock()
	return func() {
		c.mut.Lock()
		delete(c.conns, conn)
		c.mut.Unlock()
	}
}

// Stop closes the listener and every open WebSocket conn.
func (c *Controller) Stop() error {
	if c.httpServer == nil {
		return nil
	}
	err := c.httpServer.Close()

	c.mut.Lock()
	var conns []*websocket.Conn
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mut.Unlock()
	for _, conn := range conns {
		if err := conn.Close(websocket.StatusGoingAway, "controller stopping"); err != nil {
			c.logger.Debugf("error closing conn: %s", err)
		}
	}
	return err
}

func (c *Controller) readFile(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := filepath.Base(params.ByName("path"))

	f, err := os.Open(filepath.Join(c.uploadDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "no such file or directory", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	if err != nil {
		c.logger.Debugf("error sending file response: %s", err)
	}
}
