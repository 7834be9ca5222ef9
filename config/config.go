// Package config loads cncremote profiles from YAML.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guseggert/cncremote/internal/files"
	"github.com/guseggert/cncremote/remote"
	"github.com/guseggert/cncremote/transport"
	"github.com/guseggert/cncremote/upload"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// FileName is the profile file looked up from the working directory upwards.
const FileName = ".cncremote.yaml"

// Feeds are the jog and extrude rates, in mm/min.
type Feeds struct {
	XY      float64 `yaml:"xy"`
	Z       float64 `yaml:"z"`
	Extrude float64 `yaml:"extrude"`
}

type Profile struct {
	Host             string        `yaml:"host"`
	ExclusiveUpload  *bool         `yaml:"exclusive_upload"`
	ChunkSize        int           `yaml:"chunk_size"`
	ReadLimit        int64         `yaml:"read_limit"`
	LogLevel         string        `yaml:"log_level"`
	ListTimeout      time.Duration `yaml:"list_timeout"` // 0 waits until interrupted
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	Feeds            Feeds         `yaml:"feeds"`
}

func Default() Profile {
	return Profile{
		ChunkSize:        upload.ChunkSize,
		ReadLimit:        32768,
		LogLevel:         "info",
		ListTimeout:      10 * time.Second,
		ReconnectTimeout: 10 * time.Second,
		Feeds: Feeds{
			XY:      3000,
			Z:       200,
			Extrude: 100,
		},
	}
}

// Decode reads a profile on top of the defaults. Unknown keys are an error.
func Decode(r io.Reader) (Profile, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&p)
	if err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func Load(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	p, err := Decode(bytes.NewReader(b))
	if err != nil {
		return Profile{}, fmt.Errorf("loading %q: %w", path, err)
	}
	return p, nil
}

// Find returns the nearest profile file at or above dir, or "" if there is none.
func Find(dir string) (string, error) {
	return files.FindUp(FileName, dir)
}

// LoadNearest loads the nearest profile at or above dir, falling back to the defaults.
func LoadNearest(dir string) (Profile, string, error) {
	path, err := Find(dir)
	if err != nil {
		return Profile{}, "", err
	}
	if path == "" {
		return Default(), "", nil
	}
	p, err := Load(path)
	return p, path, err
}

func (p Profile) Validate() error {
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", p.ChunkSize)
	}
	if p.ReadLimit <= 0 {
		return fmt.Errorf("read_limit must be positive, got %d", p.ReadLimit)
	}
	if _, err := p.Level(); err != nil {
		return err
	}
	if p.ListTimeout < 0 || p.ReconnectTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

func (p Profile) Level() (zapcore.Level, error) {
	l, err := zapcore.ParseLevel(p.LogLevel)
	if err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Exclusive reports whether uploads take over the command channel. Unset means true.
func (p Profile) Exclusive() bool {
	return p.ExclusiveUpload == nil || *p.ExclusiveUpload
}

// ListContext bounds a file listing by ListTimeout. Zero means no timeout.
func (p Profile) ListContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.ListTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.ListTimeout)
}

// ClientOptions maps the profile onto client options.
func (p Profile) ClientOptions() []remote.Option {
	opts := []remote.Option{
		remote.WithExclusiveUpload(p.Exclusive()),
		remote.WithChunkSize(p.ChunkSize),
		remote.WithTransportOptions(transport.WithReadLimit(p.ReadLimit)),
	}
	if p.ReconnectTimeout > 0 {
		opts = append(opts, remote.WithReconnectTimeout(p.ReconnectTimeout))
	}
	return opts
}
