package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		yaml   string
		check  func(t *testing.T, p Profile)
		expErr string
	}{
		{
			name: "empty gives defaults",
			yaml: "",
			check: func(t *testing.T, p Profile) {
				assert.Equal(t, Default(), p)
				assert.True(t, p.Exclusive())
			},
		},
		{
			name: "full profile",
			yaml: `
host: 192.168.1.40
exclusive_upload: false
chunk_size: 512
log_level: debug
list_timeout: 3s
feeds:
  xy: 6000
  extrude: 50
`,
			check: func(t *testing.T, p Profile) {
				assert.Equal(t, "192.168.1.40", p.Host)
				assert.False(t, p.Exclusive())
				assert.Equal(t, 512, p.ChunkSize)
				assert.Equal(t, 3*time.Second, p.ListTimeout)
				assert.Equal(t, 10*time.Second, p.ReconnectTimeout)
				assert.Equal(t, Feeds{XY: 6000, Z: 200, Extrude: 50}, p.Feeds)
				l, err := p.Level()
				require.NoError(t, err)
				assert.Equal(t, zapcore.DebugLevel, l)
			},
		},
		{
			name:   "unknown key",
			yaml:   "hots: 10.0.0.1\n",
			expErr: "field hots not found",
		},
		{
			name:   "bad chunk size",
			yaml:   "chunk_size: 0\n",
			expErr: "chunk_size must be positive",
		},
		{
			name:   "bad log level",
			yaml:   "log_level: loud\n",
			expErr: "log_level",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := Decode(strings.NewReader(c.yaml))
			if c.expErr != "" {
				require.ErrorContains(t, err, c.expErr)
				return
			}
			require.NoError(t, err)
			c.check(t, p)
		})
	}
}

func TestLoadNearest(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "jobs", "brackets")
	require.NoError(t, os.MkdirAll(nested, 0777))

	p, path, err := LoadNearest(nested)
	require.NoError(t, err)
	assert.Equal(t, "", path)
	assert.Equal(t, Default(), p)

	profilePath := filepath.Join(root, FileName)
	require.NoError(t, os.WriteFile(profilePath, []byte("host: smoothie.local\n"), 0666))

	p, path, err = LoadNearest(nested)
	require.NoError(t, err)
	assert.Equal(t, profilePath, path)
	assert.Equal(t, "smoothie.local", p.Host)
	assert.Len(t, p.ClientOptions(), 4)
}

func TestListContext(t *testing.T) {
	p, err := Decode(strings.NewReader("list_timeout: 0s\n"))
	require.NoError(t, err)

	ctx, cancel := p.ListContext(context.Background())
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)
	assert.NoError(t, ctx.Err())

	p.ListTimeout = time.Minute
	ctx, cancel = p.ListContext(context.Background())
	defer cancel()
	deadline, hasDeadline := ctx.Deadline()
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
