package remote

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guseggert/cncremote/controller"
	"github.com/guseggert/cncremote/transport"
	"github.com/guseggert/cncremote/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"nhooyr.io/websocket"
)

func startController(t *testing.T, opts ...controller.Option) *controller.Controller {
	opts = append([]controller.Option{controller.WithUploadDir(t.TempDir())}, opts...)
	c, err := controller.New(opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { c.Stop() })
	return c
}

func newTestClient(t *testing.T, c *controller.Controller, opts ...Option) (*Client, *ui.Recorder) {
	rec := ui.NewRecorder()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithSinks(ui.All(rec))}, opts...)
	client := New(c.Addr(), opts...)
	t.Cleanup(func() { client.Close() })
	return client, rec
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func lastStatus(rec *ui.Recorder) string {
	statuses := rec.Args("SetStatus")
	if len(statuses) == 0 {
		return ""
	}
	return statuses[len(statuses)-1]
}

func TestConnectToggles(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, rec := newTestClient(t, c)

	connected, err := client.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, connected)
	assert.True(t, client.Connected())
	require.Eventually(t, func() bool { return lastStatus(rec) == "CONNECTED" }, 5*time.Second, 10*time.Millisecond)

	connected, err = client.Connect(ctx)
	require.NoError(t, err)
	assert.False(t, connected)
	assert.False(t, client.Connected())
	assert.Equal(t, []string{"Connecting...", "CONNECTED", "DISCONNECTED"}, rec.Args("SetStatus"))

	assert.ErrorIs(t, client.Commands().Run(ctx, "M105", false), transport.ErrNotConnected)
}

func TestConnectError(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, rec := newTestClient(t, c)
	require.NoError(t, c.Stop())

	connected, err := client.Connect(ctx)
	require.Error(t, err)
	assert.False(t, connected)
	assert.Equal(t, []string{"Connecting...", "DISCONNECTED"}, rec.Args("SetStatus"))
	errs := rec.Args("ReportError")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Error:")
}

func TestCommandRoundTrips(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t, controller.WithFiles("a.gcode", "b.nc", "notes.txt"))
	client, rec := newTestClient(t, c)

	_, err := client.Connect(ctx)
	require.NoError(t, err)
	cmds := client.Commands()

	require.NoError(t, cmds.Run(ctx, "M105", false))
	require.Eventually(t, func() bool { return rec.Count("ScrollToEnd") == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ok T:21.0 /0.0 @0 B:20.0 /0.0 @0"}, rec.Args("AppendLine"))

	require.NoError(t, cmds.StatusQuery(ctx))
	require.Eventually(t, func() bool { return rec.Count("SetQueryResult") == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Idle|MPos:0.0000,0.0000,0.0000|WPos:0.0000,0.0000,0.0000"}, rec.Args("SetQueryResult"))

	// the trailing "ok" shares the terminator's frame and is dropped with it
	names, err := cmds.ListFiles(ctx, "M20")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gcode", "b.nc"}, names)

	require.NoError(t, cmds.Kill(ctx))
	require.Eventually(t, func() bool { return rec.Count("ScrollToEnd") == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ALARM: Abort during cycle", rec.Args("AppendLine")[1])
}

func TestSilentCommand(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, rec := newTestClient(t, c)

	_, err := client.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Commands().MotorsOff(ctx))
	require.NoError(t, client.Commands().StatusQuery(ctx))
	// status replies bypass silence, so once it is in the M18 reply has been routed too
	require.Eventually(t, func() bool { return rec.Count("SetQueryResult") == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, rec.Count("AppendLine"))
}

func TestUploadReopensCommandChannel(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, rec := newTestClient(t, c)

	_, err := client.Connect(ctx)
	require.NoError(t, err)
	before := client.Transport().Conn(transport.ChannelCommand)

	content := bytes.Repeat([]byte{0x42}, 2500)
	res, err := client.Upload(ctx, "part.gcode", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, res.CloseCode)
	assert.Equal(t, 3, res.Transfer.Chunks())
	assert.Equal(t, int64(2500), res.Transfer.BytesSent())

	assert.True(t, client.Connected())
	assert.NotSame(t, before, client.Transport().Conn(transport.ChannelCommand))
	require.Eventually(t, func() bool { return lastStatus(rec) == "CONNECTED" }, 5*time.Second, 10*time.Millisecond)

	statuses := rec.Args("SetStatus")
	assert.Contains(t, statuses, "DISCONNECTED")
	assert.Contains(t, statuses, "Connected.")
	assert.Contains(t, statuses, "the File has been transferred.")
	assert.Contains(t, statuses, "Connection is closed...1000")
	assert.Equal(t, []string{
		"receiving part.gcode (2500 bytes)\n",
		"part.gcode uploaded, 2500 bytes\n",
	}, rec.Args("AppendUploadResult"))
	assert.Equal(t, 1, rec.Count("ClearUploadResult"))

	b, err := os.ReadFile(filepath.Join(c.UploadDir(), "part.gcode"))
	require.NoError(t, err)
	assert.Equal(t, content, b)

	names, err := client.Commands().ListFiles(ctx, "M20")
	require.NoError(t, err)
	assert.Equal(t, []string{"part.gcode"}, names)

	var fetched bytes.Buffer
	n, err := client.Fetch(ctx, "part.gcode", &fetched)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), n)
	assert.Equal(t, content, fetched.Bytes())
}

func TestFetchMissing(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, _ := newTestClient(t, c)

	_, err := client.Fetch(ctx, "nope.gcode", io.Discard)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestHTTPBaseURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.2:81", httpBaseURL("ws://10.0.0.2:81"))
	assert.Equal(t, "https://machine", httpBaseURL("wss://machine"))
}

func TestUploadKeepsCommandChannel(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, rec := newTestClient(t, c, WithExclusiveUpload(false))

	_, err := client.Connect(ctx)
	require.NoError(t, err)
	before := client.Transport().Conn(transport.ChannelCommand)

	_, err = client.Upload(ctx, "a.nc", bytes.NewReader([]byte("G0 X0\n")), 6)
	require.NoError(t, err)

	assert.Same(t, before, client.Transport().Conn(transport.ChannelCommand))
	assert.True(t, client.Connected())
	assert.NotContains(t, rec.Args("SetStatus"), "DISCONNECTED")
}

func TestUploadWhileDisconnected(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, _ := newTestClient(t, c)

	path := filepath.Join(t.TempDir(), "cube.gcode")
	require.NoError(t, os.WriteFile(path, []byte("G28\nG1 X10\n"), 0666))

	res, err := client.UploadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "cube.gcode", res.Transfer.FileName)
	assert.False(t, client.Connected())
	assert.Equal(t, []string{"cube.gcode"}, c.Files())
}

func TestUploadShortFile(t *testing.T) {
	ctx := testCtx(t)
	c := startController(t)
	client, rec := newTestClient(t, c)

	_, err := client.Upload(ctx, "a.nc", bytes.NewReader(make([]byte, 10)), 100)
	require.Error(t, err)
	assert.Len(t, rec.Args("ReportError"), 1)
	assert.Empty(t, c.Files())
}
