package upload

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/guseggert/cncremote/transport"
	"github.com/guseggert/cncremote/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type frame struct {
	binary bool
	data   []byte
}

// fakeConn records outbound frames. Its event stream is driven by the test.
type fakeConn struct {
	mut    sync.Mutex
	frames []frame
	events chan transport.Event

	// failAfter makes the write with this index fail, if > 0.
	failAfter int

	closedCode websocket.StatusCode
	closeOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 16)}
}

func (c *fakeConn) write(f frame) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.failAfter > 0 && len(c.frames) == c.failAfter {
		return errors.New("connection reset")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) WriteText(ctx context.Context, s string) error {
	return c.write(frame{data: []byte(s)})
}

func (c *fakeConn) WriteBinary(ctx context.Context, b []byte) error {
	return c.write(frame{binary: true, data: append([]byte(nil), b...)})
}

func (c *fakeConn) Events() <-chan transport.Event { return c.events }

func (c *fakeConn) CloseWithStatus(code websocket.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		c.mut.Lock()
		c.closedCode = code
		c.mut.Unlock()
		c.events <- transport.Event{Type: transport.EventClosed, Code: code}
		close(c.events)
	})
	return nil
}

func (c *fakeConn) sent() []frame {
	c.mut.Lock()
	defer c.mut.Unlock()
	return append([]frame(nil), c.frames...)
}

func randomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.New(rand.NewSource(int64(n))).Read(b)
	require.NoError(t, err)
	return b
}

func TestSendChunking(t *testing.T) {
	sizes := []int{0, 1, 1023, 1024, 1025, 2048, 2500, 10*1024 + 7}
	for _, size := range sizes {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			content := randomBytes(t, size)
			conn := newFakeConn()
			s := NewSession(ui.Sinks{})

			tr, err := s.Send(context.Background(), conn, "part.gcode", bytes.NewReader(content), int64(size))
			require.NoError(t, err)

			frames := conn.sent()
			require.GreaterOrEqual(t, len(frames), 2)
			assert.Equal(t, frame{data: []byte("part.gcode")}, frames[0])
			assert.Equal(t, frame{data: []byte(strconv.Itoa(size))}, frames[1])

			chunks := frames[2:]
			expChunks := (size + ChunkSize - 1) / ChunkSize
			require.Len(t, chunks, expChunks)

			var joined []byte
			for i, c := range chunks {
				assert.True(t, c.binary)
				if i < len(chunks)-1 {
					assert.Len(t, c.data, ChunkSize)
				} else {
					assert.LessOrEqual(t, len(c.data), ChunkSize)
					assert.NotEmpty(t, c.data)
				}
				joined = append(joined, c.data...)
			}
			assert.Equal(t, len(content), len(joined))
			assert.True(t, bytes.Equal(content, joined))

			assert.Equal(t, expChunks, tr.Chunks())
			assert.Equal(t, int64(size), tr.BytesSent())
		})
	}
}

// iotestReader returns at most n bytes per Read, to check that chunks don't follow read boundaries.
type iotestReader struct {
	r *bytes.Reader
	n int
}

func (r *iotestReader) Read(p []byte) (int, error) {
	if len(p) > r.n {
		p = p[:r.n]
	}
	return r.r.Read(p)
}

func TestSendChunksIgnoreReadBoundaries(t *testing.T) {
	content := randomBytes(t, 5000)
	conn := newFakeConn()
	s := NewSession(ui.Sinks{})

	_, err := s.Send(context.Background(), conn, "a.nc", &iotestReader{r: bytes.NewReader(content), n: 333}, int64(len(content)))
	require.NoError(t, err)

	var sizes []int
	for _, f := range conn.sent()[2:] {
		sizes = append(sizes, len(f.data))
	}
	assert.Equal(t, []int{1024, 1024, 1024, 1024, 904}, sizes)
}

func TestSendShortFile(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(ui.Sinks{})

	_, err := s.Send(context.Background(), conn, "a.nc", bytes.NewReader(make([]byte, 100)), 2000)
	require.ErrorIs(t, err, ErrShortFile)

	// the bytes that were read still went out
	assert.ErrorContains(t, err, "sent 100 of 2000 bytes")
	frames := conn.sent()
	require.Len(t, frames, 3)
	assert.Len(t, frames[2].data, 100)
}

func TestUpload(t *testing.T) {
	content := randomBytes(t, 2500)
	conn := newFakeConn()
	rec := ui.NewRecorder()
	s := NewSession(ui.All(rec))

	conn.events <- transport.Event{Type: transport.EventOpened}
	conn.events <- transport.Event{Type: transport.EventMessage, Data: []byte("receiving part.gcode\n")}

	go func() {
		// the controller closes once it has every byte
		for {
			frames := conn.sent()
			if len(frames) == 5 {
				conn.events <- transport.Event{Type: transport.EventMessage, Data: []byte("uploaded ok\n")}
				_ = conn.CloseWithStatus(websocket.StatusNormalClosure, "")
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Upload(ctx, conn, "part.gcode", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, res.CloseCode)
	assert.Equal(t, 3, res.Transfer.Chunks())

	frames := conn.sent()
	require.Len(t, frames, 5)
	assert.Equal(t, "part.gcode", string(frames[0].data))
	assert.Equal(t, "2500", string(frames[1].data))
	assert.Len(t, frames[2].data, 1024)
	assert.Len(t, frames[3].data, 1024)
	assert.Len(t, frames[4].data, 452)

	assert.Equal(t, []string{"receiving part.gcode\n", "uploaded ok\n"}, rec.Args("AppendUploadResult"))
	statuses := rec.Args("SetStatus")
	assert.Equal(t, "Connected.", statuses[0])
	assert.Contains(t, statuses, "the File has been transferred.")
	assert.Equal(t, "Connection is closed...1000", statuses[len(statuses)-1])
	assert.Empty(t, rec.Args("ReportError"))
}

func TestUploadWriteErrorClosesConn(t *testing.T) {
	conn := newFakeConn()
	conn.failAfter = 3
	rec := ui.NewRecorder()
	s := NewSession(ui.All(rec))

	conn.events <- transport.Event{Type: transport.EventOpened}

	res, err := s.Upload(context.Background(), conn, "part.gcode", bytes.NewReader(make([]byte, 4096)), 4096)
	require.ErrorContains(t, err, "connection reset")
	assert.Equal(t, websocket.StatusInternalError, res.CloseCode)
	assert.Len(t, conn.sent(), 3)
	assert.Len(t, rec.Args("ReportError"), 1)
}

func TestUploadTransportError(t *testing.T) {
	conn := newFakeConn()
	rec := ui.NewRecorder()
	s := NewSession(ui.Sinks{Status: rec, UploadError: rec})

	conn.events <- transport.Event{Type: transport.EventError, Err: errors.New("read: EOF")}
	conn.events <- transport.Event{Type: transport.EventClosed, Code: websocket.StatusAbnormalClosure}
	close(conn.events)

	res, err := s.Upload(context.Background(), conn, "part.gcode", bytes.NewReader(nil), 0)
	require.NoError(t, err)
	assert.Equal(t, websocket.StatusAbnormalClosure, res.CloseCode)
	assert.Empty(t, conn.sent())
	assert.Equal(t, []ui.Call{
		{Method: "ReportError", Arg: "There was an ERROR: read: EOF"},
		{Method: "SetStatus", Arg: "Connection is closed...1006"},
	}, rec.Calls())
}

func TestUploadCanceled(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(ui.Sinks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Upload(ctx, conn, "part.gcode", bytes.NewReader(nil), 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, websocket.StatusGoingAway, conn.closedCode)
}
