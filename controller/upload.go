package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var (
	errUnexpectedBinary = errors.New("expected a text frame")
	errUnexpectedText   = errors.New("expected a binary frame")
	errTooMuchData      = errors.New("received more bytes than declared")
)

func (c *Controller) uploadWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.logger.Debugf("upload WebSocket accept error: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	log := c.logger.With("Conn", uuid.New().String())
	log.Debug("accepted upload conn")
	defer c.track(conn)()

	ctx := r.Context()
	name, n, err := c.receive(ctx, log, conn)
	if err != nil {
		log.Debugf("upload failed: %s", err)
		if websocket.CloseStatus(err) != -1 {
			return
		}
		_ = conn.Close(websocket.StatusInternalError, closeReason(err))
		return
	}

	c.addFile(name)
	err = conn.Write(ctx, websocket.MessageText, []byte(fmt.Sprintf("%s uploaded, %d bytes\n", name, n)))
	if err != nil {
		log.Debugf("error writing upload result: %s", err)
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		log.Debugf("error closing upload conn: %s", err)
	}
}

// receive reads the file name, the length, then binary frames until length bytes have arrived.
func (c *Controller) receive(ctx context.Context, log *zap.SugaredLogger, conn *websocket.Conn) (string, int64, error) {
	rawName, err := readText(ctx, conn)
	if err != nil {
		return "", 0, fmt.Errorf("reading file name: %w", err)
	}
	name := filepath.Base(strings.TrimSpace(rawName))
	if name == "." || name == string(filepath.Separator) {
		return "", 0, fmt.Errorf("invalid file name %q", rawName)
	}

	rawLen, err := readText(ctx, conn)
	if err != nil {
		return "", 0, fmt.Errorf("reading file length: %w", err)
	}
	length, err := strconv.ParseInt(strings.TrimSpace(rawLen), 10, 64)
	if err != nil || length < 0 {
		return "", 0, fmt.Errorf("invalid file length %q", rawLen)
	}
	log.Debugw("receiving file", "Name", name, "Length", length)

	msg := fmt.Sprintf("receiving %s (%d bytes)\n", name, length)
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		return "", 0, fmt.Errorf("writing progress: %w", err)
	}

	path := filepath.Join(c.uploadDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating %q: %w", path, err)
	}
	received, err := readChunks(ctx, conn, f, length)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return name, received, nil
}

func readChunks(ctx context.Context, conn *websocket.Conn, f *os.File, length int64) (int64, error) {
	var received int64
	for received < length {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return received, fmt.Errorf("reading chunk after %d bytes: %w", received, err)
		}
		if typ != websocket.MessageBinary {
			return received, errUnexpectedText
		}
		if received+int64(len(data)) > length {
			return received, errTooMuchData
		}
		if _, err := f.Write(data); err != nil {
			return received, fmt.Errorf("writing chunk: %w", err)
		}
		received += int64(len(data))
	}
	return received, nil
}
