package controller

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

const (
	killByte = 24

	// AlarmReply is sent after a kill byte.
	AlarmReply = "ALARM: Abort during cycle\n"
)

// Responder returns the reply to one command line.
type Responder func(line string) string

// DefaultResponder acknowledges every line, with a temperature report for M105.
func DefaultResponder(line string) string {
	switch {
	case strings.HasPrefix(line, "M105"):
		return "ok T:21.0 /0.0 @0 B:20.0 /0.0 @0\n"
	case line == "$X":
		return "[Caution: Unlocked]\nok\n"
	case strings.HasPrefix(line, "play "):
		return "Playing " + strings.TrimPrefix(line, "play ") + "\nok\n"
	}
	return "ok\n"
}

func (c *Controller) commandWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.logger.Debugf("command WebSocket accept error: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	log := c.logger.With("Conn", uuid.New().String())
	log.Debug("accepted command conn")
	defer c.track(conn)()

	replies := make(chan string, 16)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		defer close(replies)
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			for _, reply := range c.replies(typ, data) {
				select {
				case replies <- reply:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})
	g.Go(func() error {
		for reply := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Debug("client closed command conn")
	default:
		log.Debugf("command conn error: %s", err)
		_ = conn.Close(websocket.StatusInternalError, closeReason(err))
	}
}

// replies returns one frame per reply to the commands in a frame.
func (c *Controller) replies(typ websocket.MessageType, data []byte) []string {
	if typ == websocket.MessageBinary && bytes.IndexByte(data, killByte) >= 0 {
		return []string{AlarmReply}
	}
	text := string(data)
	if strings.TrimSpace(text) == "?" {
		return []string{"<" + c.status + ">\n"}
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "M20" || strings.HasPrefix(line, "M20 ") {
			out = append(out, c.fileList())
			continue
		}
		out = append(out, c.responder(line))
	}
	return out
}

func (c *Controller) fileList() string {
	var b strings.Builder
	b.WriteString("Begin file list\n")
	for _, n := range c.Files() {
		b.WriteString(n)
		b.WriteString("\n")
	}
	b.WriteString("End file list\nok\n")
	return b.String()
}

// closeReason fits err into a close frame.
func closeReason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// readText reads one frame and requires it to be text.
func readText(ctx context.Context, conn *websocket.Conn) (string, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return "", err
	}
	if typ != websocket.MessageText {
		return "", errUnexpectedBinary
	}
	return string(data), nil
}
