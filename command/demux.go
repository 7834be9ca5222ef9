package command

import (
	"strings"
	"sync"

	"github.com/guseggert/cncremote/ui"
	"go.uber.org/zap"
)

// State is the routing state of the command channel.
type State int

const (
	Idle State = iota
	// AwaitingSilent means plain replies are dropped until a non-silent command is issued.
	AwaitingSilent
	// AwaitingCapture means plain replies go to the installed capture handler.
	AwaitingCapture
)

func (s State) String() string {
	switch s {
	case AwaitingSilent:
		return "awaiting_silent"
	case AwaitingCapture:
		return "awaiting_capture"
	}
	return "idle"
}

type installedCapture struct {
	id      uint64
	handler CaptureHandler
	onDone  func()
}

// routing holds the silence flag and the single capture slot.
type routing struct {
	mut     sync.Mutex
	silent  bool
	capture *installedCapture
	nextID  uint64
}

func (r *routing) setSilent(silent bool) {
	r.mut.Lock()
	r.silent = silent
	r.mut.Unlock()
}

// install replaces any installed capture and returns the new capture's ID.
func (r *routing) install(h CaptureHandler, onDone func()) uint64 {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.nextID++
	r.capture = &installedCapture{id: r.nextID, handler: h, onDone: onDone}
	return r.nextID
}

// uninstall removes the capture only if it is still the one identified by id.
func (r *routing) uninstall(id uint64) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.capture == nil || r.capture.id != id {
		return false
	}
	r.capture = nil
	return true
}

func (r *routing) snapshot() (*installedCapture, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.capture, r.silent
}

func (r *routing) state() State {
	c, silent := r.snapshot()
	switch {
	case c != nil:
		return AwaitingCapture
	case silent:
		return AwaitingSilent
	}
	return Idle
}

func (r *routing) reset() {
	r.mut.Lock()
	r.capture = nil
	r.silent = false
	r.mut.Unlock()
}

// Demux routes inbound command channel messages to the sinks.
// Dispatch must be called from a single goroutine; messages are routed in arrival order.
type Demux struct {
	log     *zap.SugaredLogger
	display ui.Display
	query   ui.QueryResult
	r       *routing
}

func newDemux(log *zap.SugaredLogger, sinks ui.Sinks, r *routing) *Demux {
	sinks = sinks.WithDefaults()
	return &Demux{
		log:     log,
		display: sinks.Display,
		query:   sinks.QueryResult,
		r:       r,
	}
}

// Dispatch routes one message.
func (d *Demux) Dispatch(text string) {
	f := Classify(text)
	if f.Kind == Bracketed {
		d.log.Debugw("query result", "Payload", f.Text)
		d.query.SetQueryResult(f.Text)
		return
	}

	capture, silent := d.r.snapshot()
	if capture != nil {
		if capture.handler(text) {
			d.log.Debugw("capture complete", "ID", capture.id)
			if d.r.uninstall(capture.id) && capture.onDone != nil {
				capture.onDone()
			}
		}
		return
	}
	if silent {
		d.log.Debugw("dropping silent reply", "Len", len(text))
		return
	}

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		d.display.AppendLine(line)
	}
	d.display.ScrollToEnd()
}
