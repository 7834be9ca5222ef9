package transport

import (
	"fmt"

	"nhooyr.io/websocket"
)

type EventType int

const (
	EventOpened EventType = iota
	EventMessage
	EventError
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a single observable occurrence on a Conn.
type Event struct {
	Type EventType

	// MessageType and Data are set for EventMessage.
	MessageType websocket.MessageType
	Data        []byte

	// Err is set for EventError.
	Err error

	// Code is set for EventClosed.
	Code websocket.StatusCode
}

// Text returns the message payload as a string.
func (e Event) Text() string {
	return string(e.Data)
}
