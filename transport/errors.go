package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected          = errors.New("not connected")
	ErrClosedWhileConnecting = errors.New("closed while connecting")
)

// Error is a transport-level failure on one channel.
type Error struct {
	Op      string // "dial", "read", "write"
	Channel Channel
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
