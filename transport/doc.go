/*
Package transport owns the two WebSocket links to a machine controller: the text "command" channel and the binary "upload" channel.

Each Conn exposes its lifecycle and inbound traffic as a stream of typed events:

	EventOpened                  the handshake completed, the connection is Open
	EventMessage                 one inbound frame, text or binary
	EventError                   a transport-level failure (read error, abnormal drop)
	EventClosed                  the connection is gone; carries the close code

EventClosed is always the last event, after which the channel is closed. Consumers must drain Events,
since the read loop blocks on a full event buffer.

Nothing here reconnects or retries. State transitions are the only externally observable effect of a Conn.
*/
package transport
