// Package controller is an in-process stand-in for controller firmware that speaks the command and upload
// WebSocket channels. It answers enough of the command set (status query, kill, unlock, temperature, file listing)
// to drive a client end to end, and stores uploads in a directory.
package controller
