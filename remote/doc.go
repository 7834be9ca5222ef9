/*
Package remote is the client for a networked machine controller. It wires the command and upload channels of a Transport
to a command.Session and an upload.Session, and reports everything through ui sinks.

	c := remote.New("192.168.1.101", remote.WithSinks(ui.All(ui.NewConsole(os.Stdout))))
	if _, err := c.Connect(ctx); err != nil {
		...
	}
	err := c.Commands().Run(ctx, "M105", false)

Calling Connect while the command channel is open disconnects it instead, like a connect/disconnect button.

By default an upload needs the link to itself: an open command channel is closed for the duration of the transfer and
reopened once the upload channel has closed. WithExclusiveUpload(false) keeps both channels open for controllers that
serve them independently.

Client methods are not meant to be called concurrently; serialize Connect, Upload and commands whose replies must not be
mixed up.
*/
package remote
