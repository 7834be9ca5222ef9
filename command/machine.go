package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/guseggert/cncremote/ui"
)

const (
	// KillByte is the emergency stop control code (^X).
	KillByte = 24

	ListFilesCommand = "M20"
)

// Heater selects the hotend or the heated bed.
type Heater int

const (
	Hotend Heater = 104
	Bed    Heater = 140
)

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// StatusQuery asks for a bracketed status report. No terminator is sent.
func (s *Session) StatusQuery(ctx context.Context) error {
	return s.send(ctx, "?")
}

// Kill sends the emergency stop byte.
func (s *Session) Kill(ctx context.Context) error {
	return s.SendRaw(ctx, []byte{KillByte})
}

// Unlock clears an alarm state after a kill.
func (s *Session) Unlock(ctx context.Context) error {
	return s.send(ctx, "$X\n")
}

// GetTemperature reports the temperatures on the display.
func (s *Session) GetTemperature(ctx context.Context) error {
	return s.Run(ctx, "M105", false)
}

// Jog moves relative to the current position, e.g. Jog(ctx, "X10 Y-5", 3000).
func (s *Session) Jog(ctx context.Context, axes string, feed float64) error {
	return s.RunSilent(ctx, fmt.Sprintf("G91 G0 %s F%s G90", axes, formatNumber(feed)))
}

// Extrude pushes length mm of filament; a negative length retracts.
func (s *Session) Extrude(ctx context.Context, length, feed float64) error {
	return s.RunSilent(ctx, fmt.Sprintf("G91 G0 E%s F%s G90", formatNumber(length), formatNumber(feed)))
}

func (s *Session) MotorsOff(ctx context.Context) error {
	return s.RunSilent(ctx, "M18")
}

func (s *Session) SetHeater(ctx context.Context, h Heater, temperature float64) error {
	return s.RunSilent(ctx, fmt.Sprintf("M%d S%s", int(h), formatNumber(temperature)))
}

func (s *Session) HeaterOff(ctx context.Context, h Heater) error {
	return s.SetHeater(ctx, h, 0)
}

// Play starts printing a file from the SD card.
func (s *Session) Play(ctx context.Context, name string) error {
	return s.RunSilent(ctx, "play /sd/"+name)
}

// RefreshFiles clears the file list sink and fills it from an M20 listing.
func (s *Session) RefreshFiles(ctx context.Context, files ui.FileList, onComplete func()) error {
	files.ClearFiles()
	return s.Query(ctx, ListFilesCommand, files.AddFile, onComplete)
}
