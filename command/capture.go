package command

import (
	"regexp"
	"strings"
)

const FileListTerminator = "End file list"

// FileNamePattern matches the G-code file names worth listing.
var FileNamePattern = regexp.MustCompile(`(\.g(code)?|\.nc|\.gc)$`)

// CaptureHandler consumes the full text of a plain frame and reports whether the capture is complete.
type CaptureHandler func(text string) (done bool)

// Capture describes a line-oriented structured reply that ends with a terminator line.
type Capture struct {
	// Terminator is matched as a case-sensitive substring of each trimmed line.
	Terminator string
	// Match selects the lines passed to OnLine. Nil passes every non-empty line.
	Match *regexp.Regexp

	OnLine     func(line string)
	OnComplete func()
}

// FileListCapture captures a directory listing terminated by "End file list".
func FileListCapture(onLine func(name string), onComplete func()) Capture {
	return Capture{
		Terminator: FileListTerminator,
		Match:      FileNamePattern,
		OnLine:     onLine,
		OnComplete: onComplete,
	}
}

// Handler returns the CaptureHandler for c. Lines after the terminator in the same frame are discarded.
func (c Capture) Handler() CaptureHandler {
	return func(text string) bool {
		for _, line := range strings.Split(text, "\n") {
			item := strings.TrimSpace(line)
			if c.Terminator != "" && strings.Contains(item, c.Terminator) {
				// the rest of the frame is dropped, file names after the terminator included
				return true
			}
			if c.Match == nil {
				if item == "" {
					continue
				}
			} else if !c.Match.MatchString(item) {
				continue
			}
			if c.OnLine != nil {
				c.OnLine(item)
			}
		}
		return false
	}
}
