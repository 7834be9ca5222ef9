package command

import "strings"

type Kind int

const (
	Plain Kind = iota
	Bracketed
)

func (k Kind) String() string {
	if k == Bracketed {
		return "bracketed"
	}
	return "plain"
}

// Frame is a classified inbound message.
// For Bracketed frames Text is the payload, for Plain frames it is the message as received.
type Frame struct {
	Kind Kind
	Text string
}

// Classify decides whether text is a bracketed status token or plain output.
// A bracketed frame starts with '<' (leading whitespace ignored); the payload drops that character and the last two.
// Messages too short to strip are Plain.
func Classify(text string) Frame {
	s := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(s, "<") && len(s) >= 3 {
		return Frame{Kind: Bracketed, Text: s[1 : len(s)-2]}
	}
	return Frame{Kind: Plain, Text: text}
}
