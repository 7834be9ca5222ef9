// Package ui defines the sinks through which the protocol layer reports to a user interface.
// Rendering is not done here; a sink decides how lines, statuses and errors are shown.
package ui

// Display is the scrolling console that shows plain controller output.
type Display interface {
	AppendLine(text string)
	Clear()
	ScrollToEnd()
}

// QueryResult shows the latest bracketed status/query token.
type QueryResult interface {
	SetQueryResult(text string)
}

type Status interface {
	SetStatus(text string)
}

type ErrorReporter interface {
	ReportError(text string)
}

// FileList collects the names returned by a directory listing.
type FileList interface {
	AddFile(name string)
	ClearFiles()
}

// UploadResult receives the feedback the controller sends on the upload channel, verbatim.
type UploadResult interface {
	AppendUploadResult(text string)
	ClearUploadResult()
}

// Sinks groups every sink used by the client. Nil fields are replaced by Discard in WithDefaults.
type Sinks struct {
	Display      Display
	QueryResult  QueryResult
	Status       Status
	UploadStatus Status
	Error        ErrorReporter
	UploadError  ErrorReporter
	Files        FileList
	UploadResult UploadResult
}

func (s Sinks) WithDefaults() Sinks {
	if s.Display == nil {
		s.Display = Discard
	}
	if s.QueryResult == nil {
		s.QueryResult = Discard
	}
	if s.Status == nil {
		s.Status = Discard
	}
	if s.UploadStatus == nil {
		s.UploadStatus = s.Status
	}
	if s.Error == nil {
		s.Error = Discard
	}
	if s.UploadError == nil {
		s.UploadError = s.Error
	}
	if s.Files == nil {
		s.Files = Discard
	}
	if s.UploadResult == nil {
		s.UploadResult = Discard
	}
	return s
}

// All returns Sinks with every field set to the same implementation.
func All(s interface {
	Display
	QueryResult
	Status
	ErrorReporter
	FileList
	UploadResult
}) Sinks {
	return Sinks{
		Display:      s,
		QueryResult:  s,
		Status:       s,
		UploadStatus: s,
		Error:        s,
		UploadError:  s,
		Files:        s,
		UploadResult: s,
	}
}

type discard struct{}

func (discard) AppendLine(string)         {}
func (discard) Clear()                    {}
func (discard) ScrollToEnd()              {}
func (discard) SetQueryResult(string)     {}
func (discard) SetStatus(string)          {}
func (discard) ReportError(string)        {}
func (discard) AddFile(string)            {}
func (discard) ClearFiles()               {}
func (discard) AppendUploadResult(string) {}
func (discard) ClearUploadResult()        {}

// Discard implements every sink and drops everything.
var Discard discard
