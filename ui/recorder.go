package ui

import (
	"sync"
)

// Call is one recorded sink invocation.
type Call struct {
	Method string
	Arg    string
}

// Recorder implements every sink and records calls in order. It is safe for concurrent use.
type Recorder struct {
	mut   sync.Mutex
	calls []Call
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(method, arg string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.calls = append(r.calls, Call{Method: method, Arg: arg})
}

func (r *Recorder) AppendLine(text string)         { r.record("AppendLine", text) }
func (r *Recorder) Clear()                         { r.record("Clear", "") }
func (r *Recorder) ScrollToEnd()                   { r.record("ScrollToEnd", "") }
func (r *Recorder) SetQueryResult(text string)     { r.record("SetQueryResult", text) }
func (r *Recorder) SetStatus(text string)          { r.record("SetStatus", text) }
func (r *Recorder) ReportError(text string)        { r.record("ReportError", text) }
func (r *Recorder) AddFile(name string)            { r.record("AddFile", name) }
func (r *Recorder) ClearFiles()                    { r.record("ClearFiles", "") }
func (r *Recorder) AppendUploadResult(text string) { r.record("AppendUploadResult", text) }
func (r *Recorder) ClearUploadResult()             { r.record("ClearUploadResult", "") }

// Calls returns a copy of every call so far.
func (r *Recorder) Calls() []Call {
	r.mut.Lock()
	defer r.mut.Unlock()
	return append([]Call(nil), r.calls...)
}

// Args returns the arguments of every call to method, in order.
func (r *Recorder) Args(method string) []string {
	var args []string
	for _, c := range r.Calls() {
		if c.Method == method {
			args = append(args, c.Arg)
		}
	}
	return args
}

func (r *Recorder) Count(method string) int {
	return len(r.Args(method))
}

func (r *Recorder) Reset() {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.calls = nil
}
