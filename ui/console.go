package ui

import (
	"fmt"
	"io"
	"sync"
)

// Console renders every sink as prefixed lines on a dynamic set of writers.
// Writers can be added and removed concurrently. With no writers, output is dropped.
type Console struct {
	m       sync.Mutex
	writers []io.Writer
}

func NewConsole(writers ...io.Writer) *Console {
	return &Console{writers: writers}
}

func (c *Console) Add(w io.Writer) {
	c.m.Lock()
	defer c.m.Unlock()
	c.writers = append(c.writers, w)
}

func (c *Console) Remove(w io.Writer) {
	c.m.Lock()
	defer c.m.Unlock()
	for i := 0; i < len(c.writers); i++ {
		if c.writers[i] == w {
			c.writers = append(c.writers[:i], c.writers[i+1:]...)
			i--
		}
	}
}

func (c *Console) printf(format string, args ...any) {
	c.m.Lock()
	defer c.m.Unlock()
	for _, w := range c.writers {
		fmt.Fprintf(w, format, args...)
	}
}

func (c *Console) AppendLine(text string)         { c.printf("%s\n", text) }
func (c *Console) Clear()                         {}
func (c *Console) ScrollToEnd()                   {}
func (c *Console) SetQueryResult(text string)     { c.printf("<%s>\n", text) }
func (c *Console) SetStatus(text string)          { c.printf("[status] %s\n", text) }
func (c *Console) ReportError(text string)        { c.printf("[error] %s\n", text) }
func (c *Console) AddFile(name string)            { c.printf("%s\n", name) }
func (c *Console) ClearFiles()                    {}
func (c *Console) AppendUploadResult(text string) { c.printf("%s", text) }
func (c *Console) ClearUploadResult()             {}
