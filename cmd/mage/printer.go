package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// eventPrinter writes one line per event: the tag, then the data if any.
type eventPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	tag  func(string, ...any) string
	data func(string, ...any) string
}

func newEventPrinter(w io.Writer, colored bool) *eventPrinter {
	p := &eventPrinter{w: w, tag: plain, data: plain}
	if !colored {
		return p
	}
	tag := color.RGB(196, 96, 16)
	tag.EnableColor()
	data := color.RGB(128, 168, 196)
	data.EnableColor()
	p.tag = escaped(tag.SprintfFunc())
	p.data = escaped(data.SprintfFunc())
	return p
}

func plain(v string, _ ...any) string { return v }

func escaped(f func(string, ...any) string) func(string, ...any) string {
	return func(v string, _ ...any) string {
		return f(strings.ReplaceAll(v, "%", "%%"))
	}
}

func (p *eventPrinter) print(tag string, data json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(data) == 0 {
		fmt.Fprintln(p.w, p.tag(tag))
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.tag(tag), p.data(string(data)))
}
