package parser

import "strings"

// LineBuffer reassembles lines from chunks that are not line aligned.
// Both "\n" and "\r" end a line: progress meters redraw with a bare carriage
// return. An incomplete trailing line is held until a later chunk ends it.
//
// Not safe for concurrent use; keep one buffer per stream.
type LineBuffer struct {
	partial strings.Builder
}

// Feed appends text and returns every line it completed, without
// terminators. Empty lines are dropped.
func (b *LineBuffer) Feed(text string) []string {
	var lines []string
	for {
		i := strings.IndexAny(text, "\r\n")
		if i < 0 {
			b.partial.WriteString(text)
			return lines
		}
		b.partial.WriteString(text[:i])
		if line := b.partial.String(); line != "" {
			lines = append(lines, line)
		}
		b.partial.Reset()
		text = text[i+1:]
	}
}

// Flush returns the buffered partial line, if any, and clears it.
func (b *LineBuffer) Flush() (string, bool) {
	line := b.partial.String()
	b.partial.Reset()
	return line, line != ""
}

// Pending returns the buffered partial line without consuming it.
func (b *LineBuffer) Pending() string {
	return b.partial.String()
}
