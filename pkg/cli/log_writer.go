package cli

import (
	"strings"

	"github.com/eburon/brokerdial/pkg/buffer"
)

// LogWriter is an io.Writer that keeps the most recent log lines for the
// live call view. Old lines fall out of the window.
type LogWriter struct {
	win *buffer.Window[string]
	ch  chan string
}

// NewLogWriter returns a writer keeping at most maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		win: buffer.WindowN[string](maxLines),
		ch:  make(chan string, 100),
	}
}

// Write splits p into lines and records each one. Listeners on Channel
// are notified without blocking.
func (w *LogWriter) Write(p []byte) (n int, err error) {
	text := strings.TrimRight(string(p), "\n")
	for _, line := range strings.Split(text, "\n") {
		w.win.Add(line)
		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	return w.win.Items()
}

// Channel delivers new lines as they are written.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
