package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// consoleHidden lists attributes that stay in the log file only.
var consoleHidden = map[string]bool{
	"intention": true,
	"time":      true,
	"level":     true,
	"msg":       true,
	"component": true,
	"event":     true,
}

// plainHandler prints the message, prefixed by the intention icon, followed
// by key=value pairs. No time or level decorations.
type plainHandler struct {
	w       io.Writer
	mu      *sync.Mutex
	attrs   []slog.Attr
	leveler slog.Leveler
}

func newPlainHandler(w io.Writer, leveler slog.Leveler) slog.Handler {
	return &plainHandler{w: w, mu: &sync.Mutex{}, leveler: leveler}
}

func (h *plainHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	if h.leveler == nil {
		return true
	}
	return lvl >= h.leveler.Level()
}

func (h *plainHandler) Handle(_ context.Context, r slog.Record) error {
	var (
		intention string
		pairs     []string
	)
	visit := func(a slog.Attr) {
		if a.Key == "intention" {
			intention = a.Value.String()
		}
		if consoleHidden[a.Key] || a.Key == "" {
			return
		}
		pairs = append(pairs, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	flatten := func(a slog.Attr) bool {
		if a.Value.Kind() == slog.KindGroup {
			for _, ga := range a.Value.Group() {
				visit(ga)
			}
			return true
		}
		visit(a)
		return true
	}

	for _, a := range h.attrs {
		flatten(a)
	}
	r.Attrs(flatten)

	var b strings.Builder
	if intention != "" {
		b.WriteString(iconFor(Intention(intention)))
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)
	for _, p := range pairs {
		b.WriteByte(' ')
		b.WriteString(p)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, b.String())
	return err
}

func (h *plainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

// WithGroup is flattened for console output.
func (h *plainHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), slog.Group(name))
	return &nh
}
