// Package logger wraps slog with a handler that writes to a caller-
// supplied file (if any) and, at Info level and above (or always, if
// debug logging is requested), also to stderr -- so a background run
// keeps a full log file while the console still sees anything worth a
// human's attention. Each record is rendered as one line of
// space-separated "key=value" fields rather than slog's default JSON,
// readable in a terminal next to the CPU trace output this emulator's
// other debug tooling produces.
package logger

/*
 * pcemu - slog handler
 *
 * Copyright 2026, pcemu authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogHandler formats records as "time level: message key=value ..." lines,
// sharing one mutex-guarded write path across a log file and stderr. Bound
// attributes (from slog.Logger.With) and a group prefix (from WithGroup)
// are tracked directly rather than delegated to a wrapped handler, since
// nothing here needs a second handler's own formatting.
type LogHandler struct {
	out   io.Writer
	level slog.Leveler
	mu    *sync.Mutex
	debug bool
	attrs []slog.Attr
	group string
}

// Enabled reports whether level meets this handler's configured minimum,
// slog.LevelInfo when none was given.
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.level != nil {
		minLevel = h.level.Level()
	}
	return level >= minLevel
}

// WithAttrs returns a handler that prepends attrs to every future record,
// the way a component-scoped logger (e.g. one Dispatch call's "vector"
// attribute) stays attached across a chain of log calls.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup returns a handler whose keys (bound and per-record alike) are
// prefixed with name, nesting dotted if called more than once.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group == "" {
		next.group = name
	} else {
		next.group = next.group + "." + name
	}
	return &next
}

// Handle writes one formatted line for r to the configured file (if any)
// and, when debug is set or the record is above LevelDebug, to stderr.
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	strs := []string{
		r.Time.Format("2006/01/02 15:04:05"),
		r.Level.String() + ":",
		r.Message,
	}

	for _, a := range h.attrs {
		strs = append(strs, h.formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		strs = append(strs, h.formatAttr(a))
		return true
	})

	b := []byte(strings.Join(strs, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}
	if h.debug || r.Level > slog.LevelDebug {
		_, err = os.Stderr.Write(b)
	}
	return err
}

func (h *LogHandler) formatAttr(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return fmt.Sprintf("%s=%s", key, a.Value.String())
}

// SetDebug toggles whether every record (not just Info-and-above) is also
// echoed to stderr.
func (h *LogHandler) SetDebug(debug *bool) {
	h.debug = *debug
}

// NewHandler builds a LogHandler writing to file (which may be nil, for
// stderr-only logging) at the level opts names.
func NewHandler(file io.Writer, opts *slog.HandlerOptions, debug *bool) *LogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &LogHandler{
		out:   file,
		level: opts.Level,
		mu:    &sync.Mutex{},
		debug: *debug,
	}
}
