// Package applog provides the process-wide root logger that applications under test log
// through. Until the logger is activated, its baseline handler only buffers messages; the
// launcher temporarily replaces the handler so that log output is captured with the rest of the
// application's console output.
package applog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mainlaunch/mainlaunch/framework"
)

// Record is one log message.
type Record struct {
	Time    time.Time
	Message string
}

// Handler receives the records logged through a RootLogger.
type Handler interface {
	Handle(Record)
}

// WriterHandler writes each record as a timestamped line.
type WriterHandler struct {
	Writer io.Writer
	lock   sync.Mutex
}

func (h *WriterHandler) Handle(r Record) {
	h.lock.Lock()
	defer h.lock.Unlock()
	_, _ = io.WriteString(h.Writer, framework.FormatLine(r.Time, r.Message)+"\n")
}

// DelayedHandler buffers records until it is activated, then writes the buffered records and
// everything after them to its target.
type DelayedHandler struct {
	target    func() io.Writer
	buffered  []Record
	activated bool
	lock      sync.Mutex
}

// NewDelayedHandler creates a DelayedHandler. The target is looked up again for every write.
func NewDelayedHandler(target func() io.Writer) *DelayedHandler {
	return &DelayedHandler{target: target}
}

func (h *DelayedHandler) Handle(r Record) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if !h.activated {
		h.buffered = append(h.buffered, r)
		return
	}
	h.write(r)
}

// Activate flushes buffered records. Calling it again has no effect.
func (h *DelayedHandler) Activate() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.activated {
		return
	}
	h.activated = true
	for _, r := range h.buffered {
		h.write(r)
	}
	h.buffered = nil
}

func (h *DelayedHandler) IsActivated() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.activated
}

// Buffered returns the number of records waiting for activation.
func (h *DelayedHandler) Buffered() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.buffered)
}

func (h *DelayedHandler) write(r Record) {
	_, _ = io.WriteString(h.target(), framework.FormatLine(r.Time, r.Message)+"\n")
}

// RootLogger is a framework.Logger that forwards to a replaceable Handler.
type RootLogger struct {
	baseline *DelayedHandler
	handler  Handler
	lock     sync.RWMutex
}

// NewRootLogger creates a RootLogger whose handler starts out as baseline.
func NewRootLogger(baseline *DelayedHandler) *RootLogger {
	return &RootLogger{baseline: baseline, handler: baseline}
}

func (l *RootLogger) Println(args ...interface{}) {
	l.handle(strings.TrimRight(fmt.Sprintln(args...), "\r\n"))
}

func (l *RootLogger) Printf(message string, args ...interface{}) {
	l.handle(fmt.Sprintf(message, args...))
}

func (l *RootLogger) handle(message string) {
	l.lock.RLock()
	h := l.handler
	l.lock.RUnlock()
	h.Handle(Record{Time: time.Now(), Message: message})
}

// SetHandler replaces the handler and returns the previous one.
func (l *RootLogger) SetHandler(h Handler) Handler {
	l.lock.Lock()
	defer l.lock.Unlock()
	previous := l.handler
	l.handler = h
	return previous
}

func (l *RootLogger) Baseline() *DelayedHandler { return l.baseline }

// InstallRedirect sends everything logged through this logger, and through the standard
// library's default logger, to w. The returned function undoes both changes.
func (l *RootLogger) InstallRedirect(w io.Writer) (restore func()) {
	previous := l.SetHandler(&WriterHandler{Writer: w})
	previousOutput := log.Writer()
	log.SetOutput(w)
	var once sync.Once
	return func() {
		once.Do(func() {
			log.SetOutput(previousOutput)
			l.SetHandler(previous)
		})
	}
}

var root = NewRootLogger(NewDelayedHandler(func() io.Writer { return os.Stderr }))

// Root returns the process-wide root logger.
func Root() *RootLogger { return root }

// Activate activates the root logger's baseline handler.
func Activate() { root.baseline.Activate() }

func IsActivated() bool { return root.baseline.IsActivated() }

// InstallRedirect redirects the root logger. See RootLogger.InstallRedirect.
func InstallRedirect(w io.Writer) (restore func()) { return root.InstallRedirect(w) }
