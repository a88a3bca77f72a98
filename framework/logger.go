package framework

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging interface used throughout the launcher. The standard library's
// *log.Logger satisfies it.
type Logger interface {
	Println(args ...interface{})
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Println(args ...interface{})                {}
func (n nullLogger) Printf(message string, args ...interface{}) {}

// NullLogger returns a Logger that discards everything.
func NullLogger() Logger { return nullLogger{} }

// OrNullLogger returns logger, or a NullLogger if logger is nil.
func OrNullLogger(logger Logger) Logger {
	if logger == nil {
		return NullLogger()
	}
	return logger
}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger records every message it receives. A capturing logger can have child
// loggers: while a child is attached, messages sent to the parent go to the child instead, and
// the child starts out with a copy of whatever the parent had already captured. Suite scopes
// use this so that output produced by a shared fixture ends up in the scope that is running.
type CapturingLogger struct {
	output   []CapturedMessage
	children []*CapturingLogger
	lock     sync.Mutex
}

func (l *CapturingLogger) Println(args ...interface{}) {
	m := strings.TrimRight(fmt.Sprintln(args...), "\r\n")
	l.append(CapturedMessage{Time: time.Now(), Message: m})
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.append(CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
}

func (l *CapturingLogger) append(m CapturedMessage) {
	var children []*CapturingLogger
	l.lock.Lock()
	if len(l.children) == 0 {
		l.output = append(l.output, m)
	} else {
		children = append([]*CapturingLogger(nil), l.children...)
	}
	l.lock.Unlock()
	for _, c := range children {
		c.append(m)
	}
}

// Output returns a snapshot of the captured messages.
func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append(CapturedOutput(nil), l.output...)
}

// Messages returns just the message text of everything captured so far.
func (l *CapturingLogger) Messages() []string {
	out := l.Output()
	ret := make([]string, 0, len(out))
	for _, m := range out {
		ret = append(ret, m.Message)
	}
	return ret
}

func (l *CapturingLogger) AddChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	l.children = append(l.children, child)
	inherited := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	child.lock.Lock()
	child.output = append(inherited, child.output...)
	child.lock.Unlock()
}

func (l *CapturingLogger) RemoveChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}

func (output CapturedOutput) ToString(prefix string) string {
	lines := make([]string, 0, len(output))
	for _, m := range output {
		lines = append(lines, fmt.Sprintf("%s[%s] %s", prefix, m.Time.Format(timestampFormat), m.Message))
	}
	return strings.Join(lines, "\n")
}

type prefixedLogger struct {
	base   Logger
	prefix string
}

// LoggerWithPrefix returns a Logger that prepends prefix to every message.
func LoggerWithPrefix(baseLogger Logger, prefix string) Logger {
	return prefixedLogger{OrNullLogger(baseLogger), prefix}
}

func (p prefixedLogger) Println(args ...interface{}) {
	p.base.Println(append([]interface{}{p.prefix}, args...)...)
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.base.Printf(p.prefix+message, args...)
}

// WriterLogger writes each message as a single timestamped line. The writer is obtained from
// the supplied function on every call, so a logger built on func() io.Writer { return os.Stderr }
// follows any later reassignment of os.Stderr.
type WriterLogger struct {
	writer func() io.Writer
	lock   sync.Mutex
}

func NewWriterLogger(writer func() io.Writer) *WriterLogger {
	return &WriterLogger{writer: writer}
}

func (w *WriterLogger) Println(args ...interface{}) {
	w.write(strings.TrimRight(fmt.Sprintln(args...), "\r\n"))
}

func (w *WriterLogger) Printf(message string, args ...interface{}) {
	w.write(fmt.Sprintf(message, args...))
}

func (w *WriterLogger) write(message string) {
	line := FormatLine(time.Now(), message)
	w.lock.Lock()
	_, _ = io.WriteString(w.writer(), line+"\n")
	w.lock.Unlock()
}

// FormatLine renders a message the same way CapturedOutput.ToString does for one entry.
func FormatLine(t time.Time, message string) string {
	return fmt.Sprintf("[%s] %s", t.Format(timestampFormat), message)
}
