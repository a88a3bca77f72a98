// Package capture intercepts everything the process writes to os.Stdout and os.Stderr while a
// test application runs, so that the launcher can hand the output back to the test as lines.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
)

// ErrAlreadyAcquired is returned by Acquire while a previous Filter has not been released.
var ErrAlreadyAcquired = errors.New("console output is already being captured")

// Console is the default capture service. Only one Filter can be outstanding at a time, across
// every Service, since there is only one os.Stdout.
var Console = &Service{}

// Options controls a capture.
type Options struct {
	// Echo copies captured output to the original streams as it arrives.
	Echo bool

	// EchoExclude suppresses echoing of any write that matches one of these patterns. Excluded
	// writes are still captured.
	EchoExclude []*regexp.Regexp
}

// Stats counts how many filters a Service has installed and removed.
type Stats struct {
	Installs int
	Removals int
}

// installed is the filter that currently owns os.Stdout and os.Stderr, whichever Service
// acquired it.
var installed struct { //nolint:gochecknoglobals
	filter *Filter
	lock   sync.Mutex
}

// Service swaps os.Stdout and os.Stderr for pipes while a Filter is installed. Services share
// the process streams, so at most one Filter is outstanding across all of them.
type Service struct {
	active *Filter
	stats  Stats
	lock   sync.Mutex
}

// Acquire installs a new Filter. It fails with ErrAlreadyAcquired if any Service has a Filter
// installed.
func (s *Service) Acquire(opts Options) (*Filter, error) {
	installed.lock.Lock()
	defer installed.lock.Unlock()
	if installed.filter != nil {
		return nil, ErrAlreadyAcquired
	}

	f := &Filter{service: s, origStdout: os.Stdout, origStderr: os.Stderr}
	var err error
	if f.out, err = newStream(os.Stdout, opts); err != nil {
		return nil, fmt.Errorf("unable to capture stdout: %w", err)
	}
	if f.err, err = newStream(os.Stderr, opts); err != nil {
		f.out.close()
		return nil, fmt.Errorf("unable to capture stderr: %w", err)
	}
	os.Stdout = f.out.writer
	os.Stderr = f.err.writer
	installed.filter = f

	s.lock.Lock()
	s.active = f
	s.stats.Installs++
	s.lock.Unlock()
	return f, nil
}

// Active reports whether a Filter acquired from this Service is currently installed.
func (s *Service) Active() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.active != nil
}

func (s *Service) Stats() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stats
}

func (s *Service) release(f *Filter) {
	installed.lock.Lock()
	defer installed.lock.Unlock()
	if installed.filter == f {
		installed.filter = nil
	}
	// a stream replaced by someone else since Acquire is left alone
	if os.Stdout == f.out.writer {
		os.Stdout = f.origStdout
	}
	if os.Stderr == f.err.writer {
		os.Stderr = f.origStderr
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.active == f {
		s.active = nil
		s.stats.Removals++
	}
}

type stream struct {
	reader *os.File
	writer *os.File
	buf    bytes.Buffer
	done   chan struct{}
	lock   sync.Mutex
}

func newStream(original io.Writer, opts Options) (*stream, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	st := &stream{reader: r, writer: w, done: make(chan struct{})}
	var sink io.Writer = lockedWriter{st}
	if opts.Echo {
		sink = io.MultiWriter(sink, newEchoWriter(original, opts.EchoExclude))
	}
	go func() {
		defer close(st.done)
		_, _ = io.Copy(sink, r)
	}()
	return st, nil
}

// close stops the copy goroutine after everything written so far has been consumed.
func (st *stream) close() string {
	_ = st.writer.Close()
	<-st.done
	_ = st.reader.Close()
	st.lock.Lock()
	defer st.lock.Unlock()
	return st.buf.String()
}

type lockedWriter struct{ st *stream }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.st.lock.Lock()
	defer w.st.lock.Unlock()
	return w.st.buf.Write(p)
}

type echoWriter struct {
	writer       io.Writer
	excludeRegex []*regexp.Regexp
}

func newEchoWriter(writer io.Writer, excludeRegex []*regexp.Regexp) *echoWriter {
	return &echoWriter{writer, excludeRegex}
}

func (e *echoWriter) Write(data []byte) (int, error) {
	for _, r := range e.excludeRegex {
		if r.Match(data) {
			return len(data), nil
		}
	}
	// an echo failure must not stop the capture
	_, _ = e.writer.Write(data)
	return len(data), nil
}
