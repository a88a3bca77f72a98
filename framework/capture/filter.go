package capture

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

// Output is what a Filter captured, with ANSI escapes removed and split into lines.
type Output struct {
	Out []string
	Err []string
}

// Filter is an installed capture. Release must be called exactly once to restore the console;
// further calls return the same Output.
type Filter struct {
	service    *Service
	origStdout *os.File
	origStderr *os.File
	out        *stream
	err        *stream
	released   *Output
	lock       sync.Mutex
}

// Stdout returns a writer whose output is captured as if it had been written to os.Stdout.
func (f *Filter) Stdout() io.Writer { return f.out.writer }

// Stderr returns a writer whose output is captured as if it had been written to os.Stderr.
func (f *Filter) Stderr() io.Writer { return f.err.writer }

// OriginalStdout is the stream that was os.Stdout when the filter was installed.
func (f *Filter) OriginalStdout() io.Writer { return f.origStdout }

// Release removes the filter and returns everything it captured.
func (f *Filter) Release() Output {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.released != nil {
		return *f.released
	}
	f.service.release(f)
	out := Output{Out: Lines(f.out.close()), Err: Lines(f.err.close())}
	f.released = &out
	return out
}

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	return stripansi.Strip(s)
}

// Lines strips ANSI escapes from raw and splits it into lines. Windows line endings are
// normalized, trailing empty lines are dropped, and empty input gives no lines at all.
func Lines(raw string) []string {
	text := strings.ReplaceAll(StripANSI(raw), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return append([]string{}, lines[:end]...)
}
