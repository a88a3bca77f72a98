package launchtest

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/mainlaunch/mainlaunch/framework/helpers"
)

// ErrorWithStacktrace is a failure together with where it was reported from.
type ErrorWithStacktrace struct {
	Message    string
	Stacktrace []StackFrame
}

type StackFrame struct {
	FileName string
	Package  string
	Function string
	Line     int
}

func (e ErrorWithStacktrace) Error() string { return e.Message }

func (s StackFrame) String() string {
	return fmt.Sprintf("%s.%s (%s:%d)", s.Package, s.Function, s.FileName, s.Line)
}

var testifyTraceRegex = regexp.MustCompile(`^(?s:\s*Error Trace:.*\sError:\s*)`)

// transformError replaces any trace that testify put in the message with our own.
func transformError(err error, stacktrace []StackFrame) error {
	message := err.Error()
	if strings.Contains(message, "Error Trace:") {
		message = strings.TrimSpace(testifyTraceRegex.ReplaceAllLiteralString(message, ""))
	}
	if len(stacktrace) == 0 {
		return errors.New(message)
	}
	return ErrorWithStacktrace{Message: message, Stacktrace: stacktrace}
}

func thisPackage() string {
	pc, _, _, ok := runtime.Caller(0)
	if !ok {
		return "?"
	}
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "?"
	}
	pkg, _ := splitFunctionName(f.Name())
	return pkg
}

// getStacktrace walks up from its caller to the root Run of the suite. Frames in this package
// are left out unless includeOwn is set, as are frames of functions marked with T.Helper.
func getStacktrace(includeOwn bool, helperFns []string) []StackFrame {
	frames := []StackFrame{}
	own := thisPackage()
	for i := 1; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		f := runtime.FuncForPC(pc)
		if f == nil {
			break
		}
		pkg, fn := splitFunctionName(f.Name())
		if pkg == own && fn == "Run" {
			break
		}
		if (!includeOwn && pkg == own) || helpers.SliceContains(f.Name(), helperFns) {
			continue
		}
		frames = append(frames, StackFrame{
			FileName: file[strings.LastIndex(file, "/")+1:],
			Package:  pkg,
			Function: fn,
			Line:     line,
		})
	}
	return frames
}

func splitFunctionName(fullName string) (string, string) {
	lastSlash := strings.LastIndex(fullName, "/")
	dot := strings.Index(fullName[lastSlash+1:], ".")
	pkg := fullName[:lastSlash+dot+1]
	return pkg, fullName[len(pkg)+1:]
}
