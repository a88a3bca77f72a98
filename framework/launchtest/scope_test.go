package launchtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/helpers"
	"github.com/mainlaunch/mainlaunch/framework/launchtest/internal"
)

var _ helpers.TestContext = (*T)(nil)

func withoutColor(t *testing.T) {
	previous := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = previous })
}

func TestScopeExitsImmediatelyOnFailNow(t *testing.T) {
	var before, after, parentContinued bool
	results := Run(Config{}, func(lt *T) {
		lt.Run("failing", func(lt *T) {
			before = true
			lt.FailNow()
			after = true
		})
		parentContinued = true
	})
	assert.True(t, before)
	assert.False(t, after)
	assert.True(t, parentContinued)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "test failed with no failure message", results.Failures[0].Errors[0].Error())
}

func TestScopeSkip(t *testing.T) {
	results := Run(Config{}, func(lt *T) {
		lt.Run("parent", func(lt0 *T) {
			lt0.Run("a", func(lt1 *T) { lt1.Skip() })
			lt0.Run("b", func(lt1 *T) { lt1.SkipWithReason("not today") })
		})
	})
	assert.True(t, results.OK())
	require.Len(t, results.Skipped, 2)
	assert.Equal(t, TestID{"parent", "b"}, results.Skipped[1].TestID)
	require.Len(t, results.Tests, 2)
	assert.Equal(t, TestID{"parent"}, results.Tests[0].TestID)
	assert.Nil(t, results.Tests[1].TestID)
}

func TestScopeResults(t *testing.T) {
	results := Run(Config{}, func(lt *T) {
		lt.Run("parent", func(lt0 *T) {
			lt0.Run("passes", func(*T) {})
			lt0.Run("fails", func(lt1 *T) {
				lt1.Errorf("failed because %s", "reasons")
				lt1.Errorf("and again")
			})
		})
	})

	assert.False(t, results.OK())
	require.Len(t, results.Tests, 4)
	assert.Equal(t, 3, results.Passed())
	require.Len(t, results.Failures, 1)
	failure := results.Failures[0]
	assert.Equal(t, TestID{"parent", "fails"}, failure.TestID)
	require.Len(t, failure.Errors, 2)
	assert.Equal(t, "failed because reasons", failure.Errors[0].Error())
	assert.Equal(t, "and again", failure.Errors[1].Error())
	assert.Equal(t, TestID{"parent", "passes"}, results.Tests[0].TestID)
}

func TestScopePanicIsReported(t *testing.T) {
	results := Run(Config{}, func(lt *T) {
		lt.Run("explodes", func(*T) { panic("boom") })
	})
	require.Len(t, results.Failures, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "unexpected panic in test: boom")
}

func TestScopeDeferAndContext(t *testing.T) {
	var order []string
	var ctx context.Context
	Run(Config{Values: "shared"}, func(lt *T) {
		lt.Run("scope", func(lt *T) {
			ctx = lt.Context()
			assert.Equal(t, "shared", lt.Values())
			lt.Defer(func() { order = append(order, "first") })
			lt.Defer(func() {
				assert.NoError(t, ctx.Err())
				order = append(order, "second")
			})
		})
	})
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, context.Canceled, ctx.Err())
}

func TestScopeTimeout(t *testing.T) {
	Run(Config{Timeout: 10 * time.Millisecond}, func(lt *T) {
		lt.Run("slow", func(lt *T) {
			select {
			case <-lt.Context().Done():
				assert.True(t, errors.Is(lt.Context().Err(), context.DeadlineExceeded))
			case <-time.After(time.Second):
				assert.Fail(t, "scope context was not cancelled")
			}
		})
	})
}

func TestScopeFilter(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("b"))
	logger := &recordingLogger{}
	results := Run(Config{Filter: filters.Match, TestLogger: logger}, func(lt *T) {
		lt.Run("a", func(lt0 *T) { lt0.Run("x", func(*T) {}) })
		lt.Run("b", func(lt0 *T) { lt0.Run("y", func(*T) {}) })
	})
	ids := make([]string, 0, len(results.Tests))
	for _, r := range results.Tests {
		ids = append(ids, r.TestID.String())
	}
	assert.Equal(t, []string{"b/y", "b", ""}, ids)
	assert.Equal(t, []string{"skipped a: excluded by filter parameters", "started b", "started b/y",
		"finished b/y", "finished b"}, logger.events)
}

func TestDebugOutputGoesToRunningChild(t *testing.T) {
	logger := &recordingLogger{}
	Run(Config{TestLogger: logger}, func(lt *T) {
		lt.Run("parent", func(parent *T) {
			parent.Debug("setup")
			parent.Run("child", func(*T) {
				parent.DebugLogger().Printf("from shared fixture")
			})
		})
	})
	assert.Equal(t, []string{"setup", "from shared fixture"}, logger.output["parent/child"])
	assert.Equal(t, []string{"setup"}, logger.output["parent"])
}

func TestStacktrace(t *testing.T) {
	Run(Config{}, func(lt *T) {
		lt.Run("own frames included", func(*T) {
			stack := getStacktrace(true, nil)
			require.Greater(t, len(stack), 1)
			assert.Equal(t, thisPackage(), stack[0].Package)
			assert.Contains(t, stack[0].Function, "TestStacktrace.")
		})
		lt.Run("own frames excluded", func(*T) {
			internal.Invoke(func() {
				stack := getStacktrace(false, nil)
				require.Len(t, stack, 1)
				assert.Equal(t, thisPackage()+"/internal", stack[0].Package)
				assert.Equal(t, "Invoke", stack[0].Function)
			})
		})
	})
}

func TestTransformErrorStripsTestifyTrace(t *testing.T) {
	err := transformError(errors.New("\n\tError Trace:\tfoo.go:1\n\tError:      \tNot equal"), nil)
	assert.Equal(t, "Not equal", err.Error())
}

func TestTestID(t *testing.T) {
	id := TestID{"a"}
	child := id.Plus("b")
	assert.Equal(t, "a/b", child.String())
	assert.Equal(t, TestID{"a"}, id)
	assert.Equal(t, TestID{"a"}, child.Parent())
	assert.Nil(t, TestID{}.Parent())
}

func TestRegexFilters(t *testing.T) {
	cases := []struct {
		run, skip   []string
		id          TestID
		shouldMatch bool
	}{
		{nil, nil, TestID{"a", "b"}, true},
		{[]string{"a"}, nil, TestID(nil), true},
		{[]string{"a"}, nil, TestID{"b"}, false},
		{[]string{"a/b"}, nil, TestID{"a"}, true},
		{[]string{"a/b"}, nil, TestID{"a", "c"}, false},
		{[]string{"a", "b"}, nil, TestID{"b", "c"}, true},
		{nil, []string{"a"}, TestID{"xax"}, false},
		{nil, []string{"a/b"}, TestID{"a"}, true},
		{nil, []string{"a/b"}, TestID{"a", "b", "c"}, false},
		{[]string{"y"}, []string{"n"}, TestID{"yn"}, false},
	}
	for _, c := range cases {
		var r RegexFilters
		for _, s := range c.run {
			require.NoError(t, r.MustMatch.Set(s))
		}
		for _, s := range c.skip {
			require.NoError(t, r.MustNotMatch.Set(s))
		}
		t.Run(fmt.Sprintf("run=%s, skip=%s, id=%s", r.MustMatch, r.MustNotMatch, c.id), func(t *testing.T) {
			assert.Equal(t, c.shouldMatch, r.Match(c.id))
		})
	}

	var r RegexFilters
	assert.Error(t, r.MustMatch.Set("("))
	assert.Equal(t, "", r.Describe())
	require.NoError(t, r.MustNotMatch.Set("slow/.*"))
	assert.Equal(t, `skipping any scenario matching "slow/.*"`, r.Describe())
}

func TestConsoleTestLogger(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	logger := ConsoleTestLogger{DebugOutputOnFailure: true, Writer: &buf}
	Run(Config{TestLogger: logger}, func(lt *T) {
		lt.Run("ok", func(*T) {})
		lt.Run("bad", func(lt *T) {
			lt.Debug("context line")
			lt.Errorf("line one\nline two")
		})
		lt.Run("skipped", func(lt *T) { lt.SkipWithReason("later") })
	})
	out := buf.String()
	assert.Contains(t, out, "[ok]\n")
	assert.Contains(t, out, "  line one\n  line two\n")
	assert.Contains(t, out, "  FAILED: bad\n")
	assert.Contains(t, out, "DEBUG [")
	assert.Contains(t, out, "context line")
	assert.Contains(t, out, "  SKIPPED: skipped (later)\n")
}

func TestPrintResults(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	PrintResults(&buf, Results{Tests: []TestResult{{TestID: TestID{"a"}}}})
	assert.Equal(t, "All scenarios passed (1)\n", buf.String())

	buf.Reset()
	failure := TestResult{TestID: TestID{"b"}, Errors: []error{errors.New("x")}}
	PrintResults(&buf, Results{Tests: []TestResult{failure}, Failures: []TestResult{failure}})
	assert.Equal(t, "FAILED SCENARIOS (1):\n  * b\n", buf.String())
}

func TestJUnitTestLogger(t *testing.T) {
	withoutColor(t)
	path := filepath.Join(t.TempDir(), "junit.xml")
	junit := NewJUnitTestLogger(path, "Launch scenarios", map[string]string{"module": "example.com/app"})
	var console bytes.Buffer
	Run(Config{TestLogger: MultiTestLogger{junit, ConsoleTestLogger{Writer: &console}}}, func(lt *T) {
		lt.Run("greeter", func(lt *T) {
			lt.Run("help", func(*T) {})
			lt.Run("bad args", func(lt *T) { lt.Errorf("Exit code did not match") })
			lt.Run("later", func(lt *T) { lt.SkipWithReason("not ready") })
		})
	})
	require.NoError(t, junit.EndLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	xml := string(data)
	assert.Contains(t, xml, `<testsuite tests="4" failures="1" skipped="1"`)
	assert.Contains(t, xml, `name="Launch scenarios: greeter"`)
	assert.Contains(t, xml, `<property name="module" value="example.com/app"></property>`)
	assert.Contains(t, xml, `name="greeter/bad args"`)
	assert.Contains(t, xml, `<failure message="Exit code did not match`)
	assert.Contains(t, xml, `<skipped message="not ready"></skipped>`)
	assert.True(t, strings.Contains(console.String(), "FAILED: greeter/bad args"))
}

type recordingLogger struct {
	events []string
	output map[string][]string
}

func (r *recordingLogger) TestStarted(id TestID) { r.events = append(r.events, "started "+id.String()) }

func (r *recordingLogger) TestError(id TestID, err error) {
	r.events = append(r.events, "error "+id.String())
}

func (r *recordingLogger) TestFinished(id TestID, _ TestResult, out framework.CapturedOutput) {
	r.events = append(r.events, "finished "+id.String())
	if r.output == nil {
		r.output = make(map[string][]string)
	}
	for _, m := range out {
		r.output[id.String()] = append(r.output[id.String()], m.Message)
	}
}

func (r *recordingLogger) TestSkipped(id TestID, reason string) {
	r.events = append(r.events, "skipped "+id.String()+": "+reason)
}
