package scenarios

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/mainlaunch/mainlaunch/framework/launchtest"
)

const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Outcome is what happened in one launch. ExitCode is -1 if the application never exited
// normally.
type Outcome struct {
	ID          launchtest.TestID
	Class       string
	Profile     string
	Mode        string
	Args        []string
	Expected    int
	ExitCode    int
	Status      string
	Duration    time.Duration
	Errors      []string
	Output      []string
	ErrorOutput []string
}

// Report lists the outcome of every launch that ran or was skipped.
type Report struct {
	Outcomes []Outcome
}

// Counts returns the number of passed, failed and skipped launches.
func (r *Report) Counts() (passed, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// JSON encodes the report as a JSON object with a "launches" array.
func (r *Report) JSON() []byte {
	w := jwriter.NewWriter()
	obj := w.Object()
	passed, failed, skipped := r.Counts()
	obj.Name("passed").Int(passed)
	obj.Name("failed").Int(failed)
	obj.Name("skipped").Int(skipped)
	launches := obj.Name("launches").Array()
	for _, o := range r.Outcomes {
		lo := launches.Object()
		lo.Name("id").String(o.ID.String())
		lo.Name("class").String(o.Class)
		lo.Maybe("profile", o.Profile != "").String(o.Profile)
		lo.Name("mode").String(o.Mode)
		args := lo.Name("args").Array()
		for _, a := range o.Args {
			args.String(a)
		}
		args.End()
		lo.Name("expectedExitCode").Int(o.Expected)
		lo.Name("exitCode").Int(o.ExitCode)
		lo.Name("status").String(o.Status)
		lo.Name("durationMillis").Int(int(o.Duration / time.Millisecond))
		writeStrings(&lo, "errors", o.Errors)
		writeStrings(&lo, "output", o.Output)
		writeStrings(&lo, "errorOutput", o.ErrorOutput)
		lo.End()
	}
	launches.End()
	obj.End()
	return w.Bytes()
}

func writeStrings(obj *jwriter.ObjectState, name string, values []string) {
	if len(values) == 0 {
		return
	}
	arr := obj.Name(name).Array()
	for _, v := range values {
		arr.String(v)
	}
	arr.End()
}

// WriteJSONFile writes the JSON form of the report to path.
func (r *Report) WriteJSONFile(path string) error {
	return os.WriteFile(path, append(r.JSON(), '\n'), 0644) //nolint:gosec
}

// PrintTable writes a summary table with one row per launch.
func (r *Report) PrintTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	passed, failed, skipped := r.Counts()
	t.SetTitle(fmt.Sprintf("Launch scenarios (%d passed, %d failed, %d skipped)", passed, failed, skipped))
	t.AppendHeader(table.Row{"Launch", "Mode", "Profile", "Args", "Exit", "Expected", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Launch", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Expected", Align: text.AlignRight},
	})
	for _, o := range r.Outcomes {
		exit := "-"
		if o.ExitCode >= 0 {
			exit = fmt.Sprint(o.ExitCode)
		}
		t.AppendRow(table.Row{
			o.ID.String(),
			o.Mode,
			o.Profile,
			strings.Join(o.Args, " "),
			exit,
			o.Expected,
			strings.ToUpper(o.Status),
		})
	}
	t.Render()
}
