package launchtest

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mainlaunch/mainlaunch/framework"
)

// JUnitTestLogger collects results and writes them as a JUnit XML report when EndLog is called.
// Each top-level scope becomes a test suite.
type JUnitTestLogger struct {
	filePath    string
	suitePrefix string
	properties  map[string]string
	testIDs     []TestID
	tests       map[string]jUnitTestStatus
	lock        sync.Mutex
}

type jUnitTestStatus struct {
	failures   []error
	skipped    bool
	skipReason string
	output     string
	startTime  time.Time
	duration   time.Duration
}

// Struct definitions for the JUnit XML schema, as understood by go-junit-report and most CI
// systems.

type jUnitXMLDocument struct {
	XMLName xml.Name            `xml:"testsuites"`
	Suites  []jUnitXMLTestSuite `xml:"testsuite"`
}

type jUnitXMLTestSuite struct {
	XMLName    xml.Name           `xml:"testsuite"`
	Tests      int                `xml:"tests,attr"`
	Failures   int                `xml:"failures,attr"`
	Skipped    int                `xml:"skipped,attr"`
	Time       string             `xml:"time,attr"`
	Name       string             `xml:"name,attr"`
	Properties []jUnitXMLProperty `xml:"properties>property,omitempty"`
	TestCases  []jUnitXMLTestCase `xml:"testcase"`
}

type jUnitXMLTestCase struct {
	XMLName     xml.Name             `xml:"testcase"`
	Classname   string               `xml:"classname,attr"`
	Name        string               `xml:"name,attr"`
	Time        string               `xml:"time,attr"`
	SkipMessage *jUnitXMLSkipMessage `xml:"skipped,omitempty"`
	Failure     *jUnitXMLFailure     `xml:"failure,omitempty"`
	SystemOut   string               `xml:"system-out,omitempty"`
}

type jUnitXMLSkipMessage struct {
	Message string `xml:"message,attr"`
}

type jUnitXMLProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type jUnitXMLFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

// NewJUnitTestLogger creates a logger that will write to filePath. Suites are named
// "<suitePrefix>: <top-level scope>", and properties are attached to every suite.
func NewJUnitTestLogger(filePath, suitePrefix string, properties map[string]string) *JUnitTestLogger {
	return &JUnitTestLogger{
		filePath:    filePath,
		suitePrefix: suitePrefix,
		properties:  properties,
		tests:       make(map[string]jUnitTestStatus),
	}
}

func (j *JUnitTestLogger) TestStarted(id TestID) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.testIDs = append(j.testIDs, id)
	j.tests[id.String()] = jUnitTestStatus{startTime: time.Now()}
}

func (j *JUnitTestLogger) TestError(id TestID, err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.tests[id.String()]
	status.failures = append(status.failures, err)
	j.tests[id.String()] = status
}

func (j *JUnitTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.tests[id.String()]
	status.output = debugOutput.ToString("")
	status.duration = result.Duration
	j.tests[id.String()] = status
}

func (j *JUnitTestLogger) TestSkipped(id TestID, reason string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status, ok := j.tests[id.String()]
	if !ok {
		j.testIDs = append(j.testIDs, id)
	}
	status.skipped = true
	status.skipReason = reason
	j.tests[id.String()] = status
}

// EndLog writes the report.
func (j *JUnitTestLogger) EndLog() error {
	data, err := j.render()
	if err != nil {
		return err
	}
	return os.WriteFile(j.filePath, data, 0644) //nolint:gosec
}

func (j *JUnitTestLogger) render() ([]byte, error) {
	j.lock.Lock()
	defer j.lock.Unlock()

	propNames := make([]string, 0, len(j.properties))
	for name := range j.properties {
		propNames = append(propNames, name)
	}
	sort.Strings(propNames)
	properties := make([]jUnitXMLProperty, 0, len(propNames))
	for _, name := range propNames {
		properties = append(properties, jUnitXMLProperty{Name: name, Value: j.properties[name]})
	}

	var doc jUnitXMLDocument
	for _, topLevel := range topLevelNames(j.testIDs) {
		suite := jUnitXMLTestSuite{
			Name:       fmt.Sprintf("%s: %s", j.suitePrefix, topLevel),
			Properties: properties,
		}
		var total time.Duration
		for _, id := range j.testIDs {
			if len(id) == 0 || id[0] != topLevel {
				continue
			}
			status := j.tests[id.String()]
			suite.Tests++
			total += status.duration

			testCase := jUnitXMLTestCase{
				Classname: topLevel,
				Name:      id.String(),
				Time:      jUnitDuration(status.duration),
				SystemOut: status.output,
			}
			if status.skipped {
				suite.Skipped++
				testCase.SkipMessage = &jUnitXMLSkipMessage{Message: status.skipReason}
			}
			if len(status.failures) != 0 {
				suite.Failures++
				testCase.Failure = &jUnitXMLFailure{Message: failureMessage(status.failures), Contents: status.output}
			}
			suite.TestCases = append(suite.TestCases, testCase)
		}
		suite.Time = jUnitDuration(total)
		doc.Suites = append(doc.Suites, suite)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func failureMessage(failures []error) string {
	messages := make([]string, 0, len(failures))
	for _, e := range failures {
		message := e.Error()
		if es, ok := e.(ErrorWithStacktrace); ok {
			message += "\n  Stacktrace:"
			for _, s := range es.Stacktrace {
				message += "\n    " + s.String()
			}
		}
		messages = append(messages, message)
	}
	return strings.Join(messages, "\n")
}

func topLevelNames(ids []TestID) []string {
	var ret []string
	seen := make(map[string]bool)
	for _, id := range ids {
		if len(id) != 0 && !seen[id[0]] {
			ret = append(ret, id[0])
			seen[id[0]] = true
		}
	}
	return ret
}

func jUnitDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
