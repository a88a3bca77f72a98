package launchtest

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter decides whether the test with the given ID should run.
type Filter func(TestID) bool

// RegexFilters is the filter built from the -run and -skip command-line options.
type RegexFilters struct {
	MustMatch    TestIDPatternList
	MustNotMatch TestIDPatternList
}

// Match runs a test if it, or one of its descendants, can match a MustMatch pattern and it
// does not match any MustNotMatch pattern.
func (r RegexFilters) Match(id TestID) bool {
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(id, true)) &&
		!r.MustNotMatch.AnyMatch(id, false)
}

// Describe explains the filters in a sentence per list, or returns "" if there are none.
func (r RegexFilters) Describe() string {
	var lines []string
	if r.MustMatch.IsDefined() {
		lines = append(lines, fmt.Sprintf("skipping any scenario not matching %s", r.MustMatch))
	}
	if r.MustNotMatch.IsDefined() {
		lines = append(lines, fmt.Sprintf("skipping any scenario matching %s", r.MustNotMatch))
	}
	return strings.Join(lines, "\n")
}

// TestIDPattern matches a TestID component by component.
type TestIDPattern []*regexp.Regexp

// Match reports whether each component of the pattern matches the corresponding component of
// id. If id is shorter than the pattern, it matches only when includeParents is true.
func (p TestIDPattern) Match(id TestID, includeParents bool) bool {
	n := len(p)
	if n > len(id) {
		if !includeParents {
			return false
		}
		n = len(id)
	}
	for i := 0; i < n; i++ {
		if !p[i].MatchString(id[i]) {
			return false
		}
	}
	return true
}

func (p TestIDPattern) String() string {
	ss := make([]string, 0, len(p))
	for _, c := range p {
		ss = append(ss, c.String())
	}
	return strings.Join(ss, "/")
}

// ParseTestIDPattern parses slash-separated regular expressions.
func ParseTestIDPattern(s string) (TestIDPattern, error) {
	parts := strings.Split(s, "/")
	ret := make(TestIDPattern, 0, len(parts))
	for _, part := range parts {
		rx, err := regexp.Compile(part)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		ret = append(ret, rx)
	}
	return ret, nil
}

// TestIDPatternList is a flag.Value that accumulates patterns.
type TestIDPatternList []TestIDPattern

func (l TestIDPatternList) String() string {
	ss := make([]string, 0, len(l))
	for _, p := range l {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

func (l *TestIDPatternList) Set(value string) error {
	p, err := ParseTestIDPattern(value)
	if err != nil {
		return err
	}
	*l = append(*l, p)
	return nil
}

func (l TestIDPatternList) IsDefined() bool { return len(l) != 0 }

func (l TestIDPatternList) AnyMatch(id TestID, includeParents bool) bool {
	for _, p := range l {
		if p.Match(id, includeParents) {
			return true
		}
	}
	return false
}
