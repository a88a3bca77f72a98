package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mainlaunch/mainlaunch/framework/launchtest"
)

type commandParams struct {
	scenarios      string
	filters        launchtest.RegexFilters
	skipFile       string
	recordFailures string
	timeout        time.Duration
	echo           bool
	debug          bool
	debugAll       bool
	jUnitFile      string
	jsonFile       string
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.scenarios, "scenarios", "scenarios/testdata", "scenario file, or directory of scenario files")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select launches to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select launches not to run")
	fs.StringVar(&c.skipFile, "skip-from", "", "file listing launches not to run, one per line")
	fs.StringVar(&c.recordFailures, "record-failures", "", "write the IDs of failed launches to the specified path")
	fs.DurationVar(&c.timeout, "timeout", 0, "maximum duration of each launch scope")
	fs.BoolVar(&c.echo, "echo", false, "copy application output to the console while it runs")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed launches")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all launches")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.StringVar(&c.jsonFile, "json", "", "write a JSON launch report to the specified path")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	if c.scenarios == "" {
		fmt.Fprintln(os.Stderr, "-scenarios must not be empty")
		fs.Usage()
		return false
	}
	return true
}
