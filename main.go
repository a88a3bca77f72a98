package main

import (
	"bufio"
	"context"
	_ "embed" // this is required in order for go:embed to work
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"

	"github.com/mainlaunch/mainlaunch/framework/bootstrap"
	"github.com/mainlaunch/mainlaunch/framework/launchtest"
	"github.com/mainlaunch/mainlaunch/sampleapp"
	"github.com/mainlaunch/mainlaunch/scenarios"
)

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	fmt.Printf("mainlaunch v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	results, err := run(ctx, params)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !results.OK() {
		os.Exit(1)
	}
}

func run(ctx context.Context, params commandParams) (*launchtest.Results, error) {
	if params.skipFile != "" {
		if err := loadSuppressions(&params); err != nil {
			return nil, err
		}
	}

	files, err := scenarios.LoadPath(params.scenarios)
	if err != nil {
		return nil, err
	}
	fmt.Println(scenarios.Describe(files))
	if d := params.filters.Describe(); d != "" {
		fmt.Println(d)
	}

	consoleLogger := launchtest.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	var testLogger launchtest.TestLogger = consoleLogger
	var jUnitLogger *launchtest.JUnitTestLogger
	if params.jUnitFile != "" {
		jUnitLogger = launchtest.NewJUnitTestLogger(params.jUnitFile, "mainlaunch", map[string]string{
			"mainlaunch.version": strings.TrimSpace(versionString),
			"scenarios":          params.scenarios,
		})
		testLogger = launchtest.MultiTestLogger{consoleLogger, jUnitLogger}
	}

	runner := scenarios.NewRunner(scenarios.Config{
		Apps: map[string]bootstrap.EntryPoint{"greeter": sampleapp.Main},
		Echo: params.echo,
	})
	results, report := runner.RunWithContext(ctx, files, launchtest.Config{
		Filter:     params.filters.Match,
		TestLogger: testLogger,
		Timeout:    params.timeout,
	})

	fmt.Println()
	report.PrintTable(os.Stdout)
	launchtest.PrintResults(os.Stdout, results)

	if jUnitLogger != nil {
		if err := jUnitLogger.EndLog(); err != nil {
			return nil, fmt.Errorf("error writing log: %v", err)
		}
	}
	if params.jsonFile != "" {
		if err := report.WriteJSONFile(params.jsonFile); err != nil {
			return nil, fmt.Errorf("error writing report: %v", err)
		}
	}

	if params.recordFailures != "" {
		f, err := os.Create(params.recordFailures)
		if err != nil {
			return nil, fmt.Errorf("cannot create suppression file: %v", err)
		}
		for _, test := range results.Failures {
			fmt.Fprintln(f, test.TestID)
		}
		_ = f.Close()
	}

	return &results, nil
}

func loadSuppressions(params *commandParams) error {
	file, err := os.Open(params.skipFile)
	if err != nil {
		return fmt.Errorf("cannot open provided suppression file: %v", err)
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := params.filters.MustNotMatch.Set(regexp.QuoteMeta(line)); err != nil {
			return fmt.Errorf("cannot parse suppression: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("while processing suppression file: %v", err)
	}
	return nil
}
