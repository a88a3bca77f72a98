// Package sampleapp is a small command-line application used to exercise the launcher: it greets
// people, reports its configuration, and talks to a mock HTTP service.
package sampleapp

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mainlaunch/mainlaunch/framework/applog"
	"github.com/mainlaunch/mainlaunch/framework/bootstrap"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2

	defaultGreeting = "Hello"
)

const usage = `usage: greeter [-loud] <command> [args]

commands:
  greet [name]   print a greeting
  config         print the effective configuration
  ping           call the configured mock service
  crash          panic, for testing failure handling`

// Main is the entry point of the greeter. Its configuration keys are greeting.message,
// greeting.target, greeting.color and mock-service.url.
func Main(ctx context.Context, args []string, config map[string]string) int {
	flags := flag.NewFlagSet("greeter", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	loud := flags.Bool("loud", false, "shout the greeting")
	help := flags.Bool("help", false, "show usage")
	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			fmt.Println(usage)
			return ExitOK
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "try --help")
		return ExitUsage
	}
	if *help {
		fmt.Println(usage)
		return ExitOK
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Println("missing command")
		fmt.Fprintln(os.Stderr, "try --help")
		return ExitUsage
	}

	switch rest[0] {
	case "greet":
		return greet(config, rest[1:], *loud)
	case "config":
		for _, k := range bootstrap.SortedKeys(config) {
			fmt.Printf("%s=%s\n", k, config[k])
		}
		return ExitOK
	case "ping":
		return ping(ctx, config)
	case "crash":
		panic("crash requested")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", rest[0])
		return ExitUsage
	}
}

func greet(config map[string]string, args []string, loud bool) int {
	target := config["greeting.target"]
	if len(args) > 0 {
		target = strings.Join(args, " ")
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "nobody to greet")
		return ExitError
	}
	message := config["greeting.message"]
	if message == "" {
		message = defaultGreeting
	}
	text := fmt.Sprintf("%s, %s!", message, target)
	if loud {
		text = strings.ToUpper(text)
	}
	applog.Root().Printf("Greeting %s", target)

	if config["greeting.color"] == "true" {
		c := color.New(color.FgGreen, color.Bold)
		c.EnableColor()
		_, _ = c.Fprintln(os.Stdout, text)
	} else {
		fmt.Println(text)
	}
	return ExitOK
}

func ping(ctx context.Context, config map[string]string) int {
	base := config["mock-service.url"]
	if base == "" {
		fmt.Fprintln(os.Stderr, "mock-service.url is not configured")
		return ExitError
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/ping", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitError
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ping failed: %s\n", err)
		return ExitError
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if text := strings.TrimSpace(string(body)); text != "" {
		fmt.Printf("ping: %d %s\n", resp.StatusCode, text)
	} else {
		fmt.Printf("ping: %d\n", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return ExitError
	}
	return ExitOK
}
