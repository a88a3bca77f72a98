package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mainlaunch/mainlaunch/integration"
	"github.com/mainlaunch/mainlaunch/sampleapp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := sampleapp.Main(ctx, os.Args[1:], integration.EnvConfig())
	stop()
	os.Exit(code)
}
