// Package main is the entry point for the BlackWolf SOC backend.
package main

import (
	"context"
	"fmt"
	"os"

	"blackwolf/bootstrap"
)

func run() error {
	app, err := bootstrap.NewApp(context.Background())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}
