package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	// A minimal startup logger: the fully-configured one (honoring
	// --verbose/--debug/--quiet) isn't built until PersistentPreRunE parses
	// flags, but SIGINT/SIGTERM can arrive before that, so shutdownContext
	// needs something to log through from the very start of Execute.
	startupLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := shutdownContext(context.Background(), startupLogger)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, errVerifyMismatch) || errors.Is(err, errJobsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		exitOnError(err)
	}
}
