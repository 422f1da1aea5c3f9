package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func printFatalError(err error) {
	fmt.Fprintf(os.Stderr, "error: %s\n", errorMessage(err))
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(nil).ExecuteContext(ctx)
	if err != nil {
		printFatalError(err)
	}
	stop()
	os.Exit(exitCode(err))
}
