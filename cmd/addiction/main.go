package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

const exitInterrupted = 130

func main() {
	defer common.RecoverWithCrashFile()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and maps its error to an exit code
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, args, stdout)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "Interrupted, progress so far is saved")
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// execute builds a fresh command tree, runs it and releases the database afterwards
func execute(ctx context.Context, args []string, stdout io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)

	err := root.ExecuteContext(ctx)
	if closeErr := c.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
