// Package main provides the trainlaunch command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/leapstack-labs/trainlaunch/internal/bootstrap"
	"github.com/leapstack-labs/trainlaunch/internal/cli"
	"github.com/leapstack-labs/trainlaunch/internal/cli/commands"
	"github.com/leapstack-labs/trainlaunch/internal/worker"
)

func main() {
	os.Exit(run(os.Args, os.Environ(), os.Getenv, os.Stdout, os.Stderr))
}

// run is the process lifecycle: worker guard, runtime bootstrap, then the
// command tree. It returns the exit status.
func run(args, environ []string, getenv func(string) string, stdout, stderr io.Writer) (code int) {
	// Processes spawned by the training framework re-enter this binary.
	if worker.IsSpawnedWorker(args[1:], getenv) {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n%s", r, debug.Stack())
			code = 1
		}
	}()

	rt, err := bootstrap.Init(args, environ, runtime.GOOS)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: failed to register runtime libraries in %s: %v\n", rt.Layout.LibDir, err)
		return 1
	}

	env := &commands.Environment{
		Runtime: rt,
		Base:    environ,
		GOOS:    runtime.GOOS,
	}
	if err := cli.Execute(context.Background(), env, args[1:], stdout, stderr); err != nil {
		return 1
	}
	return 0
}
