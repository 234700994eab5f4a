// Command deconflict manages projects and vendor engagements in the
// deconfliction graph and serves the HTTP API.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr, os.Getenv)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitError carries a process exit status for outcomes that are not failures
// of the tool itself (a refused vendor request, a failed integrity audit).
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
