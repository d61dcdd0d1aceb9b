// Package diag centralizes logging and exit-status bookkeeping shared by
// every ia2 binary (the source rewriter, the tracer, and the segment
// checker), the way cmd/go's internal/base package centralizes them for
// the go command's subcommands.
package diag

import (
	"fmt"
	"log"
	"os"
	"sync"
)

var (
	mu         sync.Mutex
	exitStatus int
	atExit     []func()
)

// SetExitStatus raises the process's eventual exit status to n, never
// lowering it if a higher status was already recorded.
func SetExitStatus(n int) {
	mu.Lock()
	if n > exitStatus {
		exitStatus = n
	}
	mu.Unlock()
}

// ExitStatus returns the exit status that Exit would currently use.
func ExitStatus() int {
	mu.Lock()
	defer mu.Unlock()
	return exitStatus
}

// AtExit registers f to run, in registration order, when Exit is called.
func AtExit(f func()) {
	mu.Lock()
	atExit = append(atExit, f)
	mu.Unlock()
}

// Exit runs all registered AtExit hooks and terminates the process with
// the recorded exit status.
func Exit() {
	mu.Lock()
	hooks := atExit
	mu.Unlock()
	for _, f := range hooks {
		f()
	}
	os.Exit(ExitStatus())
}

// Errorf reports a non-fatal error and bumps the exit status to 1. Use
// for rewrite-time classification failures where the offending
// construct is left untouched and the tool continues.
func Errorf(format string, args ...interface{}) {
	log.Printf(format, args...)
	SetExitStatus(1)
}

// Warnf reports a warning that does not by itself change the exit
// status, e.g. the macro-expansion-occlusion notice.
func Warnf(format string, args ...interface{}) {
	log.Print("warning: " + fmt.Sprintf(format, args...))
}

// Fatalf reports an error and exits immediately with status 2. Use for
// unrecoverable conditions: missing -DPKEY, an out-of-range or
// disjoint pkey set, an unrecognized PKRU value observed by the tracer.
func Fatalf(format string, args ...interface{}) {
	log.Printf(format, args...)
	SetExitStatus(2)
	Exit()
}

// ExitIfErrors calls Exit if any Errorf call has already raised the exit
// status above zero.
func ExitIfErrors() {
	if ExitStatus() != 0 {
		Exit()
	}
}
