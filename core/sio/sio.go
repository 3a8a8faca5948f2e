// Package sio is a minimal direct-write reporting path for contexts where
// the shell's normal output must not be touched, such as fatal errors
// discovered inside the signal relay.
package sio

import (
	"os"

	"golang.org/x/sys/unix"
)

// Puts writes s directly to standard output, bypassing all buffering.
func Puts(s string) {
	_, _ = unix.Write(int(os.Stdout.Fd()), []byte(s))
}

// Fatal reports s and terminates the process immediately.
func Fatal(s string) {
	Puts(s)
	os.Exit(1)
}
