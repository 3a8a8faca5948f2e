// Package launch starts external commands as leaders of their own process
// groups and mediates terminal control and group-wide signaling.
package launch

import (
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Launcher spawns external programs with the shell's standard streams.
type Launcher struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Spawn starts argv[0] with the given arguments in a new process group
// whose id is the child's pid, isolating it from terminal-generated
// signals aimed at the shell's group. Returns the child's pid.
func (l *Launcher) Spawn(argv []string) (int, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}

// IsNotFound reports whether a Spawn failure means the program doesn't
// exist or isn't executable, as opposed to an OS-level launch failure.
// Programs given as a path skip PATH resolution entirely and surface
// ENOENT (or ENOEXEC for an unrunnable file) from fork/exec instead of
// exec.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, unix.ENOEXEC)
}

// SignalGroup delivers sig to the entire process group led by pid.
func SignalGroup(pid int, sig unix.Signal) error {
	return unix.Kill(-pid, sig)
}
