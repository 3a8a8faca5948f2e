package launch

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Terminal mediates which process group owns the controlling terminal.
type Terminal struct {
	fd  int
	log *zap.SugaredLogger
}

// NewTerminal wraps tty, normally the shell's stdin.
func NewTerminal(tty *os.File, log *zap.SugaredLogger) *Terminal {
	return &Terminal{
		fd:  int(tty.Fd()),
		log: log,
	}
}

// SetForeground hands the controlling terminal to pgid. Transfers
// attempted while the shell has no controlling terminal, or after the
// target group vanished in a reap race, legitimately fail; those are
// logged and otherwise ignored.
func (t *Terminal) SetForeground(pgid int) error {
	err := unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOTTY),
		errors.Is(err, unix.ENXIO),
		errors.Is(err, unix.EPERM),
		errors.Is(err, unix.ESRCH):
		t.log.Debugw("terminal transfer skipped", "pgid", pgid, "err", err)
		return nil
	default:
		return errors.Wrap(err, "tcsetpgrp")
	}
}

// Reclaim returns the terminal to the shell's own process group.
func (t *Terminal) Reclaim() error {
	return t.SetForeground(unix.Getpgrp())
}
