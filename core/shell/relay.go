package shell

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/jobshell/jsh/core/job"
	"github.com/jobshell/jsh/core/sio"
)

// relay translates asynchronous signal deliveries into job-table updates.
// It is the only accessor of the table besides the dispatcher; every
// mutation happens under the shield.
func (s *Shell) relay() {
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.sigc:
			switch sig {
			case unix.SIGCHLD:
				s.reapChildren()
			case unix.SIGINT, unix.SIGTSTP:
				s.forwardToForeground(sig.(unix.Signal))
			case unix.SIGQUIT:
				fmt.Fprintln(s.out, "Terminating after receipt of SIGQUIT signal")
				s.exit(1)
			}
		}
	}
}

// event is one reaped child status in shell terms.
type event struct {
	pid      int
	stopped  bool
	signaled bool
	signal   int // stop or termination signal, 0 for a normal exit
}

func decodeStatus(pid int, ws unix.WaitStatus) event {
	switch {
	case ws.Stopped():
		return event{pid: pid, stopped: true, signal: int(ws.StopSignal())}
	case ws.Signaled():
		return event{pid: pid, signaled: true, signal: int(ws.Signal())}
	default:
		return event{pid: pid}
	}
}

// reapChildren collects every child whose status changed, including
// stopped ones, without blocking on children still running.
func (s *Shell) reapChildren() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return // no children at all
		case err != nil:
			// The process substrate is unreliable; don't risk an
			// undefined job table.
			sio.Fatal("jsh: wait4 error\n")
		case pid == 0:
			return // remaining children still running
		}

		s.apply(decodeStatus(pid, ws))
	}
}

// apply folds one reaped status into the table.
func (s *Shell) apply(ev event) {
	s.shield.Lock()
	defer s.shield.Unlock()
	defer s.fgGone.Broadcast()

	switch {
	case ev.stopped:
		fmt.Fprintf(s.out, "Job [%d] (%d) stopped by signal %d\n",
			s.jobs.JIDOf(ev.pid), ev.pid, ev.signal)
		s.jobs.SetState(ev.pid, job.Stopped)
	case ev.signaled:
		fmt.Fprintf(s.out, "Job [%d] (%d) terminated by signal %d\n",
			s.jobs.JIDOf(ev.pid), ev.pid, ev.signal)
		s.jobs.Delete(ev.pid)
	default:
		// Normal exit is the silent path.
		s.jobs.Delete(ev.pid)
	}
}

// forwardToForeground sends an interactive signal to the foreground job's
// whole process group, never to the shell itself.
func (s *Shell) forwardToForeground(sig unix.Signal) {
	s.shield.Lock()
	pid := s.jobs.ForegroundPID()
	s.shield.Unlock()

	if pid != 0 {
		s.signalGroup(pid, sig)
	}
}
