package shell

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"

	"github.com/jobshell/jsh/core/job"
)

// errQuit tells the read loop to exit cleanly.
var errQuit = errors.New("quit")

// builtin runs argv if it names a built-in, reporting whether it did.
// Built-ins never spawn a child.
func (s *Shell) builtin(argv []string) (bool, error) {
	switch argv[0] {
	case "quit":
		return true, errQuit
	case "jobs":
		return true, s.builtinJobs(argv)
	case "bg", "fg":
		return true, s.builtinBgFg(argv)
	}
	return false, nil
}

// builtinJobs prints the job listing. The full shield is held for the
// duration: a reap landing mid-print would corrupt the listing.
func (s *Shell) builtinJobs(argv []string) error {
	opts := getopt.New()
	pidsOnly := opts.Bool('p', "print process IDs only")
	runningOnly := opts.Bool('r', "restrict output to running jobs")
	stoppedOnly := opts.Bool('s', "restrict output to stopped jobs")

	if err := opts.Getopt(argv, nil); err != nil {
		fmt.Fprintf(s.out, "jobs: %v\n", err)
		fmt.Fprintln(s.out, "usage: jobs [-prs]")
		opts.PrintOptions(s.out)
		return nil
	}

	s.shield.Lock()
	defer s.shield.Unlock()

	if !*pidsOnly && !*runningOnly && !*stoppedOnly {
		for line := range s.jobs.Summaries() {
			fmt.Fprintln(s.out, line)
		}
		return nil
	}

	for j := range s.jobs.Jobs() {
		if *runningOnly && j.State != job.Background {
			continue
		}
		if *stoppedOnly && j.State != job.Stopped {
			continue
		}
		if *pidsOnly {
			fmt.Fprintln(s.out, j.PID)
			continue
		}
		fmt.Fprintf(s.out, "[%d] (%d) %s %s\n", j.JID, j.PID, j.State, j.Cmdline)
	}
	return nil
}

// builtinBgFg resumes a stopped or background job, moving it to the
// background (bg) or foreground (fg).
func (s *Shell) builtinBgFg(argv []string) error {
	name := argv[0]
	if len(argv) < 2 {
		fmt.Fprintf(s.out, "%s command requires PID or %%jobid argument\n", name)
		return nil
	}

	target := argv[1]
	id, isJID, ok := parseTarget(target)
	if !ok {
		fmt.Fprintf(s.out, "%s: argument must be a PID or %%jobid\n", name)
		return nil
	}

	foreground := name == "fg"

	s.shield.Lock()

	var j job.Job
	var found bool
	if isJID {
		j, found = s.jobs.FindByJID(id)
	} else {
		j, found = s.jobs.FindByPID(id)
	}
	if !found {
		// Print before releasing the shield so the relay can't
		// interleave its own report.
		if isJID {
			fmt.Fprintf(s.out, "%s: No such job\n", target)
		} else {
			fmt.Fprintf(s.out, "(%s): No such process\n", target)
		}
		s.shield.Unlock()
		return nil
	}

	// Local copies: the record may be deleted the moment the shield drops.
	pid, jid, cmdline := j.PID, j.JID, j.Cmdline

	if foreground {
		s.jobs.SetState(pid, job.Foreground)
	} else {
		s.jobs.SetState(pid, job.Background)
	}
	s.signalGroup(pid, unix.SIGCONT)
	if foreground {
		if err := s.term.SetForeground(pid); err != nil {
			s.shield.Unlock()
			return err
		}
	}
	s.shield.Unlock()

	if foreground {
		s.waitForeground(pid)
		return s.term.Reclaim()
	}
	fmt.Fprintf(s.out, "[%d] (%d) %s\n", jid, pid, cmdline)
	return nil
}

// parseTarget resolves "%<jobid>" or a bare "<pid>". Any non-digit after
// the optional % is a usage error. A bare "%" parses as job id 0, which no
// live job ever holds, so it falls out as a routine lookup miss.
func parseTarget(arg string) (id int, isJID, ok bool) {
	digits := arg
	if strings.HasPrefix(arg, "%") {
		isJID = true
		digits = arg[1:]
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, isJID, false
		}
	}
	id, _ = strconv.Atoi(digits)
	return id, isJID, true
}
