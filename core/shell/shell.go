// Package shell implements the job-control core: the read-eval loop, the
// built-ins, the foreground waiter and the signal relay. All of them share
// one job table, serialized through the shield.
package shell

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/jobshell/jsh/core/config"
	"github.com/jobshell/jsh/core/job"
	"github.com/jobshell/jsh/core/launch"
)

// Spawner starts argv as the leader of a new process group.
type Spawner interface {
	Spawn(argv []string) (pid int, err error)
}

// Terminal hands the controlling terminal between process groups.
type Terminal interface {
	SetForeground(pgid int) error
	Reclaim() error
}

type Shell struct {
	out io.Writer
	log *zap.SugaredLogger

	// shield serializes job-table access between the dispatcher and the
	// signal relay. fgGone wakes the foreground waiter; the relay
	// broadcasts it after every table mutation.
	shield sync.Mutex
	fgGone *sync.Cond

	jobs *job.Table

	spawn Spawner
	term  Terminal
	kill  func(pid int, sig unix.Signal) error
	exit  func(code int)

	rl   *readline.Instance
	sigc chan os.Signal
	done chan struct{}
}

// New builds a shell reading from the process's terminal and starts its
// signal relay.
func New(cfg *config.Configuration, log *zap.SugaredLogger) (*Shell, error) {
	prompt := cfg.Prompt
	if prompt != "" {
		// color disables itself when stdout isn't a terminal.
		prompt = color.New(color.Bold).Sprint(prompt)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      prompt,
		HistoryFile: cfg.HistoryFile,
	})
	if err != nil {
		return nil, errors.Wrap(err, "readline")
	}

	s := &Shell{
		out:   rl,
		log:   log,
		spawn: &launch.Launcher{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr},
		term:  launch.NewTerminal(os.Stdin, log),
		kill:  launch.SignalGroup,
		exit:  os.Exit,
		rl:    rl,
		done:  make(chan struct{}),
	}
	s.fgGone = sync.NewCond(&s.shield)
	s.jobs = job.NewTable(rl, log)

	// The parent-side terminal handoff must not stop the shell.
	signal.Ignore(unix.SIGTTOU)

	s.sigc = make(chan os.Signal, 16)
	signal.Notify(s.sigc, unix.SIGCHLD, unix.SIGINT, unix.SIGTSTP, unix.SIGQUIT)
	go s.relay()

	return s, nil
}

// Run is the shell's read-eval loop. It returns on end of input (ctrl-d)
// or the quit built-in.
func (s *Shell) Run() error {
	for {
		line, err := s.rl.Readline()
		switch {
		case err == io.EOF:
			return nil
		case err == readline.ErrInterrupt:
			continue // the relay forwards the signal; nothing to eval
		case err != nil:
			return errors.Wrap(err, "read command line")
		}

		if err := s.Eval(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

// Eval evaluates one command line: built-ins run synchronously, anything
// else is launched as a job. A non-nil return is fatal to the shell.
func (s *Shell) Eval(line string) error {
	argv, background, err := Parse(line)
	if err != nil {
		fmt.Fprintf(s.out, "jsh: syntax error: %v\n", err)
		return nil
	}
	if len(argv) == 0 {
		return nil
	}

	if handled, err := s.builtin(argv); handled {
		return err
	}

	cmdline := strings.TrimRight(line, "\n")

	// Shield before spawning: the relay must not be able to reap the
	// child before it is registered.
	s.shield.Lock()
	pid, err := s.spawn.Spawn(argv)
	if err != nil {
		s.shield.Unlock()
		if launch.IsNotFound(err) {
			fmt.Fprintf(s.out, "%s: command not found\n", argv[0])
			return nil
		}
		return errors.Wrap(err, "spawn")
	}

	state := job.Foreground
	if background {
		state = job.Background
	}
	s.jobs.Add(pid, state, cmdline)
	// Capture the job id while still shielded; the job may be reaped the
	// moment the relay can see the table, and would then print as id 0.
	jid := s.jobs.JIDOf(pid)
	s.shield.Unlock()

	if background {
		fmt.Fprintf(s.out, "[%d] (%d) %s\n", jid, pid, cmdline)
		return nil
	}

	if err := s.term.SetForeground(pid); err != nil {
		return err
	}
	s.waitForeground(pid)
	return s.term.Reclaim()
}

// waitForeground blocks until pid is no longer the foreground job. Wait
// atomically releases the shield and sleeps, so a reap racing the entry to
// this loop cannot be missed.
func (s *Shell) waitForeground(pid int) {
	s.shield.Lock()
	for s.jobs.ForegroundPID() == pid {
		s.fgGone.Wait()
	}
	s.shield.Unlock()
}

// signalGroup delivers sig to the whole process group of pid. A vanished
// group is routine: the job may have been reaped a moment earlier.
func (s *Shell) signalGroup(pid int, sig unix.Signal) {
	switch err := s.kill(pid, sig); {
	case err == nil:
	case errors.Is(err, unix.ESRCH):
		fmt.Fprintf(s.out, "(%d): No such process or process group\n", pid)
	default:
		fmt.Fprintf(s.out, "kill error: %v\n", err)
		s.exit(1)
	}
}

// Close stops the signal relay and releases the terminal.
func (s *Shell) Close() error {
	signal.Stop(s.sigc)
	close(s.done)
	return s.rl.Close()
}
