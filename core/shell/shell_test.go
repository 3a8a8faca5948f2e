package shell

import (
	"bytes"
	"io/fs"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/jobshell/jsh/core/job"
)

type fakeSpawner struct {
	pid int
	err error

	mu      sync.Mutex
	argvs   [][]string
	started chan struct{}
}

func (f *fakeSpawner) Spawn(argv []string) (int, error) {
	f.mu.Lock()
	f.argvs = append(f.argvs, argv)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.err != nil {
		return 0, f.err
	}
	return f.pid, nil
}

func (f *fakeSpawner) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.argvs)
}

type fakeTerm struct {
	mu          sync.Mutex
	foregrounds []int
	reclaims    int
}

func (f *fakeTerm) SetForeground(pgid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foregrounds = append(f.foregrounds, pgid)
	return nil
}

func (f *fakeTerm) Reclaim() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims++
	return nil
}

type killCall struct {
	pid int
	sig unix.Signal
}

type killRecorder struct {
	err   error
	calls chan killCall
}

func newKillRecorder() *killRecorder {
	return &killRecorder{calls: make(chan killCall, 16)}
}

func (k *killRecorder) kill(pid int, sig unix.Signal) error {
	k.calls <- killCall{pid: pid, sig: sig}
	return k.err
}

func newTestShell(spawn *fakeSpawner) (*Shell, *bytes.Buffer, *fakeTerm, *killRecorder) {
	var buf bytes.Buffer
	term := &fakeTerm{}
	rec := newKillRecorder()
	log := zap.NewNop().Sugar()

	s := &Shell{
		out:   &buf,
		log:   log,
		spawn: spawn,
		term:  term,
		kill:  rec.kill,
		exit:  func(code int) { panic("unexpected shell exit") },
		done:  make(chan struct{}),
	}
	s.fgGone = sync.NewCond(&s.shield)
	s.jobs = job.NewTable(&buf, log)
	return s, &buf, term, rec
}

func TestEvalEmptyLine(t *testing.T) {
	spawn := &fakeSpawner{pid: 1}
	s, buf, _, _ := newTestShell(spawn)

	assert.NoError(t, s.Eval(""))
	assert.NoError(t, s.Eval("   "))
	assert.Equal(t, 0, spawn.spawnCount())
	assert.Empty(t, buf.String())
}

func TestEvalBackgroundStartLine(t *testing.T) {
	spawn := &fakeSpawner{pid: 1234}
	s, buf, term, _ := newTestShell(spawn)

	require.NoError(t, s.Eval("sleep 100 &"))

	assert.Equal(t, "[1] (1234) sleep 100 &\n", buf.String())
	j, ok := s.jobs.FindByPID(1234)
	require.True(t, ok)
	assert.Equal(t, job.Background, j.State)
	assert.Equal(t, "sleep 100 &", j.Cmdline)
	assert.Empty(t, term.foregrounds, "background jobs don't get the terminal")

	buf.Reset()
	require.NoError(t, s.Eval("jobs"))
	assert.Equal(t, "[1] (1234) Running sleep 100 &\n", buf.String())
}

func TestEvalCommandNotFound(t *testing.T) {
	spawn := &fakeSpawner{err: &exec.Error{Name: "nosuch", Err: exec.ErrNotFound}}
	s, buf, _, _ := newTestShell(spawn)

	require.NoError(t, s.Eval("nosuch arg"))

	assert.Equal(t, "nosuch: command not found\n", buf.String())
	assert.Equal(t, 0, s.jobs.Len())
}

func TestEvalPathCommandNotFound(t *testing.T) {
	// A program named by path skips PATH lookup, so the failure arrives
	// as ENOENT from fork/exec. The shell must report it and keep going,
	// not treat it as fatal.
	spawn := &fakeSpawner{err: &fs.PathError{Op: "fork/exec", Path: "/no/such/binary", Err: unix.ENOENT}}
	s, buf, _, _ := newTestShell(spawn)

	require.NoError(t, s.Eval("/no/such/binary arg"))

	assert.Equal(t, "/no/such/binary: command not found\n", buf.String())
	assert.Equal(t, 0, s.jobs.Len())

	buf.Reset()
	require.NoError(t, s.Eval(""), "the loop keeps accepting input")
}

func TestEvalForegroundNormalExit(t *testing.T) {
	spawn := &fakeSpawner{pid: 77, started: make(chan struct{}, 1)}
	s, buf, term, _ := newTestShell(spawn)

	evalDone := make(chan error, 1)
	go func() { evalDone <- s.Eval("/bin/true") }()

	<-spawn.started
	// The reap can only land once the dispatcher releases the shield,
	// i.e. after the job is registered.
	s.apply(event{pid: 77})

	require.NoError(t, <-evalDone)
	assert.Equal(t, 0, s.jobs.Len(), "a reaped job leaves the table")
	assert.Empty(t, buf.String(), "normal exit is silent")
	assert.Equal(t, []int{77}, term.foregrounds)
	assert.Equal(t, 1, term.reclaims)
}

func TestEvalForegroundTerminatedBySignal(t *testing.T) {
	spawn := &fakeSpawner{pid: 77, started: make(chan struct{}, 1)}
	s, buf, _, _ := newTestShell(spawn)

	evalDone := make(chan error, 1)
	go func() { evalDone <- s.Eval("sleep 100") }()

	<-spawn.started
	s.apply(event{pid: 77, signaled: true, signal: int(unix.SIGINT)})

	require.NoError(t, <-evalDone)
	assert.Equal(t, "Job [1] (77) terminated by signal 2\n", buf.String())
	assert.Equal(t, 0, s.jobs.Len())
}

func TestBgFgRequiresArgument(t *testing.T) {
	s, buf, _, _ := newTestShell(&fakeSpawner{})

	require.NoError(t, s.Eval("bg"))
	assert.Equal(t, "bg command requires PID or %jobid argument\n", buf.String())
}

func TestBgFgUsageErrors(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"bg abc", "bg: argument must be a PID or %jobid\n"},
		{"fg %1a", "fg: argument must be a PID or %jobid\n"},
		{"bg -5", "bg: argument must be a PID or %jobid\n"},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			s, buf, _, _ := newTestShell(&fakeSpawner{})
			s.jobs.Add(99, job.Stopped, "sleep 100")

			require.NoError(t, s.Eval(tc.line))

			assert.Equal(t, tc.want, buf.String())
			j, _ := s.jobs.FindByPID(99)
			assert.Equal(t, job.Stopped, j.State, "usage errors must not change state")
		})
	}
}

func TestBgNoSuchProcess(t *testing.T) {
	s, buf, _, rec := newTestShell(&fakeSpawner{})

	require.NoError(t, s.Eval("bg 1234"))

	assert.Equal(t, "(1234): No such process\n", buf.String())
	assert.Equal(t, 0, s.jobs.Len())
	assert.Empty(t, rec.calls)
}

func TestFgNoSuchJob(t *testing.T) {
	s, buf, _, _ := newTestShell(&fakeSpawner{})

	require.NoError(t, s.Eval("fg %5"))

	assert.Equal(t, "%5: No such job\n", buf.String())
}

func TestBgResumesStoppedJob(t *testing.T) {
	s, buf, term, rec := newTestShell(&fakeSpawner{})
	s.jobs.Add(99, job.Stopped, "sleep 100")

	require.NoError(t, s.Eval("bg %1"))

	assert.Equal(t, killCall{pid: 99, sig: unix.SIGCONT}, <-rec.calls)
	j, _ := s.jobs.FindByPID(99)
	assert.Equal(t, job.Background, j.State)
	assert.Equal(t, "[1] (99) sleep 100\n", buf.String())
	assert.Empty(t, term.foregrounds)
}

func TestFgResumesAndWaits(t *testing.T) {
	s, buf, term, rec := newTestShell(&fakeSpawner{})
	s.jobs.Add(99, job.Stopped, "sleep 100")

	evalDone := make(chan error, 1)
	go func() { evalDone <- s.Eval("fg %1") }()

	assert.Equal(t, killCall{pid: 99, sig: unix.SIGCONT}, <-rec.calls)
	s.apply(event{pid: 99, signaled: true, signal: int(unix.SIGTERM)})

	require.NoError(t, <-evalDone)
	assert.Equal(t, "Job [1] (99) terminated by signal 15\n", buf.String())
	assert.Equal(t, 0, s.jobs.Len())
	assert.Equal(t, []int{99}, term.foregrounds)
	assert.Equal(t, 1, term.reclaims)
}

func TestBgByPID(t *testing.T) {
	s, buf, _, rec := newTestShell(&fakeSpawner{})
	s.jobs.Add(99, job.Stopped, "sleep 100")

	require.NoError(t, s.Eval("bg 99"))

	assert.Equal(t, killCall{pid: 99, sig: unix.SIGCONT}, <-rec.calls)
	assert.Equal(t, "[1] (99) sleep 100\n", buf.String())
}

func TestJobsFlags(t *testing.T) {
	seed := func() (*Shell, *bytes.Buffer) {
		s, buf, _, _ := newTestShell(&fakeSpawner{})
		s.jobs.Add(101, job.Background, "sleep 100 &")
		s.jobs.Add(102, job.Stopped, "cat")
		return s, buf
	}

	cases := []struct {
		line string
		want string
	}{
		{"jobs", "[1] (101) Running sleep 100 &\n[2] (102) Stopped cat\n"},
		{"jobs -p", "101\n102\n"},
		{"jobs -r", "[1] (101) Running sleep 100 &\n"},
		{"jobs -s", "[2] (102) Stopped cat\n"},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			s, buf := seed()
			require.NoError(t, s.Eval(tc.line))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestQuitBuiltin(t *testing.T) {
	s, _, _, _ := newTestShell(&fakeSpawner{})

	handled, err := s.builtin([]string{"quit"})

	assert.True(t, handled)
	assert.ErrorIs(t, err, errQuit)
}

func TestSignalGroupVanishedGroup(t *testing.T) {
	s, buf, _, rec := newTestShell(&fakeSpawner{})
	rec.err = unix.ESRCH

	s.signalGroup(99, unix.SIGCONT)

	assert.Equal(t, "(99): No such process or process group\n", buf.String())
}
