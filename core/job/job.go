// Package job implements the shell's process/job table: a fixed-capacity
// registry of child processes and their control state.
package job

import (
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"
)

// MaxJobs is the table capacity. Add fails once every slot is live.
const MaxJobs = 16

// State is a tracked job's control state.
type State int

const (
	// Undefined marks an unused table slot.
	Undefined State = iota
	// Foreground is the job holding the terminal. At most one job is in
	// this state at any time; the shell blocks on it.
	Foreground
	// Background runs without terminal control.
	Background
	// Stopped is suspended by a job-control signal, resumable via SIGCONT.
	Stopped
)

// String returns the label used in the jobs listing.
func (s State) String() string {
	switch s {
	case Foreground:
		return "Foreground"
	case Background:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Undefined"
	}
}

// Job is one tracked child process. A PID of 0 means the slot is unused.
type Job struct {
	PID     int
	JID     int
	State   State
	Cmdline string
}

// Table is the registry of live jobs, indexed by slot.
//
// The table itself is unsynchronized. The dispatcher and the signal relay
// serialize all access through the shell's shield, and lookups return
// copies: holding a reference into the table across a point where it may be
// mutated is never safe.
type Table struct {
	slots   [MaxJobs]Job
	nextJID int

	out io.Writer
	log *zap.SugaredLogger
}

// NewTable returns an empty table. User-visible diagnostics are written to
// out; debug diagnostics go to log.
func NewTable(out io.Writer, log *zap.SugaredLogger) *Table {
	return &Table{
		nextJID: 1,
		out:     out,
		log:     log,
	}
}

// Clear resets one slot to Undefined.
func (t *Table) Clear(slot int) {
	t.slots[slot] = Job{}
}

// Add registers a child under the next job ID and returns true, or reports
// the problem to the user and returns false if pid is invalid or the table
// is full.
func (t *Table) Add(pid int, state State, cmdline string) bool {
	if pid < 1 {
		return false
	}

	for i := range t.slots {
		if t.slots[i].PID != 0 {
			continue
		}

		t.slots[i] = Job{
			PID:     pid,
			JID:     t.nextJID,
			State:   state,
			Cmdline: cmdline,
		}
		t.nextJID++
		// Wrap like the job IDs of historical shells. A wrapped ID can
		// collide with a still-live high one; Delete's recompute makes
		// that rare in practice.
		if t.nextJID > MaxJobs {
			t.nextJID = 1
		}
		t.log.Debugw("added job",
			"jid", t.slots[i].JID,
			"pid", pid,
			"cmdline", cmdline)
		return true
	}

	fmt.Fprintln(t.out, "Tried to create too many jobs")
	return false
}

// Delete clears the slot holding pid and recomputes the next job ID as one
// past the largest live ID. Returns false if pid is invalid or not present.
func (t *Table) Delete(pid int) bool {
	if pid < 1 {
		return false
	}

	for i := range t.slots {
		if t.slots[i].PID == pid {
			t.Clear(i)
			t.nextJID = t.maxJID() + 1
			return true
		}
	}
	return false
}

// maxJID returns the largest live job ID, 0 when the table is empty.
func (t *Table) maxJID() int {
	highest := 0
	for i := range t.slots {
		if t.slots[i].JID > highest {
			highest = t.slots[i].JID
		}
	}
	return highest
}

// FindByPID returns a copy of the job with the given pid. Absence is
// routine (the job may already be reaped), not an error.
func (t *Table) FindByPID(pid int) (Job, bool) {
	if pid < 1 {
		return Job{}, false
	}
	for i := range t.slots {
		if t.slots[i].PID == pid {
			return t.slots[i], true
		}
	}
	return Job{}, false
}

// FindByJID returns a copy of the job with the given job ID.
func (t *Table) FindByJID(jid int) (Job, bool) {
	if jid < 1 {
		return Job{}, false
	}
	for i := range t.slots {
		if t.slots[i].JID == jid {
			return t.slots[i], true
		}
	}
	return Job{}, false
}

// SetState updates the state of the job with the given pid.
func (t *Table) SetState(pid int, state State) bool {
	if pid < 1 {
		return false
	}
	for i := range t.slots {
		if t.slots[i].PID == pid {
			t.slots[i].State = state
			return true
		}
	}
	return false
}

// ForegroundPID returns the pid of the unique foreground job, 0 if none.
func (t *Table) ForegroundPID() int {
	for i := range t.slots {
		if t.slots[i].State == Foreground {
			return t.slots[i].PID
		}
	}
	return 0
}

// JIDOf maps a pid to its job ID, 0 if not present.
func (t *Table) JIDOf(pid int) int {
	if pid < 1 {
		return 0
	}
	for i := range t.slots {
		if t.slots[i].PID == pid {
			return t.slots[i].JID
		}
	}
	return 0
}

// Len counts live jobs.
func (t *Table) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].PID != 0 {
			n++
		}
	}
	return n
}

// Jobs yields copies of the live jobs in slot order. The sequence is lazy
// and may be iterated any number of times.
func (t *Table) Jobs() iter.Seq[Job] {
	return func(yield func(Job) bool) {
		for i := range t.slots {
			if t.slots[i].PID == 0 {
				continue
			}
			if !yield(t.slots[i]) {
				return
			}
		}
	}
}

// Summaries yields one human-readable line per live job in slot order.
func (t *Table) Summaries() iter.Seq[string] {
	return func(yield func(string) bool) {
		for j := range t.Jobs() {
			if !yield(fmt.Sprintf("[%d] (%d) %s %s", j.JID, j.PID, j.State, j.Cmdline)) {
				return
			}
		}
	}
}
