package minsh

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalPolicy decides what interrupt and terminal-stop signals do. It is
// constructed once, at program start, with the pid of the root interactive
// process; that identity never changes afterwards.
//
// Terminal-stop (SIGTSTP) is ignored unconditionally. The ignored
// disposition survives exec, so no process in the shell's tree can be
// suspended from the keyboard.
//
// Interrupt (SIGINT) is swallowed by the root process and passed on to the
// foreground child if one is running. That asymmetry is what lets Ctrl-C
// kill the foregrounded job without ever killing the shell.
type SignalPolicy struct {
	rootPID int
	jobs    *JobManager
}

func NewSignalPolicy(rootPID int, jobs *JobManager) *SignalPolicy {
	return &SignalPolicy{rootPID: rootPID, jobs: jobs}
}

// IsRoot reports whether the current process is the original interactive
// process the policy was created in.
func (sp *SignalPolicy) IsRoot() bool {
	return os.Getpid() == sp.rootPID
}

// Install sets the process-wide signal dispositions and starts the
// interrupt handler. Call once, before the first prompt.
func (sp *SignalPolicy) Install() {
	signal.Ignore(syscall.SIGTSTP)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	go func() {
		for range sigs {
			sp.deliverInterrupt()
		}
	}()
}

// deliverInterrupt applies the policy for one SIGINT. A process that is not
// the root must not survive an interrupt; the root forwards it to the
// foreground child, if any, and otherwise swallows it so the prompt loop
// continues.
func (sp *SignalPolicy) deliverInterrupt() {
	if !sp.IsRoot() {
		syscall.Kill(os.Getpid(), syscall.SIGKILL)
		return
	}
	if fg := sp.jobs.foreground(); fg != nil && fg.Process != nil {
		fg.Process.Signal(syscall.SIGINT)
	}
}

// KillProcessGroup terminates the whole process group, the shell included,
// with no graceful drain. This is what the exit builtin does: backgrounded
// jobs die with the shell.
func KillProcessGroup() {
	syscall.Kill(0, syscall.SIGKILL)
}
