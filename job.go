package minsh

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Job is one backgrounded command: the original line as typed and the
// process it launched. A job belongs to the table from the moment it is
// added until fg collects it; there is no automatic reaping.
type Job struct {
	Command string
	Pid     int
	Cmd     *exec.Cmd

	// aux is the second stage of a backgrounded pipeline; redirect is the
	// output file a backgrounded child writes to. Both are released once
	// the wait for the job completes.
	aux      *exec.Cmd
	redirect io.Closer
}

// JobManager is an ordered table of background jobs. Jobs are numbered by
// position, 1-based, in launch order; removing an entry renumbers the ones
// after it. The prompt loop is the only writer, but the table stays
// mutex-guarded because the signal handler reads the foreground process
// from another goroutine.
type JobManager struct {
	mu   sync.Mutex
	jobs []*Job

	fgMu sync.Mutex
	fg   *exec.Cmd
}

func NewJobManager() *JobManager {
	return &JobManager{}
}

// Add appends a job at the tail and returns it along with its current
// 1-based number.
func (jm *JobManager) Add(command string, cmd *exec.Cmd) (*Job, int) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{Command: command, Cmd: cmd}
	if cmd != nil && cmd.Process != nil {
		job.Pid = cmd.Process.Pid
	}
	jm.jobs = append(jm.jobs, job)
	return job, len(jm.jobs)
}

// Jobs returns a snapshot of the table in launch order. The slice index
// plus one is the job's user-visible number at the time of the call.
func (jm *JobManager) Jobs() []*Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	jobs := make([]*Job, len(jm.jobs))
	copy(jobs, jm.jobs)
	return jobs
}

// Remove takes the job at the given 1-based position out of the table.
func (jm *JobManager) Remove(index int) (*Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if index < 1 || index > len(jm.jobs) {
		return nil, fmt.Errorf("job %d not found", index)
	}
	job := jm.jobs[index-1]
	jm.jobs = append(jm.jobs[:index-1], jm.jobs[index:]...)
	return job, nil
}

// Foreground removes the job at the given position and blocks until its
// process terminates. The job is gone from the table either way; a job that
// already exited returns immediately from the wait.
func (jm *JobManager) Foreground(index int) (*Job, error) {
	job, err := jm.Remove(index)
	if err != nil {
		return nil, err
	}
	return job, jm.WaitOn(job)
}

// WaitOn blocks until the job's specific process terminates. A non-zero
// exit from the job is not an error; only a missing process or a failed
// wait is.
func (jm *JobManager) WaitOn(job *Job) error {
	if job.Cmd == nil || job.Cmd.Process == nil {
		return errors.New("job has no process to wait on")
	}

	jm.setForeground(job.Cmd)
	defer jm.setForeground(nil)
	defer job.release()

	if err := job.Cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return err
		}
	}
	return nil
}

// release collects the job's second pipeline stage and closes its redirect
// file, after the main wait has completed.
func (job *Job) release() {
	if job.aux != nil {
		job.aux.Wait()
		job.aux = nil
	}
	if job.redirect != nil {
		job.redirect.Close()
		job.redirect = nil
	}
}

func (jm *JobManager) setForeground(cmd *exec.Cmd) {
	jm.fgMu.Lock()
	defer jm.fgMu.Unlock()
	jm.fg = cmd
}

// foreground reports the process currently being waited on, if any.
func (jm *JobManager) foreground() *exec.Cmd {
	jm.fgMu.Lock()
	defer jm.fgMu.Unlock()
	return jm.fg
}
