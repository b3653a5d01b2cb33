package minsh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"minsh/parser"
)

// ExecFailStatus is the exit status reserved for a program that could not
// be launched: PATH lookup failure, or a pipe or redirect file that could
// not be set up.
const ExecFailStatus = 127

// startProcess launches a prepared child process. Tests swap it out to
// count spawns for lines that must be rejected before any process exists.
var startProcess = func(c *exec.Cmd) error { return c.Start() }

// executePipeline runs the one or two stages of the command's pipeline,
// applying the redirect target to the final stage's stdout only. It sets
// cmd.ReturnCode and reports success.
func (cmd *Command) executePipeline() bool {
	p := cmd.Pipeline

	var out io.Writer = cmd.Stdout
	if p.RedirectTarget != "" {
		f, err := cmd.Fs.OpenFile(p.RedirectTarget, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			fmt.Fprintf(cmd.Stderr, "cannot open %s: %v\n", p.RedirectTarget, err)
			cmd.ReturnCode = ExecFailStatus
			return false
		}
		if p.Background {
			// A background child keeps writing after this call returns;
			// the job owns the file until fg collects it.
			cmd.redirectFile = f
		} else {
			defer f.Close()
		}
		out = f
	}

	if len(p.Stages) == 1 {
		return cmd.runStage(p.Stages[0], cmd.Stdin, out)
	}
	return cmd.runPiped(p.Stages[0], p.Stages[1], out)
}

// runStage executes a single stage with the given I/O. Capturing builtins
// run in-process and write wherever the stage's output goes; external
// programs are resolved on the PATH and spawned.
func (cmd *Command) runStage(argv []string, stdin io.Reader, stdout io.Writer) bool {
	name := argv[0]
	if builtin, ok := builtins[name]; ok {
		return cmd.runBuiltin(builtin, argv, stdin, stdout)
	}

	execCmd := exec.Command(name, argv[1:]...)
	execCmd.Dir = cmd.State.CWD()
	execCmd.Stdin = stdin
	execCmd.Stdout = stdout
	execCmd.Stderr = cmd.Stderr

	if !cmd.start(execCmd, name) {
		return false
	}

	if cmd.Pipeline.Background {
		cmd.registerJob(execCmd, nil)
		return true
	}
	return cmd.wait(execCmd)
}

// runPiped wires two stages together. External stages share a real OS pipe:
// the parent closes both of its copies right after starting the children so
// the read side observes end-of-input the moment the writer exits; the
// parent itself never touches the pipe. A builtin stage runs in-process on
// the appropriate end instead.
func (cmd *Command) runPiped(first, second []string, finalOut io.Writer) bool {
	if builtin, ok := builtins[first[0]]; ok {
		var captured bytes.Buffer
		if !cmd.runBuiltin(builtin, first, cmd.Stdin, &captured) {
			return false
		}
		return cmd.runStage(second, &captured, finalOut)
	}

	firstCmd := exec.Command(first[0], first[1:]...)
	firstCmd.Dir = cmd.State.CWD()
	firstCmd.Stdin = cmd.Stdin
	firstCmd.Stderr = cmd.Stderr

	pr, pw, err := os.Pipe()
	if err != nil {
		fmt.Fprintf(cmd.Stderr, "pipe: %v\n", err)
		cmd.ReturnCode = ExecFailStatus
		return false
	}
	firstCmd.Stdout = pw

	if builtin, ok := builtins[second[0]]; ok {
		if !cmd.start(firstCmd, first[0]) {
			pr.Close()
			pw.Close()
			return false
		}
		pw.Close()
		ok := cmd.runBuiltin(builtin, second, pr, finalOut)
		pr.Close()
		if cmd.Pipeline.Background && ok {
			// Stage one keeps running; it becomes the job fg collects.
			cmd.registerJob(firstCmd, nil)
			return true
		}
		firstCmd.Wait()
		return ok
	}

	secondCmd := exec.Command(second[0], second[1:]...)
	secondCmd.Dir = cmd.State.CWD()
	secondCmd.Stdin = pr
	secondCmd.Stdout = finalOut
	secondCmd.Stderr = cmd.Stderr

	if !cmd.start(firstCmd, first[0]) {
		pr.Close()
		pw.Close()
		return false
	}
	if !cmd.start(secondCmd, second[0]) {
		pr.Close()
		pw.Close()
		firstCmd.Wait()
		return false
	}
	pw.Close()
	pr.Close()

	if cmd.Pipeline.Background {
		cmd.registerJob(firstCmd, secondCmd)
		return true
	}

	firstCmd.Wait()
	return cmd.wait(secondCmd)
}

func (cmd *Command) runBuiltin(fn builtinFunc, argv []string, stdin io.Reader, stdout io.Writer) bool {
	// Scope the builtin to its own stage so it sees only that stage's argv.
	tmp := &Command{
		Pipeline:   &parser.Pipeline{Stages: [][]string{argv}},
		Raw:        cmd.Raw,
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     cmd.Stderr,
		JobManager: cmd.JobManager,
		State:      cmd.State,
		History:    cmd.History,
		Fs:         cmd.Fs,
	}
	if err := fn(tmp); err != nil {
		fmt.Fprintf(cmd.Stderr, "%s: %v\n", argv[0], err)
		cmd.ReturnCode = 1
		return false
	}
	cmd.ReturnCode = 0
	return true
}

func (cmd *Command) start(execCmd *exec.Cmd, name string) bool {
	if err := startProcess(execCmd); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			fmt.Fprintf(cmd.Stderr, "%s: command not found\n", name)
		} else {
			fmt.Fprintf(cmd.Stderr, "%s: %v\n", name, err)
		}
		cmd.ReturnCode = ExecFailStatus
		return false
	}
	return true
}

// wait blocks until the foreground child terminates, collecting its exit
// status. The child is visible to the signal policy for the duration so an
// interrupt reaches it rather than the shell.
func (cmd *Command) wait(execCmd *exec.Cmd) bool {
	cmd.JobManager.setForeground(execCmd)
	defer cmd.JobManager.setForeground(nil)

	if err := execCmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmd.ReturnCode = exitErr.ExitCode()
		} else {
			fmt.Fprintf(cmd.Stderr, "wait: %v\n", err)
			cmd.ReturnCode = 1
		}
		return false
	}
	cmd.ReturnCode = 0
	return true
}

// registerJob records a freshly started background child in the job table
// and returns control without waiting. aux is a second pipeline stage that
// fg must also collect.
func (cmd *Command) registerJob(execCmd, aux *exec.Cmd) {
	job, n := cmd.JobManager.Add(cmd.Raw, execCmd)
	job.aux = aux
	job.redirect = cmd.redirectFile
	fmt.Fprintf(cmd.Stdout, "[%d] %d\n", n, job.Pid)
	cmd.ReturnCode = 0
}
