package minsh

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"minsh/parser"
)

// Command is one parsed input line bound to the I/O and shell state it will
// run against. ReturnCode holds the outcome after Run: 0, the child's own
// exit code, or ExecFailStatus when the program could not be launched.
type Command struct {
	Pipeline *parser.Pipeline
	Raw      string
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer

	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	ReturnCode int

	JobManager *JobManager
	State      *ShellState
	History    *HistoryManager
	Fs         afero.Fs

	// redirectFile is set when a background launch must hand its open
	// redirect target over to the job table.
	redirectFile io.Closer
}

func NewCommand(input string, jobManager *JobManager, state *ShellState) (*Command, error) {
	pipeline, err := parser.Parse(input)
	if err != nil {
		return nil, err
	}
	return &Command{
		Pipeline:   pipeline,
		Raw:        strings.TrimSpace(input),
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		JobManager: jobManager,
		State:      state,
		Fs:         afero.NewOsFs(),
	}, nil
}

// Run executes the parsed line. Builtins that mutate the shell's own state
// dispatch right here in the interactive process, with no spawn; everything
// else goes through the pipeline executor.
func (cmd *Command) Run() {
	cmd.StartTime = time.Now()
	defer func() {
		cmd.EndTime = time.Now()
		cmd.Duration = cmd.EndTime.Sub(cmd.StartTime)
	}()

	if cmd.Pipeline == nil || len(cmd.Pipeline.Stages) == 0 {
		return
	}

	name := cmd.Pipeline.Stages[0][0]
	if builtin, ok := parentBuiltins[name]; ok {
		// These run in the interactive process; a second stage would have
		// nothing to read from them, so the line is rejected outright.
		if len(cmd.Pipeline.Stages) > 1 {
			fmt.Fprintf(cmd.Stderr, "%s: cannot be used in a pipeline\n", name)
			cmd.ReturnCode = 1
			return
		}
		if cmd.Pipeline.RedirectTarget != "" {
			f, err := cmd.Fs.OpenFile(cmd.Pipeline.RedirectTarget, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				fmt.Fprintf(cmd.Stderr, "cannot open %s: %v\n", cmd.Pipeline.RedirectTarget, err)
				cmd.ReturnCode = ExecFailStatus
				return
			}
			originalStdout := cmd.Stdout
			cmd.Stdout = f
			defer func() {
				cmd.Stdout = originalStdout
				f.Close()
			}()
		}
		if err := builtin(cmd); err != nil {
			fmt.Fprintf(cmd.Stderr, "%s: %v\n", name, err)
			cmd.ReturnCode = 1
		}
		return
	}

	cmd.executePipeline()
}

// argv returns the first stage's argument vector.
func (cmd *Command) argv() []string {
	return cmd.Pipeline.Stages[0]
}
