package minsh

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
)

type builtinFunc func(cmd *Command) error

// builtins run wherever the stage's output goes: in a pipeline they feed
// the next stage, under redirection they write the target file.
var builtins map[string]builtinFunc

// parentBuiltins must run in the interactive process itself because they
// mutate its working directory, its job table, or its lifetime. They never
// cause a spawn.
var parentBuiltins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"echo": echo,
		"pwd":  pwd,
		"help": help,
	}
	parentBuiltins = map[string]builtinFunc{
		"cd":      cd,
		"fg":      fg,
		"exit":    exitShell,
		"jobs":    jobs,
		"history": history,
	}
}

func cd(cmd *Command) error {
	argv := cmd.argv()
	if len(argv) > 2 {
		return fmt.Errorf("too many arguments")
	}

	var targetDir string
	if len(argv) == 2 {
		targetDir = argv[1]
	}
	if targetDir == "" {
		targetDir = os.Getenv("HOME")
	} else if targetDir == "-" {
		targetDir = cmd.State.PreviousDir()
		if targetDir == "" {
			return fmt.Errorf("no previous directory")
		}
	}

	if err := os.Chdir(targetDir); err != nil {
		log.Printf("cd error: unable to change directory to %s: %v", targetDir, err)
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = targetDir
	}
	cmd.State.UpdateCWD(cwd)
	return nil
}

func pwd(cmd *Command) error {
	_, err := fmt.Fprintln(cmd.Stdout, cmd.State.CWD())
	return err
}

func echo(cmd *Command) error {
	_, err := fmt.Fprintln(cmd.Stdout, strings.Join(cmd.argv()[1:], " "))
	return err
}

func jobs(cmd *Command) error {
	for i, job := range cmd.JobManager.Jobs() {
		if _, err := fmt.Fprintf(cmd.Stdout, "[%d] %d %s\n", i+1, job.Pid, job.Command); err != nil {
			return err
		}
	}
	return nil
}

// fg brings a background job to the foreground. With no argument it takes
// job 1; the entry leaves the table before the wait starts, so a later
// jobs listing renumbers the rest.
func fg(cmd *Command) error {
	argv := cmd.argv()
	if len(argv) > 2 {
		return fmt.Errorf("usage: fg [job]")
	}

	index := 1
	if len(argv) == 2 {
		n, err := strconv.Atoi(argv[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid job number %q", argv[1])
		}
		index = n
	}

	job, err := cmd.JobManager.Remove(index)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Stdout, job.Command)
	return cmd.JobManager.WaitOn(job)
}

// exit terminates the whole process group, background jobs included.
func exitShell(cmd *Command) error {
	KillProcessGroup()
	return nil
}

func history(cmd *Command) error {
	if cmd.History == nil {
		return fmt.Errorf("history is disabled")
	}
	records, err := cmd.History.Dump()
	if err != nil {
		return err
	}
	for _, record := range records {
		if _, err := fmt.Fprintln(cmd.Stdout, record); err != nil {
			return err
		}
	}
	return nil
}

func help(cmd *Command) error {
	names := make([]string, 0, len(builtins)+len(parentBuiltins))
	for name := range builtins {
		names = append(names, name)
	}
	for name := range parentBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)

	if _, err := fmt.Fprintln(cmd.Stdout, "Built-in commands:"); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintf(cmd.Stdout, "  %s\n", name); err != nil {
			return err
		}
	}
	return nil
}
