package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"minsh"
)

var (
	historyPath    string
	promptOverride string
)

var rootCmd = &cobra.Command{
	Use:           "minsh",
	Short:         "A minimal interactive Unix shell",
	Long:          "minsh reads one line at a time, runs it as a foreground or background pipeline, and tracks background jobs until fg collects them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&historyPath, "history", "", "path to the history database (default ~/.minsh_history.sqlite)")
	rootCmd.Flags().StringVar(&promptOverride, "prompt", "", "prompt format (overrides MINSH_PROMPT)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "minsh: %v\n", err)
		os.Exit(1)
	}
}

type shell struct {
	state   *minsh.ShellState
	jobs    *minsh.JobManager
	session *minsh.Session
	history *minsh.HistoryManager
}

func run() error {
	sh := &shell{
		state:   minsh.NewShellState(),
		jobs:    minsh.NewJobManager(),
		session: minsh.NewSession(),
	}

	policy := minsh.NewSignalPolicy(os.Getpid(), sh.jobs)
	policy.Install()

	history, err := minsh.NewHistoryManager(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minsh: history disabled: %v\n", err)
	} else {
		sh.history = history
		defer history.Close()
	}

	if promptOverride != "" {
		minsh.SetPrompt(promptOverride)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return sh.interactiveLoop()
	}
	return sh.scriptLoop()
}

// interactiveLoop reads lines with line editing. Interrupt at the prompt is
// swallowed; end of input exits with status 0.
func (sh *shell) interactiveLoop() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          minsh.Prompt(sh.state),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		rl.SetPrompt(minsh.Prompt(sh.state))
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		sh.execute(line)
	}
}

// scriptLoop handles non-terminal stdin so the shell works when fed from a
// pipe or a file. Same semantics, no prompt.
func (sh *shell) scriptLoop() error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		sh.execute(scanner.Text())
	}
	return scanner.Err()
}

func (sh *shell) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	cmd, err := minsh.NewCommand(line, sh.jobs, sh.state)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minsh: %v\n", err)
		return
	}
	cmd.History = sh.history

	cmd.Run()
	sh.state.SetLastExit(cmd.ReturnCode)

	if sh.history != nil {
		if err := sh.history.Insert(cmd, sh.session.ID); err != nil {
			fmt.Fprintf(os.Stderr, "minsh: failed to record history: %v\n", err)
		}
	}
}
