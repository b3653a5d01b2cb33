package minsh

import (
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

const defaultPrompt = "%u@%h:%w$ "

var (
	userColor = color.New(color.FgCyan, color.Bold)
	pathColor = color.New(color.FgBlue, color.Bold)
)

// Prompt renders the prompt for the next read, expanding the same %-escapes
// whether the format comes from MINSH_PROMPT or the default. Color output
// switches itself off when stdout is not a terminal.
func Prompt(state *ShellState) string {
	format := os.Getenv("MINSH_PROMPT")
	if format == "" {
		format = defaultPrompt
	}
	return expandPromptVariables(format, state)
}

func expandPromptVariables(prompt string, state *ShellState) string {
	username := os.Getenv("USER")
	hostname, _ := os.Hostname()

	replacements := map[string]string{
		"%u": userColor.Sprint(username),
		"%h": userColor.Sprint(hostname),
		"%w": pathColor.Sprint(state.CWD()),
		"%W": pathColor.Sprint(shortenPath(state.CWD())),
		"%d": time.Now().Format("2006-01-02"),
		"%t": time.Now().Format("15:04:05"),
		"%$": "$",
	}

	for key, value := range replacements {
		prompt = strings.ReplaceAll(prompt, key, value)
	}
	return prompt
}

func shortenPath(path string) string {
	home := os.Getenv("HOME")
	if home != "" && strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// SetPrompt overrides the prompt format for the rest of the session.
func SetPrompt(format string) error {
	return os.Setenv("MINSH_PROMPT", format)
}
