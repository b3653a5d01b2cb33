package minsh

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ShellState holds the mutable state of the interactive process: the
// working directory, the previous directory for "cd -", and the exit status
// of the last command. It is created once at startup and shared by every
// command the shell runs.
type ShellState struct {
	mu          sync.RWMutex
	cwd         string
	previousDir string
	shellPID    int
	lastExit    int
	startTime   time.Time
}

func NewShellState() *ShellState {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = os.Getenv("HOME")
		if cwd == "" {
			cwd = "/"
		}
	}

	prevDir := os.Getenv("OLDPWD")
	if prevDir == "" {
		prevDir = os.Getenv("HOME")
		if prevDir == "" || prevDir == cwd {
			prevDir = filepath.Dir(cwd)
		}
	}

	os.Setenv("PWD", cwd)
	os.Setenv("OLDPWD", prevDir)

	return &ShellState{
		cwd:         cwd,
		previousDir: prevDir,
		shellPID:    os.Getpid(),
		startTime:   time.Now(),
	}
}

// UpdateCWD records a directory change, keeping the previous directory and
// the PWD/OLDPWD environment variables in step.
func (s *ShellState) UpdateCWD(newCWD string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cwd != newCWD {
		s.previousDir = s.cwd
	}
	s.cwd = newCWD

	os.Setenv("OLDPWD", s.previousDir)
	os.Setenv("PWD", s.cwd)
}

func (s *ShellState) CWD() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cwd
}

func (s *ShellState) PreviousDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previousDir
}

func (s *ShellState) ShellPID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shellPID
}

func (s *ShellState) SetLastExit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastExit = code
}

func (s *ShellState) LastExit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastExit
}
