package minsh

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"minsh/parser"
)

func newTestCommand(t *testing.T, line string) (*Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	cmd, err := NewCommand(line, NewJobManager(), NewShellState())
	if err != nil {
		t.Fatalf("NewCommand(%q) returned error: %v", line, err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader("")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Fs = afero.NewMemMapFs()
	return cmd, &stdout, &stderr
}

// countSpawns swaps the process-start hook so a test can assert that a
// rejected line never creates a process.
func countSpawns(t *testing.T) *int {
	t.Helper()

	spawns := 0
	orig := startProcess
	startProcess = func(c *exec.Cmd) error {
		spawns++
		return orig(c)
	}
	t.Cleanup(func() { startProcess = orig })
	return &spawns
}

func TestOverflowSpawnsNoProcess(t *testing.T) {
	spawns := countSpawns(t)

	words := make([]string, parser.MaxArgs+1)
	for i := range words {
		words[i] = fmt.Sprintf("arg%d", i)
	}
	line := strings.Join(words, " ")

	_, err := NewCommand(line, NewJobManager(), NewShellState())
	if !errors.Is(err, parser.ErrTooManyArgs) {
		t.Fatalf("NewCommand err = %v, want ErrTooManyArgs", err)
	}
	if *spawns != 0 {
		t.Fatalf("%d process(es) spawned for an overflowing line", *spawns)
	}
}

func TestEmptyBackgroundSpawnsNoProcess(t *testing.T) {
	spawns := countSpawns(t)

	_, err := NewCommand("&", NewJobManager(), NewShellState())
	if !errors.Is(err, parser.ErrEmptyBackground) {
		t.Fatalf("NewCommand err = %v, want ErrEmptyBackground", err)
	}
	if *spawns != 0 {
		t.Fatalf("%d process(es) spawned for an empty background command", *spawns)
	}
}

func TestPwdRunsSynchronously(t *testing.T) {
	cmd, stdout, _ := newTestCommand(t, "pwd")
	cmd.Run()

	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if got := strings.TrimSpace(stdout.String()); got != cmd.State.CWD() {
		t.Errorf("pwd printed %q, want %q", got, cmd.State.CWD())
	}
}

func TestEchoBuiltin(t *testing.T) {
	cmd, stdout, _ := newTestCommand(t, "echo hello world")
	cmd.Run()

	if got := stdout.String(); got != "hello world\n" {
		t.Errorf("echo printed %q, want %q", got, "hello world\n")
	}
	if cmd.ReturnCode != 0 {
		t.Errorf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
}

func TestBuiltinRedirect(t *testing.T) {
	cmd, stdout, _ := newTestCommand(t, "echo hi > out.txt")
	cmd.Run()

	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if stdout.Len() != 0 {
		t.Errorf("redirected command wrote %q to stdout", stdout.String())
	}

	content, err := afero.ReadFile(cmd.Fs, "out.txt")
	if err != nil {
		t.Fatalf("redirect target not created: %v", err)
	}
	if string(content) != "hi\n" {
		t.Errorf("redirect target holds %q, want %q", content, "hi\n")
	}
}

func TestRedirectTruncatesExisting(t *testing.T) {
	cmd, _, _ := newTestCommand(t, "echo new > out.txt")
	if err := afero.WriteFile(cmd.Fs, "out.txt", []byte("old content, longer than the new one"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd.Run()

	content, err := afero.ReadFile(cmd.Fs, "out.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "new\n" {
		t.Errorf("redirect target holds %q, want %q", content, "new\n")
	}
}

func TestCommandNotFound(t *testing.T) {
	cmd, _, stderr := newTestCommand(t, "definitely-not-a-command-xyzzy")
	cmd.Run()

	if cmd.ReturnCode != ExecFailStatus {
		t.Fatalf("ReturnCode = %d, want %d", cmd.ReturnCode, ExecFailStatus)
	}
	if !strings.Contains(stderr.String(), "command not found") {
		t.Errorf("stderr = %q, want a command-not-found report", stderr.String())
	}
}

func TestExternalExitCode(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping test in CI environment")
	}

	cmd, _, _ := newTestCommand(t, "false")
	cmd.Run()
	if cmd.ReturnCode == 0 {
		t.Fatal("false reported exit status 0")
	}

	cmd, _, _ = newTestCommand(t, "true")
	cmd.Run()
	if cmd.ReturnCode != 0 {
		t.Fatalf("true reported exit status %d", cmd.ReturnCode)
	}
}

func TestPipeBuiltinToExternal(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping test in CI environment")
	}

	cmd, stdout, _ := newTestCommand(t, "echo one two | cat")
	cmd.Run()

	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if got := stdout.String(); got != "one two\n" {
		t.Errorf("pipeline output = %q, want %q", got, "one two\n")
	}
}

func TestPipeExternalToExternal(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping test in CI environment")
	}
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("/bin/echo not available")
	}

	cmd, stdout, _ := newTestCommand(t, "/bin/echo hello | cat")
	cmd.Run()

	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if got := stdout.String(); got != "hello\n" {
		t.Errorf("pipeline output = %q, want %q", got, "hello\n")
	}
}

func TestPipelineRedirect(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping test in CI environment")
	}

	cmd, stdout, _ := newTestCommand(t, "echo piped | cat > out.txt")
	cmd.Run()

	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if stdout.Len() != 0 {
		t.Errorf("redirected pipeline wrote %q to stdout", stdout.String())
	}
	content, err := afero.ReadFile(cmd.Fs, "out.txt")
	if err != nil {
		t.Fatalf("redirect target not created: %v", err)
	}
	if string(content) != "piped\n" {
		t.Errorf("redirect target holds %q, want %q", content, "piped\n")
	}
}

func TestBackgroundReturnsImmediately(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping test in CI environment")
	}

	cmd, stdout, _ := newTestCommand(t, "sleep 1 &")

	start := time.Now()
	cmd.Run()
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Fatalf("background launch blocked for %v", elapsed)
	}
	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}

	listed := cmd.JobManager.Jobs()
	if len(listed) != 1 {
		t.Fatalf("len(Jobs()) = %d, want 1", len(listed))
	}
	if listed[0].Command != "sleep 1 &" {
		t.Errorf("job command = %q, want the original line", listed[0].Command)
	}
	if listed[0].Pid <= 0 {
		t.Errorf("job pid = %d, want a real pid", listed[0].Pid)
	}
	if !strings.Contains(stdout.String(), "[1] ") {
		t.Errorf("stdout = %q, want a job announcement", stdout.String())
	}

	// Collect the child so the test does not leave it behind.
	if _, err := cmd.JobManager.Foreground(1); err != nil {
		t.Fatalf("Foreground(1) returned error: %v", err)
	}
}

func TestBackgroundPipeToBuiltin(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping test in CI environment")
	}

	cmd, stdout, _ := newTestCommand(t, "sleep 1 | echo hi &")

	start := time.Now()
	cmd.Run()
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Fatalf("background pipeline blocked for %v", elapsed)
	}
	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if !strings.Contains(stdout.String(), "hi\n") {
		t.Errorf("stdout = %q, want the builtin stage's output", stdout.String())
	}
	if !strings.Contains(stdout.String(), "[1] ") {
		t.Errorf("stdout = %q, want a job announcement", stdout.String())
	}

	listed := cmd.JobManager.Jobs()
	if len(listed) != 1 {
		t.Fatalf("len(Jobs()) = %d, want 1", len(listed))
	}
	if listed[0].Command != "sleep 1 | echo hi &" {
		t.Errorf("job command = %q, want the original line", listed[0].Command)
	}

	if _, err := cmd.JobManager.Foreground(1); err != nil {
		t.Fatalf("Foreground(1) returned error: %v", err)
	}
}

func TestParentBuiltinRedirect(t *testing.T) {
	cmd, stdout, _ := newTestCommand(t, "jobs > joblist")
	cmd.JobManager.Add("sleep 5", nil)

	cmd.Run()

	if cmd.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", cmd.ReturnCode)
	}
	if stdout.Len() != 0 {
		t.Errorf("redirected jobs wrote %q to stdout", stdout.String())
	}

	content, err := afero.ReadFile(cmd.Fs, "joblist")
	if err != nil {
		t.Fatalf("redirect target not created: %v", err)
	}
	if !strings.Contains(string(content), "[1]") || !strings.Contains(string(content), "sleep 5") {
		t.Errorf("redirect target holds %q, want the job listing", content)
	}
}

func TestParentBuiltinRejectsPipeline(t *testing.T) {
	cmd, _, stderr := newTestCommand(t, "cd /tmp | wc")
	before := cmd.State.CWD()

	cmd.Run()

	if cmd.ReturnCode == 0 {
		t.Fatal("cd heading a pipeline reported success")
	}
	if !strings.Contains(stderr.String(), "pipeline") {
		t.Errorf("stderr = %q, want a pipeline rejection", stderr.String())
	}
	if cmd.State.CWD() != before {
		t.Errorf("cwd changed to %q, want %q untouched", cmd.State.CWD(), before)
	}
}
