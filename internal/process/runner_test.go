package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner() *Runner {
	return NewRunner(newTestLogger(), StopPolicy{
		InterruptGrace: 300 * time.Millisecond,
		TerminateGrace: 300 * time.Millisecond,
	})
}

// shell returns a Command running script under /bin/sh.
func shell(script string) Command {
	return Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

// waitReady waits until the script has reached its blocking point, which
// it announces by printing "ready".
func waitReady(t *testing.T, h *Handle) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case c, ok := <-h.Chunks():
			if !ok {
				t.Fatal("output closed before ready")
			}
			if strings.Contains(c.Text, "ready") {
				return
			}
		case <-timeout:
			t.Fatal("child never became ready")
		}
	}
}

// =============================================================================
// Execute
// =============================================================================

func TestRunner_Execute(t *testing.T) {
	r := newTestRunner()

	res, err := r.Execute(context.Background(), shell(`echo out; echo err >&2`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Stdout != "out\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out\n")
	}
	if res.Stderr != "err\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err\n")
	}
	if res.ExitCode != 0 || res.Err() != nil {
		t.Errorf("ExitCode = %d, Err() = %v", res.ExitCode, res.Err())
	}
	if res.Duration() <= 0 {
		t.Errorf("Duration() = %v, want > 0", res.Duration())
	}
}

func TestRunner_ExecuteNonZeroExit(t *testing.T) {
	r := newTestRunner()

	res, err := r.Execute(context.Background(), shell(`exit 3`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	var exitErr *ExitError
	if !errors.As(res.Err(), &exitErr) || exitErr.Code != 3 {
		t.Errorf("Err() = %v, want *ExitError{3}", res.Err())
	}
}

func TestRunner_LaunchFailure(t *testing.T) {
	r := newTestRunner()

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "does-not-exist")},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), Command{Path: tt.path})
			var launchErr *LaunchError
			if !errors.As(err, &launchErr) {
				t.Fatalf("error = %v, want *LaunchError", err)
			}
			if launchErr.Path != tt.path {
				t.Errorf("Path = %q, want %q", launchErr.Path, tt.path)
			}
		})
	}
}

func TestRunner_LaunchFailureNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(path, []byte("not a program"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := newTestRunner().Execute(context.Background(), Command{Path: path})
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("error = %v, want *LaunchError", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("error = %v, want permission denied", err)
	}
}

func TestRunner_EnvReplacesInherited(t *testing.T) {
	t.Setenv("ORCH_PARENT_ONLY", "leaked")
	r := newTestRunner()

	cmd := shell(`echo "${ORCH_CHILD}:${ORCH_PARENT_ONLY}"`)
	cmd.Env = []string{"ORCH_CHILD=set"}

	res, err := r.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "set:\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "set:\n")
	}

	cmd.Env = MergeEnv(os.Environ(), map[string]string{"ORCH_CHILD": "set"})
	res, err = r.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "set:leaked\n" {
		t.Errorf("merged Stdout = %q, want %q", res.Stdout, "set:leaked\n")
	}
}

func TestRunner_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	cmd := shell(`pwd -P`)
	cmd.Dir = dir

	res, err := newTestRunner().Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	if strings.TrimSpace(res.Stdout) != want {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(res.Stdout), want)
	}
}

func TestRunner_LargeOutputBothStreams(t *testing.T) {
	// ~150KB per stream, well past a 64KB pipe buffer.
	script := `i=0; while [ $i -lt 8000 ]; do echo "stdout line $i"; echo "stderr line $i" >&2; i=$((i+1)); done`

	done := make(chan struct{})
	var res *Result
	var err error
	go func() {
		res, err = newTestRunner().Execute(context.Background(), shell(script))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("Execute deadlocked on large output")
	}
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(res.Stdout, "\n"); n != 8000 {
		t.Errorf("stdout lines = %d, want 8000", n)
	}
	if n := strings.Count(res.Stderr, "\n"); n != 8000 {
		t.Errorf("stderr lines = %d, want 8000", n)
	}
}

func TestRunner_ExecuteAsync(t *testing.T) {
	ch := newTestRunner().ExecuteAsync(context.Background(), shell(`echo async`))

	select {
	case out := <-ch:
		if out.Err != nil {
			t.Fatal(out.Err)
		}
		if out.Result.Stdout != "async\n" {
			t.Errorf("Stdout = %q", out.Result.Stdout)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteAsync never delivered")
	}

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after one outcome")
	}
}

// =============================================================================
// Stream
// =============================================================================

func TestRunner_StreamChunksMatchResult(t *testing.T) {
	r := newTestRunner()
	h, err := r.Stream(context.Background(), "stream-test",
		shell(`for i in 1 2 3 4 5; do echo "o$i"; echo "e$i" >&2; done`))
	if err != nil {
		t.Fatal(err)
	}

	var stdout, stderr strings.Builder
	for c := range h.All() {
		if c.Origin == stream.Stdout {
			stdout.WriteString(c.Text)
		} else {
			stderr.WriteString(c.Text)
		}
	}

	res, err := h.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if stdout.String() != res.Stdout {
		t.Errorf("streamed stdout %q != result %q", stdout.String(), res.Stdout)
	}
	if stderr.String() != res.Stderr {
		t.Errorf("streamed stderr %q != result %q", stderr.String(), res.Stderr)
	}
	if h.ID() != "stream-test" || h.PID() <= 0 {
		t.Errorf("ID() = %q, PID() = %d", h.ID(), h.PID())
	}
	if h.Running() {
		t.Error("Running() = true after Wait")
	}
}

func TestRunner_OnChunkCallback(t *testing.T) {
	var seen strings.Builder
	cmd := shell(`echo callback`)
	cmd.OnChunk = func(c stream.Chunk) { seen.WriteString(c.Text) }

	if _, err := newTestRunner().Execute(context.Background(), cmd); err != nil {
		t.Fatal(err)
	}
	if seen.String() != "callback\n" {
		t.Errorf("OnChunk saw %q", seen.String())
	}
}

func TestRunner_TriggeredStdin(t *testing.T) {
	cmd := shell(`echo "Proceed? [y/n]" >&2; read ans; echo "got:$ans"`)
	cmd.Stdin = "yes\n"
	cmd.Trigger = &stream.Trigger{Origin: stream.Stderr, Substring: "[y/n]"}

	res, err := newTestRunner().Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "got:yes\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "got:yes\n")
	}
}

func TestRunner_ReplyStdin(t *testing.T) {
	cmd := shell(`echo "name?"; read a; echo "color?"; read b; echo "$a-$b"`)
	cmd.Reply = func(c stream.Chunk) (string, bool) {
		switch {
		case strings.Contains(c.Text, "name?"):
			return "mythic\n", true
		case strings.Contains(c.Text, "color?"):
			return "blue\n", true
		}
		return "", false
	}

	res, err := newTestRunner().Execute(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(res.Stdout, "mythic-blue\n") {
		t.Errorf("Stdout = %q", res.Stdout)
	}
}

// =============================================================================
// Cancellation
// =============================================================================

func TestHandle_StopEscalation(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   Stage
	}{
		{"interrupt", `echo ready; sleep 30`, StageInterrupt},
		{"terminate", `trap '' INT; echo ready; sleep 30`, StageTerminate},
		{"kill", `trap '' INT TERM; echo ready; sleep 30`, StageKill},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := newTestRunner().Start(context.Background(), tt.name, shell(tt.script))
			if err != nil {
				t.Fatal(err)
			}
			waitReady(t, h)

			start := time.Now()
			got := h.Stop()
			elapsed := time.Since(start)

			if got != tt.want {
				t.Errorf("Stop() = %v, want %v", got, tt.want)
			}
			if h.Running() {
				t.Error("child still running after Stop")
			}
			// Two 300ms graces plus scheduling slack.
			if elapsed > 3*time.Second {
				t.Errorf("Stop took %v", elapsed)
			}
			if _, err := h.Wait(); !errors.Is(err, ErrStopped) {
				t.Errorf("Wait() error = %v, want ErrStopped", err)
			}
		})
	}
}

func TestHandle_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := newTestRunner().Start(ctx, "ctx", shell(`echo ready; sleep 30`))
	if err != nil {
		t.Fatal(err)
	}
	waitReady(t, h)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("context cancel did not stop child")
	}
	if _, err := h.Wait(); !errors.Is(err, ErrStopped) {
		t.Errorf("Wait() error = %v, want ErrStopped", err)
	}
}

func TestHandle_BreakCancels(t *testing.T) {
	h, err := newTestRunner().Start(context.Background(), "break",
		shell(`echo ready; while true; do echo tick; sleep 0.05; done`))
	if err != nil {
		t.Fatal(err)
	}
	for c := range h.All() {
		if strings.Contains(c.Text, "ready") {
			break
		}
	}

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("breaking out of All() did not stop child")
	}
}

func TestHandle_CancelAfterExit(t *testing.T) {
	h, err := newTestRunner().Start(context.Background(), "done", shell(`true`))
	if err != nil {
		t.Fatal(err)
	}
	for range h.Chunks() {
	}
	<-h.Done()

	if got := h.Stop(); got != StageNone {
		t.Errorf("Stop() after exit = %v, want none", got)
	}
	if _, err := h.Wait(); err != nil {
		t.Errorf("Wait() error = %v, want nil", err)
	}
}

func TestHandle_CancelAfterOutputClosed(t *testing.T) {
	r := NewRunner(newTestLogger(), StopPolicy{
		InterruptGrace: 3 * time.Second,
		TerminateGrace: 300 * time.Millisecond,
	})
	// The child closes its output, then exits 0 on its own while SIGINT
	// is ignored.
	h, err := r.Start(context.Background(), "late",
		shell(`trap '' INT; exec >/dev/null 2>&1; sleep 0.3; exit 0`))
	if err != nil {
		t.Fatal(err)
	}
	for range h.Chunks() {
	}
	h.Cancel()

	res, err := h.Wait()
	if err != nil {
		t.Errorf("Wait() error = %v, want nil for a child that exited on its own", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if h.StopStage() != StageInterrupt {
		t.Errorf("StopStage() = %v, want interrupt", h.StopStage())
	}
}

func TestStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestRunner().Start(ctx, "", shell(`true`)); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func TestMergeEnv(t *testing.T) {
	base := []string{"A=1", "B=2", "C=3"}
	got := MergeEnv(base, map[string]string{"B": "20", "Z": "26", "D": "4"})
	want := []string{"A=1", "B=20", "C=3", "D=4", "Z=26"}

	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("MergeEnv() = %v, want %v", got, want)
	}
	if strings.Join(base, ",") != "A=1,B=2,C=3" {
		t.Errorf("MergeEnv mutated base: %v", base)
	}
}

func TestStage_String(t *testing.T) {
	for stage, want := range map[Stage]string{
		StageNone:      "none",
		StageInterrupt: "interrupt",
		StageTerminate: "terminate",
		StageKill:      "kill",
		Stage(42):      "unknown",
	} {
		if got := stage.String(); got != want {
			t.Errorf("Stage(%d).String() = %q, want %q", stage, got, want)
		}
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Path: "legendary", Args: []string{"install", "Fortnite"}}
	if got := c.String(); got != "legendary install Fortnite" {
		t.Errorf("String() = %q", got)
	}
}
