package ffmpeg

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

// The runner is binary-agnostic; these tests drive it with /bin/sh so they
// need no media tooling installed.
func shRunner(t *testing.T, timeout time.Duration) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh-based runner tests are unix-only")
	}
	return NewRunner("/bin/sh", timeout)
}

func TestRunnerSuccess(t *testing.T) {
	r := shRunner(t, 0)
	if err := r.Run(context.Background(), []string{"-c", "exit 0"}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunnerFailureCarriesStderrTail(t *testing.T) {
	r := shRunner(t, 0)
	err := r.Run(context.Background(), []string{"-c", "echo boom >&2; exit 3"}, nil)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TranscodeError", err)
	}
	if te.Timeout {
		t.Error("plain failure flagged as timeout")
	}
	if !strings.Contains(te.Output, "boom") {
		t.Errorf("stderr tail = %q, want to contain boom", te.Output)
	}
}

func TestRunnerStderrTailBounded(t *testing.T) {
	r := shRunner(t, 0)
	script := "i=0; while [ $i -lt 100 ]; do echo line$i >&2; i=$((i+1)); done; exit 1"
	err := r.Run(context.Background(), []string{"-c", script}, nil)
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TranscodeError", err)
	}
	lines := strings.Split(te.Output, "\n")
	if len(lines) > stderrTailLines {
		t.Errorf("tail has %d lines, cap is %d", len(lines), stderrTailLines)
	}
	if lines[len(lines)-1] != "line99" {
		t.Errorf("last tail line = %q, want line99", lines[len(lines)-1])
	}
}

func TestRunnerProgressParsing(t *testing.T) {
	r := shRunner(t, 0)
	script := `echo "frame=  10 time=00:00:01.50 bitrate=ok" >&2; ` +
		`echo "frame=  20 time=00:01:05.25 bitrate=ok" >&2; exit 0`

	var got []float64
	err := r.Run(context.Background(), []string{"-c", script}, func(elapsed float64) {
		got = append(got, elapsed)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 || got[0] != 1.5 || got[1] != 65.25 {
		t.Errorf("progress = %v, want [1.5 65.25]", got)
	}
}

func TestRunnerTimeout(t *testing.T) {
	r := shRunner(t, 100*time.Millisecond)
	start := time.Now()
	err := r.Run(context.Background(), []string{"-c", "sleep 10"}, nil)
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout did not kill the process promptly")
	}
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TranscodeError", err)
	}
	if !te.Timeout {
		t.Error("timeout kill not flagged on the error")
	}
}
