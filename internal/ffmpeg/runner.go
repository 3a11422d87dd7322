package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// stderrTailLines bounds how much diagnostic output a TranscodeError carries.
const stderrTailLines = 20

var timeRe = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2}\.\d+)`)

// ProgressFunc receives the encoder's elapsed output time in seconds as it
// streams by on stderr. Callers map it onto whatever progress scale they use.
type ProgressFunc func(elapsed float64)

// Runner spawns the transcode binary and supervises it: stderr capture for
// diagnostics, coarse progress reporting, and a wall-clock timeout that kills
// a hung encode.
type Runner struct {
	binPath string
	timeout time.Duration
}

// NewRunner creates a runner for the given ffmpeg binary. A zero timeout
// disables the kill switch.
func NewRunner(binPath string, timeout time.Duration) *Runner {
	return &Runner{binPath: binPath, timeout: timeout}
}

// Run executes ffmpeg with args, resolving when the process exits 0. A
// non-zero exit returns a *TranscodeError carrying the stderr tail; hitting
// the wall-clock timeout kills the process and returns a timeout-flagged
// *TranscodeError.
func (r *Runner) Run(ctx context.Context, args []string, onProgress ProgressFunc) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &TranscodeError{Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &TranscodeError{Err: err}
	}

	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
		if onProgress == nil {
			continue
		}
		if m := timeRe.FindStringSubmatch(line); len(m) == 4 {
			h, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])
			s, _ := strconv.ParseFloat(m[3], 64)
			onProgress(float64(h*3600+min*60) + s)
		}
	}

	err = cmd.Wait()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn().Str("bin", r.binPath).Dur("timeout", r.timeout).Msg("ffmpeg killed by wall-clock timeout")
		return &TranscodeError{Timeout: true, Err: ctx.Err()}
	}
	return &TranscodeError{Output: strings.Join(tail, "\n"), Err: err}
}
