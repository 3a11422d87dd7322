package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult holds the stream metadata the pipeline cares about.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe extracts duration and dimensions from the first video stream of a
// local file. Duration falls back to the container format entry for
// containers that only record it at the format level.
func (e *Engine) Probe(ctx context.Context, path string) (ProbeResult, error) {
	out, err := e.runProbe(ctx, path)
	if err != nil {
		return ProbeResult{}, err
	}
	return parseProbeOutput(out, "video")
}

// ProbeAudio extracts duration from an audio-only file.
func (e *Engine) ProbeAudio(ctx context.Context, path string) (float64, error) {
	out, err := e.runProbe(ctx, path)
	if err != nil {
		return 0, err
	}
	res, err := parseProbeOutput(out, "audio")
	if err != nil {
		return 0, err
	}
	return res.Duration, nil
}

func (e *Engine) runProbe(ctx context.Context, path string) ([]byte, error) {
	// The same wall-clock kill switch as transcodes; a hung ffprobe must
	// not pin a worker slot.
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
	cmd := exec.CommandContext(ctx, e.probePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ProbeError{Timeout: true, Err: ctx.Err()}
		}
		return nil, &ProbeError{Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

// parseProbeOutput picks the first stream of the wanted codec type, reading
// duration from the stream when present and from the format entry otherwise.
func parseProbeOutput(data []byte, codecType string) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, &ProbeError{Err: fmt.Errorf("unparsable ffprobe output: %w", err)}
	}

	var res ProbeResult
	durStr := ""
	for _, s := range out.Streams {
		if s.CodecType != codecType {
			continue
		}
		res.Width = s.Width
		res.Height = s.Height
		durStr = s.Duration
		break
	}
	if durStr == "" {
		durStr = out.Format.Duration
	}
	if durStr == "" {
		return ProbeResult{}, &ProbeError{Err: fmt.Errorf("no duration in ffprobe output")}
	}

	dur, err := strconv.ParseFloat(durStr, 64)
	if err != nil {
		return ProbeResult{}, &ProbeError{Err: fmt.Errorf("invalid duration %q: %w", durStr, err)}
	}
	res.Duration = dur
	return res, nil
}
