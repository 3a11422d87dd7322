package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/config"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// Engine wraps the transcode and probe binaries behind the operation-level
// contracts the workers consume. All methods shell out; none mutate shared
// state, so one Engine is safe for concurrent jobs.
type Engine struct {
	ffmpegPath string
	probePath  string
	runner     *Runner
	timeout    time.Duration
}

// VideoOptions drives a direct single-file video transcode. A zero MaxWidth
// caps height only.
type VideoOptions struct {
	MaxWidth  int
	MaxHeight int
	Bitrate   string
}

// ClipSpec drives per-clip processing in the project pipeline.
type ClipSpec struct {
	TrimStart    float64
	Duration     float64
	TargetWidth  int
	TargetHeight int
	Speed        float64
	Preset       string
	Volume       float64
}

// FinalEncodeOptions drives the project's overlay pass and final encode.
type FinalEncodeOptions struct {
	Bitrate      string
	AudioBitrate string
	Overlays     []model.Overlay
}

// NewEngine builds an engine from config, falling back to the platform
// resolution rules for unset paths.
func NewEngine(cfg *config.FFmpegConfig) *Engine {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = FFmpegPath()
	}
	probePath := cfg.FFprobePath
	if probePath == "" {
		probePath = FFprobePath()
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	return &Engine{
		ffmpegPath: ffmpegPath,
		probePath:  probePath,
		runner:     NewRunner(ffmpegPath, timeout),
		timeout:    timeout,
	}
}

// Available reports whether the transcode binary can be invoked at all.
// Callers use a false result to take the degraded no-transcode path.
func (e *Engine) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := exec.CommandContext(ctx, e.ffmpegPath, "-version").Run()
	return err == nil
}

// videoScaleFilter caps the output to the option dimensions without ever
// upscaling past the source.
func videoScaleFilter(opts VideoOptions) string {
	if opts.MaxWidth > 0 {
		return fmt.Sprintf("scale='min(iw,%d)':'min(ih,%d)':force_original_aspect_ratio=decrease:force_divisible_by=2",
			opts.MaxWidth, opts.MaxHeight)
	}
	return fmt.Sprintf("scale=-2:'min(%d,ih)'", opts.MaxHeight)
}

// TranscodeVideo re-encodes a video at the tier bitrate with a fast-start
// container and a dimension cap that never upscales past the source.
func (e *Engine) TranscodeVideo(ctx context.Context, in, out string, opts VideoOptions, onProgress ProgressFunc) error {
	args := []string{
		"-y", "-hide_banner",
		"-i", in,
		"-vf", videoScaleFilter(opts),
		"-c:v", "libx264",
		"-preset", "fast",
		"-b:v", opts.Bitrate,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
	return e.runner.Run(ctx, args, onProgress)
}

// TranscodeAudio re-encodes audio to the standard mezzanine codec and
// bitrate. Tier gates allowed duration upstream, never audio quality.
func (e *Engine) TranscodeAudio(ctx context.Context, in, out string) error {
	args := []string{
		"-y", "-hide_banner",
		"-i", in,
		"-vn",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		out,
	}
	return e.runner.Run(ctx, args, nil)
}

// Thumbnail extracts a single frame one second in, scaled to a fixed width
// preserving aspect ratio.
func (e *Engine) Thumbnail(ctx context.Context, in, out string) error {
	args := []string{
		"-y", "-hide_banner",
		"-ss", "1",
		"-i", in,
		"-vframes", "1",
		"-vf", "scale=480:-2",
		out,
	}
	return e.runner.Run(ctx, args, nil)
}

// ProcessClip runs the full per-clip chain: trim, letterbox into the shared
// canvas without upscaling, speed, color preset, volume, fixed-quality
// encode.
func (e *Engine) ProcessClip(ctx context.Context, in, out string, spec ClipSpec) error {
	speedV, speedA := SpeedFilters(spec.Speed)

	scale := fmt.Sprintf("scale='min(iw,%d)':'min(ih,%d)':force_original_aspect_ratio=decrease",
		spec.TargetWidth, spec.TargetHeight)
	pad := fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", spec.TargetWidth, spec.TargetHeight)
	videoFilter := joinFilters(scale, pad, speedV, FilterPreset(spec.Preset))

	var audioFilters []string
	if speedA != "" {
		audioFilters = append(audioFilters, speedA)
	}
	if spec.Volume > 0 && spec.Volume != 1 {
		audioFilters = append(audioFilters, fmt.Sprintf("volume=%s", formatFloat(spec.Volume)))
	}

	args := []string{
		"-y", "-hide_banner",
		"-ss", formatFloat(spec.TrimStart),
		"-t", formatFloat(spec.Duration),
		"-i", in,
		"-vf", videoFilter,
	}
	if len(audioFilters) > 0 {
		args = append(args, "-filter:a", strings.Join(audioFilters, ","))
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "fast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		out,
	)
	return e.runner.Run(ctx, args, nil)
}

// Concat joins already-encoded clips via the concat demuxer with stream
// copy. The temp list file is removed whatever the outcome.
func (e *Engine) Concat(ctx context.Context, inputs []string, out string) error {
	list, err := os.CreateTemp(filepath.Dir(out), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(list.Name())

	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			list.Close()
			return fmt.Errorf("failed to resolve clip path %s: %w", in, err)
		}
		escaped := strings.ReplaceAll(abs, `'`, `'\''`)
		if _, err := fmt.Fprintf(list, "file '%s'\n", escaped); err != nil {
			list.Close()
			return fmt.Errorf("failed to write concat list: %w", err)
		}
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("failed to close concat list: %w", err)
	}

	args := []string{
		"-y", "-hide_banner",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		out,
	}
	return e.runner.Run(ctx, args, nil)
}

// FinalEncode re-encodes the concatenated asset at the project tier bitrate
// with fast-start, compositing text overlays in list order. Overlays with
// empty text are skipped; with none at all it is a plain re-encode pass.
func (e *Engine) FinalEncode(ctx context.Context, in, out string, opts FinalEncodeOptions) error {
	var drawFilters []string
	for _, o := range opts.Overlays {
		if o.Type != model.OverlayTypeText {
			continue
		}
		if f := DrawText(o); f != "" {
			drawFilters = append(drawFilters, f)
		}
	}

	args := []string{
		"-y", "-hide_banner",
		"-i", in,
	}
	if len(drawFilters) > 0 {
		args = append(args, "-vf", strings.Join(drawFilters, ","))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-b:v", opts.Bitrate,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", opts.AudioBitrate,
		"-movflags", "+faststart",
		out,
	)

	log.Debug().Int("overlays", len(drawFilters)).Str("out", out).Msg("final encode")
	return e.runner.Run(ctx, args, nil)
}
