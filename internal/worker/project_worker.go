package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/ffmpeg"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
)

const (
	// Shared canvas cap for project renders. Every clip is scaled and
	// letterboxed to one canvas so the concat demuxer's stream-copy pass
	// stays valid.
	canvasMaxWidth  = 1920
	canvasMaxHeight = 1080
)

// ProjectWorker renders a multi-clip project into one final asset:
// per-clip trim/scale/speed/filter passes, concatenation, an overlay and
// bitrate pass, thumbnail and upload.
type ProjectWorker struct {
	projects *service.ProjectService
	storage  client.StorageClient
	engine   Engine
	hub      Notifier
	tempDir  string
}

// NewProjectWorker creates a project worker.
func NewProjectWorker(projects *service.ProjectService, storage client.StorageClient, engine Engine, hub Notifier, tempDir string) *ProjectWorker {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ProjectWorker{projects: projects, storage: storage, engine: engine, hub: hub, tempDir: tempDir}
}

// ProcessTask handles a queued media:project task.
func (w *ProjectWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.ProjectTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.ProcessProject(ctx, payload.ProjectID)
}

// ProcessProject runs the full render for one project, recording any
// failure on the project row before returning it.
func (w *ProjectWorker) ProcessProject(ctx context.Context, projectID string) error {
	if err := w.renderRecorded(ctx, projectID); err != nil {
		if isPolicyError(err) {
			return fmt.Errorf("project %s failed: %v: %w", projectID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("project %s failed: %w", projectID, err)
	}
	return nil
}

// ProcessProjectSafe runs the render and never returns an error: the
// project row has already reached a terminal state and the outcome just
// reports which one.
func (w *ProjectWorker) ProcessProjectSafe(ctx context.Context, projectID string) JobOutcome {
	if err := w.renderRecorded(ctx, projectID); err != nil {
		return JobOutcome{Success: false, Error: failMessage(err)}
	}
	return JobOutcome{Success: true}
}

func (w *ProjectWorker) renderRecorded(ctx context.Context, projectID string) error {
	err := w.render(ctx, projectID)
	if err == nil {
		return nil
	}
	msg := failMessage(err)
	if failErr := w.projects.Fail(ctx, projectID, msg); failErr != nil {
		log.Error().Err(failErr).Str("project_id", projectID).Msg("failed to mark project failed")
	}
	if w.hub != nil {
		w.hub.BroadcastError(projectID, "PROCESSING_FAILED", msg)
	}
	log.Error().Err(err).Str("project_id", projectID).Msg("project render failed")
	return err
}

func (w *ProjectWorker) render(ctx context.Context, projectID string) error {
	project, err := w.projects.Get(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	if len(project.Clips) == 0 {
		return fmt.Errorf("project has no clips")
	}

	if err := w.projects.MarkProcessing(ctx, projectID, 5); err != nil {
		return fmt.Errorf("failed to mark project processing: %w", err)
	}
	w.notifyProgress(projectID, 5)

	workDir, err := os.MkdirTemp(w.tempDir, "deebop-project-"+projectID+"-")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Debug().Err(rmErr).Str("path", workDir).Msg("work dir cleanup failed")
		}
	}()

	// The store already orders clips, but the render depends on it.
	clips := make([]model.Clip, len(project.Clips))
	copy(clips, project.Clips)
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].SortOrder < clips[j].SortOrder })
	n := len(clips)

	// Download every source clip. 5 -> 20.
	sources := make([]string, n)
	for i, clip := range clips {
		key, err := w.storage.KeyFromURL(clip.RawFileURL)
		if err != nil {
			return err
		}
		sources[i] = filepath.Join(workDir, fmt.Sprintf("src-%d%s", i, path.Ext(key)))
		if err := w.downloadToFile(ctx, key, sources[i]); err != nil {
			return fmt.Errorf("clip %d: %w", i, err)
		}
		w.progress(ctx, projectID, 5+15*(i+1)/n)
	}

	// The first clip's source dimensions pick the shared canvas.
	first, err := w.engine.Probe(ctx, sources[0])
	if err != nil {
		return fmt.Errorf("clip 0: %w", err)
	}
	canvasW, canvasH := canvasSize(first.Width, first.Height)
	w.progress(ctx, projectID, 25)

	// Per-clip processing pass. 25 -> 60.
	processed := make([]string, n)
	for i, clip := range clips {
		spec := ffmpeg.ClipSpec{
			TrimStart:    clip.TrimStart,
			Duration:     clip.TrimmedEnd() - clip.TrimStart,
			TargetWidth:  canvasW,
			TargetHeight: canvasH,
			Speed:        clip.Speed,
			Volume:       clip.Volume,
		}
		if clip.Filter != nil {
			spec.Preset = *clip.Filter
		}
		processed[i] = filepath.Join(workDir, fmt.Sprintf("clip-%d.mp4", i))
		if err := w.engine.ProcessClip(ctx, sources[i], processed[i], spec); err != nil {
			return fmt.Errorf("clip %d: %w", i, err)
		}
		w.progress(ctx, projectID, 25+35*(i+1)/n)
	}
	w.progress(ctx, projectID, 65)

	// A single clip is already the assembled timeline.
	assembled := processed[0]
	if n > 1 {
		assembled = filepath.Join(workDir, "assembled.mp4")
		if err := w.engine.Concat(ctx, processed, assembled); err != nil {
			return err
		}
	}
	w.progress(ctx, projectID, 75)

	settings := model.ProjectTierFor(project.Tier)
	final := filepath.Join(workDir, "final.mp4")
	err = w.engine.FinalEncode(ctx, assembled, final, ffmpeg.FinalEncodeOptions{
		Bitrate:      settings.Bitrate,
		AudioBitrate: settings.AudioBitrate,
		Overlays:     project.Overlays,
	})
	if err != nil {
		return err
	}
	w.progress(ctx, projectID, 90)

	thumb := filepath.Join(workDir, "thumb.jpg")
	if err := w.engine.Thumbnail(ctx, final, thumb); err != nil {
		return err
	}
	w.progress(ctx, projectID, 92)

	outKey := fmt.Sprintf("projects/%s.mp4", projectID)
	outputURL, err := w.uploadFile(ctx, outKey, final, "video/mp4")
	if err != nil {
		return err
	}
	thumbURL, err := w.uploadFile(ctx, client.ThumbKey(outKey), thumb, "image/jpeg")
	if err != nil {
		return err
	}
	w.progress(ctx, projectID, 98)

	// The stream-copied concat can leave container metadata slightly off;
	// re-probe the final asset and fall back to the timeline sum.
	duration := 0.0
	for _, clip := range clips {
		duration += clip.OutputDuration()
	}
	if info, err := w.engine.Probe(ctx, final); err == nil && info.Duration > 0 {
		duration = info.Duration
	}

	if err := w.projects.Complete(ctx, projectID, service.ProjectCompletion{
		OutputURL:    outputURL,
		ThumbnailURL: thumbURL,
		Duration:     duration,
	}); err != nil {
		return err
	}

	if w.hub != nil {
		w.hub.BroadcastComplete(projectID, JobOutcome{Success: true})
	}
	log.Info().Str("project_id", projectID).Int("clips", n).Float64("duration", duration).
		Msg("project render completed")
	return nil
}

// canvasSize caps the first clip's dimensions at 1920x1080 and forces even
// values, which the encoder requires.
func canvasSize(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return canvasMaxWidth, canvasMaxHeight
	}
	if w > canvasMaxWidth {
		h = h * canvasMaxWidth / w
		w = canvasMaxWidth
	}
	if h > canvasMaxHeight {
		w = w * canvasMaxHeight / h
		h = canvasMaxHeight
	}
	return w &^ 1, h &^ 1
}

func (w *ProjectWorker) progress(ctx context.Context, projectID string, p int) {
	if err := w.projects.UpdateProgress(ctx, projectID, p); err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("failed to update progress")
	}
	w.notifyProgress(projectID, p)
}

func (w *ProjectWorker) notifyProgress(projectID string, p int) {
	if w.hub != nil {
		w.hub.BroadcastProgress(projectID, p, model.JobStatusProcessing)
	}
}

func (w *ProjectWorker) downloadToFile(ctx context.Context, key, dst string) error {
	body, err := w.storage.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

func (w *ProjectWorker) uploadFile(ctx context.Context, key, src, contentType string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()
	return w.storage.Upload(ctx, key, f, contentType)
}
