package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/InfinityFocus/Deebop-sub002/internal/ffmpeg"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
)

type fakeStorage struct {
	blobs   map[string][]byte
	uploads map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte), uploads: make(map[string][]byte)}
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.uploads[key] = data
	return "https://cdn.test/" + key, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeStorage) PublicURL(key string) string                  { return "https://cdn.test/" + key }
func (f *fakeStorage) KeyFromURL(rawURL string) (string, error) {
	return strings.TrimPrefix(rawURL, "https://cdn.test/"), nil
}

type fakeVideoEngine struct {
	probe    ffmpeg.ProbeResult
	calls    int
	lastOpts ffmpeg.VideoOptions
}

func (f *fakeVideoEngine) Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error) {
	return f.probe, nil
}

func (f *fakeVideoEngine) TranscodeVideo(ctx context.Context, in, out string, opts ffmpeg.VideoOptions, onProgress ffmpeg.ProgressFunc) error {
	f.calls++
	f.lastOpts = opts
	return os.WriteFile(out, []byte("out"), 0o644)
}

func (f *fakeVideoEngine) Thumbnail(ctx context.Context, in, out string) error {
	return os.WriteFile(out, []byte("thumb"), 0o644)
}

type fakePosts struct {
	postIDs   []string
	durations []float64
}

func (f *fakePosts) UpdateMedia(ctx context.Context, postID string, duration float64, width, height *int) error {
	f.postIDs = append(f.postIDs, postID)
	f.durations = append(f.durations, duration)
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadTask(t *testing.T, payload TaskPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(service.TaskTypeMediaUpload, data)
}

func TestProcessDispatchesImage(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["uploads/pic.png"] = pngBytes(t, 2500, 2500)
	engine := &fakeVideoEngine{}
	video := NewVideoProcessor(storage, engine, t.TempDir())
	p := New(storage, video, nil)

	res, err := p.Process(context.Background(), TaskPayload{
		ContentType: model.ContentTypeImage,
		InputKey:    "uploads/pic.png",
		OutputKey:   "images/pic.jpg",
		Tier:        model.TierFree,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Width != 1920 {
		t.Errorf("width = %d, want free-tier cap 1920", res.Width)
	}
	if engine.calls != 0 {
		t.Error("image task must not touch the video engine")
	}
}

func TestProcessDispatchesVideo(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["uploads/clip.mov"] = []byte("bits")
	engine := &fakeVideoEngine{probe: ffmpeg.ProbeResult{Duration: 20, Width: 1280, Height: 720}}
	video := NewVideoProcessor(storage, engine, t.TempDir())
	p := New(storage, video, nil)

	res, err := p.Process(context.Background(), TaskPayload{
		ContentType: model.ContentTypeVideo,
		InputKey:    "uploads/clip.mov",
		OutputKey:   "video/clip.mp4",
		Tier:        model.TierStandard,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if engine.calls != 1 {
		t.Errorf("transcode calls = %d, want 1", engine.calls)
	}
	// Standard tier caps both dimensions here, not just height.
	if engine.lastOpts.MaxWidth != 1920 || engine.lastOpts.MaxHeight != 1080 {
		t.Errorf("transcode opts = %+v, want 1920x1080 caps", engine.lastOpts)
	}
	if engine.lastOpts.Bitrate != "4000k" {
		t.Errorf("bitrate = %q, want 4000k", engine.lastOpts.Bitrate)
	}
	if res.Duration != 20 || res.Width != 1280 {
		t.Errorf("result = %+v", res)
	}
	if res.ThumbnailKey != "video/clip_thumb.jpg" {
		t.Errorf("thumbnail key = %q", res.ThumbnailKey)
	}
	if _, ok := storage.uploads["video/clip.mp4"]; !ok {
		t.Error("derivative not uploaded")
	}
}

func TestProcessVideoDurationGateUsesWorkerTable(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["uploads/clip.mov"] = []byte("bits")
	// 45s is fine for the standard job pipeline but over the upload
	// worker's free cap of 30s.
	engine := &fakeVideoEngine{probe: ffmpeg.ProbeResult{Duration: 45, Width: 1280, Height: 720}}
	video := NewVideoProcessor(storage, engine, t.TempDir())
	p := New(storage, video, nil)

	_, err := p.Process(context.Background(), TaskPayload{
		ContentType: model.ContentTypeVideo,
		InputKey:    "uploads/clip.mov",
		OutputKey:   "video/clip.mp4",
		Tier:        model.TierFree,
	})
	var de *model.DurationExceededError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DurationExceededError", err)
	}
	if de.Limit != 30 {
		t.Errorf("limit = %v, want the upload worker's 30s cap", de.Limit)
	}
	if engine.calls != 0 {
		t.Error("rejected video must not transcode")
	}
}

func TestProcessTaskPanoramaPolicySkipsRetry(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["uploads/pano.png"] = pngBytes(t, 2000, 1000)
	video := NewVideoProcessor(storage, &fakeVideoEngine{}, t.TempDir())
	p := New(storage, video, nil)

	err := p.ProcessTask(context.Background(), uploadTask(t, TaskPayload{
		ContentType: model.ContentTypePanorama,
		InputKey:    "uploads/pano.png",
		OutputKey:   "panos/pano.jpg",
		Tier:        model.TierFree,
	}))
	if err == nil {
		t.Fatal("expected tier restriction error")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("policy rejection should not be retried: %v", err)
	}
}

func TestProcessTaskPropagatesVideoMetadata(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["uploads/clip.mov"] = []byte("bits")
	engine := &fakeVideoEngine{probe: ffmpeg.ProbeResult{Duration: 12.5, Width: 1280, Height: 720}}
	video := NewVideoProcessor(storage, engine, t.TempDir())
	posts := &fakePosts{}
	p := New(storage, video, posts)

	postID := "post-7"
	err := p.ProcessTask(context.Background(), uploadTask(t, TaskPayload{
		ContentType: model.ContentTypeVideo,
		InputKey:    "uploads/clip.mov",
		OutputKey:   "video/clip.mp4",
		Tier:        model.TierStandard,
		PostID:      &postID,
	}))
	if err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(posts.postIDs) != 1 || posts.postIDs[0] != "post-7" {
		t.Errorf("post updates = %v", posts.postIDs)
	}
	if posts.durations[0] != 12.5 {
		t.Errorf("propagated duration = %v, want 12.5", posts.durations[0])
	}
}

func TestProcessUnknownContentType(t *testing.T) {
	storage := newFakeStorage()
	video := NewVideoProcessor(storage, &fakeVideoEngine{}, t.TempDir())
	p := New(storage, video, nil)

	_, err := p.Process(context.Background(), TaskPayload{ContentType: model.ContentType("gif")})
	if err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Errorf("error = %v", err)
	}
}
