package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// fakeStorage keeps blobs in memory and counts calls.
type fakeStorage struct {
	blobs     map[string][]byte
	uploads   map[string][]byte
	downloads int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		blobs:   make(map[string][]byte),
		uploads: make(map[string][]byte),
	}
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.downloads++
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

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	delete(f.blobs, key)
	return nil
}

func (f *fakeStorage) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (f *fakeStorage) KeyFromURL(rawURL string) (string, error) {
	return strings.TrimPrefix(rawURL, "https://cdn.test/"), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeUpload(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	return img
}

func TestProcessImageResizesToTierCap(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["raw/pic.png"] = pngBytes(t, 4000, 3000)
	p := NewProcessor(storage)

	res, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.TierFree,
		InputKey:  "raw/pic.png",
		OutputKey: "images/pic.jpg",
	})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if res.Width != 1920 {
		t.Errorf("width = %d, want 1920 free-tier cap", res.Width)
	}
	if res.Height != 1440 {
		t.Errorf("height = %d, want 1440 to preserve aspect", res.Height)
	}
	if res.OutputKey != "images/pic.jpg" {
		t.Errorf("output key = %q", res.OutputKey)
	}
	if res.ThumbnailKey != "images/pic_thumb.jpg" {
		t.Errorf("thumbnail key = %q", res.ThumbnailKey)
	}
}

func TestProcessImageNeverUpscales(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["raw/small.png"] = pngBytes(t, 800, 600)
	p := NewProcessor(storage)

	res, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.TierStandard,
		InputKey:  "raw/small.png",
		OutputKey: "images/small.jpg",
	})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if res.Width != 800 || res.Height != 600 {
		t.Errorf("dimensions = %dx%d, want untouched 800x600", res.Width, res.Height)
	}
}

func TestProcessImageProTierKeepsDimensions(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["raw/big.png"] = pngBytes(t, 6000, 2000)
	p := NewProcessor(storage)

	res, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.TierPro,
		InputKey:  "raw/big.png",
		OutputKey: "images/big.jpg",
	})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if res.Width != 6000 || res.Height != 2000 {
		t.Errorf("dimensions = %dx%d, pro tier must not resize", res.Width, res.Height)
	}
}

func TestProcessImageThumbnailIsFixedCrop(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["raw/pic.png"] = pngBytes(t, 3000, 1000)
	p := NewProcessor(storage)

	res, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.TierFree,
		InputKey:  "raw/pic.png",
		OutputKey: "images/pic.jpg",
	})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}

	thumb := decodeUpload(t, storage.uploads[res.ThumbnailKey])
	b := thumb.Bounds()
	if b.Dx() != thumbWidth || b.Dy() != thumbHeight {
		t.Errorf("thumbnail = %dx%d, want %dx%d", b.Dx(), b.Dy(), thumbWidth, thumbHeight)
	}
}

func TestProcessImageUploadsBothDerivatives(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["raw/pic.png"] = pngBytes(t, 100, 100)
	p := NewProcessor(storage)

	_, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.TierFree,
		InputKey:  "raw/pic.png",
		OutputKey: "images/pic.jpg",
	})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if len(storage.uploads) != 2 {
		t.Errorf("uploads = %d, want main derivative and thumbnail", len(storage.uploads))
	}
}

func TestProcessImageMissingSource(t *testing.T) {
	p := NewProcessor(newFakeStorage())
	_, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.TierFree,
		InputKey:  "raw/missing.png",
		OutputKey: "images/missing.jpg",
	})
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestProcessImageUnknownTierFallsBackToFree(t *testing.T) {
	storage := newFakeStorage()
	storage.blobs["raw/pic.png"] = pngBytes(t, 4000, 4000)
	p := NewProcessor(storage)

	res, err := p.ProcessImage(context.Background(), ImageJob{
		Tier:      model.Tier("platinum"),
		InputKey:  "raw/pic.png",
		OutputKey: "images/pic.jpg",
	})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if res.Width != 1920 {
		t.Errorf("width = %d, unknown tier should get the free cap", res.Width)
	}
}
