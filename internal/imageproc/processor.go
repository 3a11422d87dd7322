package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

const (
	thumbWidth   = 400
	thumbHeight  = 400
	thumbQuality = 80
)

// Processor runs the in-process bitmap path: no subprocess, resize and
// compress entirely in memory. The storage client is injected so tests can
// swap it for a fake.
type Processor struct {
	storage client.StorageClient
}

// NewProcessor creates an image processor backed by the given blob storage.
func NewProcessor(storage client.StorageClient) *Processor {
	return &Processor{storage: storage}
}

// ImageJob names the source and destination keys for one bitmap job.
type ImageJob struct {
	Tier      model.Tier
	InputKey  string
	OutputKey string
}

// ImageResult reports the stored main derivative.
type ImageResult struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int    `json:"size"`
	OutputKey    string `json:"outputKey"`
	ThumbnailKey string `json:"thumbnailKey"`
}

// ProcessImage downloads the source, applies the tier's resize/quality
// policy to the main derivative, and independently produces a center-cropped
// thumbnail from the original bitmap so the thumbnail is never
// double-compressed. Both derivatives are uploaded before returning.
func (p *Processor) ProcessImage(ctx context.Context, job ImageJob) (*ImageResult, error) {
	src, err := p.download(ctx, job.InputKey)
	if err != nil {
		return nil, err
	}

	settings := model.ImageTierFor(job.Tier)

	derivative := src
	if settings.MaxDimension > 0 {
		// imaging.Fit only ever scales down, which keeps the no-upscale
		// invariant for sources already inside the box.
		derivative = imaging.Fit(src, settings.MaxDimension, settings.MaxDimension, imaging.Lanczos)
	}

	mainBytes, err := encodeJPEG(derivative, settings.Quality)
	if err != nil {
		return nil, err
	}
	thumbBytes, err := encodeJPEG(imaging.Fill(src, thumbWidth, thumbHeight, imaging.Center, imaging.Lanczos), thumbQuality)
	if err != nil {
		return nil, err
	}

	if _, err := p.storage.Upload(ctx, job.OutputKey, bytes.NewReader(mainBytes), "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to upload image derivative: %w", err)
	}
	thumbKey := client.ThumbKey(job.OutputKey)
	if _, err := p.storage.Upload(ctx, thumbKey, bytes.NewReader(thumbBytes), "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to upload image thumbnail: %w", err)
	}

	bounds := derivative.Bounds()
	return &ImageResult{
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Size:         len(mainBytes),
		OutputKey:    job.OutputKey,
		ThumbnailKey: thumbKey,
	}, nil
}

func (p *Processor) download(ctx context.Context, key string) (image.Image, error) {
	body, err := p.storage.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	log.Debug().Str("key", key).Str("format", format).Msg("decoded source image")
	return img, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
