package imageproc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// Equirectangular sources are 2:1; we accept a tolerance band around it and
// warn instead of failing for out-of-band ratios.
const (
	panoMinAspect = 1.9
	panoMaxAspect = 2.1

	panoMaxWidth     = 8192
	panoMaxHeight    = 4096
	panoQuality      = 90
	panoThumbWidth   = 800
	panoThumbHeight  = 400
	panoThumbQuality = 80
)

// PanoramaResult reports the stored panorama derivative.
type PanoramaResult struct {
	Width                  int    `json:"width"`
	Height                 int    `json:"height"`
	Size                   int    `json:"size"`
	OutputKey              string `json:"outputKey"`
	ThumbnailKey           string `json:"thumbnailKey"`
	IsValidEquirectangular bool   `json:"isValidEquirectangular"`
}

// ProcessPanorama validates and stores an equirectangular panorama. The tier
// gate runs before any download so restricted tiers never cost blob I/O; an
// out-of-tolerance aspect ratio is reported and logged, not fatal. The
// thumbnail is a flat center crop, not a 360-aware projection.
func (p *Processor) ProcessPanorama(ctx context.Context, job ImageJob) (*PanoramaResult, error) {
	if model.NormalizeTier(job.Tier) != model.TierPro {
		return nil, &model.TierRestrictionError{Tier: job.Tier, Feature: "panorama"}
	}

	src, err := p.download(ctx, job.InputKey)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	aspect := float64(bounds.Dx()) / float64(bounds.Dy())
	valid := aspect >= panoMinAspect && aspect <= panoMaxAspect
	if !valid {
		log.Warn().
			Str("key", job.InputKey).
			Float64("aspect", aspect).
			Msg("panorama aspect ratio outside equirectangular tolerance, processing anyway")
	}

	derivative := imaging.Fit(src, panoMaxWidth, panoMaxHeight, imaging.Lanczos)

	mainBytes, err := encodeJPEG(derivative, panoQuality)
	if err != nil {
		return nil, err
	}
	thumbBytes, err := encodeJPEG(imaging.Fill(src, panoThumbWidth, panoThumbHeight, imaging.Center, imaging.Lanczos), panoThumbQuality)
	if err != nil {
		return nil, err
	}

	if _, err := p.storage.Upload(ctx, job.OutputKey, bytes.NewReader(mainBytes), "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to upload panorama derivative: %w", err)
	}
	thumbKey := client.ThumbKey(job.OutputKey)
	if _, err := p.storage.Upload(ctx, thumbKey, bytes.NewReader(thumbBytes), "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to upload panorama thumbnail: %w", err)
	}

	outBounds := derivative.Bounds()
	return &PanoramaResult{
		Width:                  outBounds.Dx(),
		Height:                 outBounds.Dy(),
		Size:                   len(mainBytes),
		OutputKey:              job.OutputKey,
		ThumbnailKey:           thumbKey,
		IsValidEquirectangular: valid,
	}, nil
}
