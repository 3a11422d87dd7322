package model

import "fmt"

// Tier settings are compiled-in policy tables. An unrecognized tier always
// falls back to the free entry.
//
// Note: the upload worker's video table (WorkerVideoTierFor) intentionally
// differs from the job pipeline's table below. The two were never reconciled
// upstream; do not unify them without a product decision.

// VideoTierSettings caps a single-file video job.
type VideoTierSettings struct {
	MaxDuration float64 // seconds
	MaxHeight   int
	Bitrate     string
}

// AudioTierSettings caps a single-file audio job. Tier gates duration only;
// audio quality is the same mezzanine encode for everyone.
type AudioTierSettings struct {
	MaxDuration float64
}

// ProjectTierSettings drives the multi-clip final encode.
type ProjectTierSettings struct {
	Bitrate      string
	AudioBitrate string
}

// WorkerVideoTierSettings is the upload worker's own video policy table.
type WorkerVideoTierSettings struct {
	MaxWidth    int
	MaxHeight   int
	MaxDuration float64
	Bitrate     string
}

// ImageTierSettings bounds the bitmap image path.
type ImageTierSettings struct {
	MaxDimension int // 0 = no resize
	Quality      int
}

var videoTiers = map[Tier]VideoTierSettings{
	TierFree:     {MaxDuration: 60, MaxHeight: 720, Bitrate: "1000k"},
	TierStandard: {MaxDuration: 300, MaxHeight: 1080, Bitrate: "2500k"},
	TierPro:      {MaxDuration: 1800, MaxHeight: 1080, Bitrate: "5000k"},
	TierTeams:    {MaxDuration: 3600, MaxHeight: 2160, Bitrate: "8000k"},
}

var audioTiers = map[Tier]AudioTierSettings{
	TierFree:     {MaxDuration: 120},
	TierStandard: {MaxDuration: 600},
	TierPro:      {MaxDuration: 3600},
	TierTeams:    {MaxDuration: 7200},
}

var projectTiers = map[Tier]ProjectTierSettings{
	TierFree:     {Bitrate: "2000k", AudioBitrate: "128k"},
	TierStandard: {Bitrate: "4000k", AudioBitrate: "192k"},
	TierPro:      {Bitrate: "8000k", AudioBitrate: "256k"},
	TierTeams:    {Bitrate: "10000k", AudioBitrate: "320k"},
}

var workerVideoTiers = map[Tier]WorkerVideoTierSettings{
	TierFree:     {MaxWidth: 1280, MaxHeight: 720, MaxDuration: 30, Bitrate: "1500k"},
	TierStandard: {MaxWidth: 1920, MaxHeight: 1080, MaxDuration: 60, Bitrate: "4000k"},
	TierPro:      {MaxWidth: 3840, MaxHeight: 2160, MaxDuration: 300, Bitrate: "12000k"},
}

var imageTiers = map[Tier]ImageTierSettings{
	TierFree:     {MaxDimension: 1920, Quality: 70},
	TierStandard: {MaxDimension: 4096, Quality: 85},
	TierPro:      {MaxDimension: 0, Quality: 95},
}

// VideoTierFor returns the single-file video settings for a tier.
func VideoTierFor(t Tier) VideoTierSettings {
	if s, ok := videoTiers[NormalizeTier(t)]; ok {
		return s
	}
	return videoTiers[TierFree]
}

// AudioTierFor returns the audio duration cap for a tier.
func AudioTierFor(t Tier) AudioTierSettings {
	if s, ok := audioTiers[NormalizeTier(t)]; ok {
		return s
	}
	return audioTiers[TierFree]
}

// ProjectTierFor returns the project encoder settings for a tier.
func ProjectTierFor(t Tier) ProjectTierSettings {
	if s, ok := projectTiers[NormalizeTier(t)]; ok {
		return s
	}
	return projectTiers[TierFree]
}

// WorkerVideoTierFor returns the upload worker's video settings for a tier.
func WorkerVideoTierFor(t Tier) WorkerVideoTierSettings {
	if s, ok := workerVideoTiers[NormalizeTier(t)]; ok {
		return s
	}
	return workerVideoTiers[TierFree]
}

// ImageTierFor returns the bitmap path settings for a tier.
func ImageTierFor(t Tier) ImageTierSettings {
	if s, ok := imageTiers[NormalizeTier(t)]; ok {
		return s
	}
	return imageTiers[TierFree]
}

// DurationExceededError rejects media longer than the tier allows. The
// message carries the limit so the API layer can surface it to the user.
type DurationExceededError struct {
	Limit  float64
	Actual float64
}

func (e *DurationExceededError) Error() string {
	return fmt.Sprintf("media duration %.1fs exceeds the %.0fs limit for your plan", e.Actual, e.Limit)
}

// TierRestrictionError rejects a feature not included in the tier.
type TierRestrictionError struct {
	Tier    Tier
	Feature string
}

func (e *TierRestrictionError) Error() string {
	return fmt.Sprintf("%s processing is not available on the %s plan", e.Feature, e.Tier)
}
