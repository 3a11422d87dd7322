package model

// Media kinds handled by the single-file job pipeline
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// Content types dispatched by the upload worker
type ContentType string

const (
	ContentTypeImage    ContentType = "image"
	ContentTypeVideo    ContentType = "video"
	ContentTypePanorama ContentType = "panorama"
)

// Subscription tiers
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
	TierTeams    Tier = "teams"
)

// NormalizeTier maps tier aliases onto their canonical value. "creator" is
// the legacy name of the standard tier and still appears on older rows.
func NormalizeTier(t Tier) Tier {
	if t == "creator" {
		return TierStandard
	}
	return t
}

// Job status. Transitions are one-directional:
// queued -> processing -> completed | failed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Overlay types
type OverlayType string

const (
	OverlayTypeText OverlayType = "text"
)
