package model

import "time"

// Project is a multi-clip editor composition. Clips are concatenated in
// ascending SortOrder; overlays are rendered onto the final encode in list
// order.
type Project struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Name         string     `json:"name"`
	Tier         Tier       `json:"tier"`
	MaxDuration  float64    `json:"maxDuration"`
	Duration     *float64   `json:"duration,omitempty"`
	Clips        []Clip     `json:"clips"`
	Overlays     []Overlay  `json:"overlays"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	Error        *string    `json:"error,omitempty"`
	OutputURL    *string    `json:"outputUrl,omitempty"`
	ThumbnailURL *string    `json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}

// Clip is one ordered segment of a project. TrimEnd nil means "to source
// end". Invariants: TrimStart < TrimEnd (or source duration), Speed > 0.
type Clip struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"projectId"`
	RawFileURL string   `json:"rawFileUrl"`
	Duration   float64  `json:"duration"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	SortOrder  int      `json:"sortOrder"`
	TrimStart  float64  `json:"trimStart"`
	TrimEnd    *float64 `json:"trimEnd,omitempty"`
	Speed      float64  `json:"speed"`
	Filter     *string  `json:"filter,omitempty"`
	Volume     float64  `json:"volume"`
}

// TrimmedEnd resolves the effective trim end against the probed source
// duration.
func (c Clip) TrimmedEnd() float64 {
	if c.TrimEnd != nil {
		return *c.TrimEnd
	}
	return c.Duration
}

// OutputDuration is the clip's contribution to the final asset after trim
// and speed are applied.
func (c Clip) OutputDuration() float64 {
	if c.Speed <= 0 {
		return 0
	}
	return (c.TrimmedEnd() - c.TrimStart) / c.Speed
}

// Overlay is a timed element composited onto the project output. Only text
// overlays are rendered; an overlay with empty text is skipped regardless of
// type.
type Overlay struct {
	ID              string      `json:"id"`
	ProjectID       string      `json:"projectId"`
	Type            OverlayType `json:"type"`
	X               float64     `json:"x"`
	Y               float64     `json:"y"`
	StartTime       float64     `json:"startTime"`
	EndTime         *float64    `json:"endTime,omitempty"`
	Text            string      `json:"text"`
	FontFamily      string      `json:"fontFamily"`
	FontSize        int         `json:"fontSize"`
	FontColor       string      `json:"fontColor"`
	BackgroundColor *string     `json:"backgroundColor,omitempty"`
}

// ProjectStatusResponse is returned by the project status endpoint.
type ProjectStatusResponse struct {
	ProjectID    string    `json:"projectId"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	Duration     *float64  `json:"duration,omitempty"`
	OutputURL    *string   `json:"outputUrl,omitempty"`
	ThumbnailURL *string   `json:"thumbnailUrl,omitempty"`
	Error        *string   `json:"error,omitempty"`
}
