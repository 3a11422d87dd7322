package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// atempo only accepts factors in [0.5, 2.0]; anything outside is reached by
// chaining instances.
const (
	atempoMin = 0.5
	atempoMax = 2.0
)

var filterPresets = map[string]string{
	"grayscale": "hue=s=0",
	"sepia":     "colorchannelmixer=.393:.769:.189:0:.349:.686:.168:0:.272:.534:.131",
	"vintage":   "curves=vintage",
	"vibrant":   "eq=saturation=1.4",
	"cool":      "colorbalance=bs=0.3:ms=0.15",
	"warm":      "colorbalance=rs=0.3:ms=0.1",
}

// FilterPreset looks up the filter-graph fragment for a named color preset.
// Unknown or empty names return ""; callers treat "no filter" as the normal
// case, not an error.
func FilterPreset(name string) string {
	return filterPresets[strings.ToLower(strings.TrimSpace(name))]
}

// SpeedFilters translates a playback speed multiplier into video and audio
// filter fragments. Speeds outside atempo's native range are reached by
// chaining atempo instances so the cumulative factor matches the request.
// A speed of 1 (or an invalid one) yields no filters.
func SpeedFilters(speed float64) (video, audio string) {
	if speed <= 0 || speed == 1 {
		return "", ""
	}

	video = fmt.Sprintf("setpts=PTS/%s", formatFloat(speed))

	var parts []string
	remaining := speed
	for remaining > atempoMax {
		parts = append(parts, "atempo=2.0")
		remaining /= atempoMax
	}
	for remaining < atempoMin {
		parts = append(parts, "atempo=0.5")
		remaining /= atempoMin
	}
	if remaining != 1 {
		parts = append(parts, "atempo="+formatFloat(remaining))
	}
	audio = strings.Join(parts, ",")
	return video, audio
}

// DrawText builds a drawtext filter for a text overlay: escaped text,
// normalized position mapped to canvas coordinates, font attributes, an
// optional enable window, and an optional background box. Returns "" for
// overlays with no text.
func DrawText(o model.Overlay) string {
	text := strings.TrimSpace(o.Text)
	if text == "" {
		return ""
	}

	parts := []string{
		"text='" + escapeDrawText(text) + "'",
		fmt.Sprintf("x=(w-text_w)*%s", formatFloat(o.X)),
		fmt.Sprintf("y=(h-text_h)*%s", formatFloat(o.Y)),
		fmt.Sprintf("fontsize=%d", o.FontSize),
	}
	if o.FontColor != "" {
		parts = append(parts, "fontcolor="+o.FontColor)
	}
	if o.FontFamily != "" {
		parts = append(parts, "font='"+escapeDrawText(o.FontFamily)+"'")
	}
	if o.BackgroundColor != nil && *o.BackgroundColor != "" {
		parts = append(parts, "box=1", "boxcolor="+*o.BackgroundColor, "boxborderw=8")
	}
	if o.EndTime != nil {
		parts = append(parts, fmt.Sprintf("enable='between(t,%s,%s)'",
			formatFloat(o.StartTime), formatFloat(*o.EndTime)))
	} else if o.StartTime > 0 {
		parts = append(parts, fmt.Sprintf("enable='gte(t,%s)'", formatFloat(o.StartTime)))
	}

	return "drawtext=" + strings.Join(parts, ":")
}

// escapeDrawText escapes the characters drawtext treats specially inside a
// quoted text value.
func escapeDrawText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

// joinFilters composes filter fragments, dropping empties.
func joinFilters(filters ...string) string {
	var parts []string
	for _, f := range filters {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
