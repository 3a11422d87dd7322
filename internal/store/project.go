package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// ProjectStore reads and writes editor_projects rows with their nested clips
// and overlays.
type ProjectStore struct {
	pool *pgxpool.Pool
}

// ProjectUpdate names the mutable subset of a project row. Nil fields are
// left untouched.
type ProjectUpdate struct {
	Status       *model.JobStatus
	Progress     *int
	Duration     *float64
	OutputURL    *string
	ThumbnailURL *string
	Error        *string
	ProcessedAt  *time.Time
}

// Get loads a project with clips ordered by sort_order ascending and
// overlays in insertion order.
func (s *ProjectStore) Get(ctx context.Context, id string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, tier, max_duration, duration, status, progress,
		       error, output_url, thumbnail_url, created_at, processed_at
		FROM editor_projects WHERE id = $1`, id)

	var p model.Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Tier, &p.MaxDuration, &p.Duration,
		&p.Status, &p.Progress, &p.Error, &p.OutputURL, &p.ThumbnailURL,
		&p.CreatedAt, &p.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}

	if p.Clips, err = s.clips(ctx, id); err != nil {
		return nil, err
	}
	if p.Overlays, err = s.overlays(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProjectStore) clips(ctx context.Context, projectID string) ([]model.Clip, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, raw_file_url, duration, width, height, sort_order,
		       trim_start, trim_end, speed, filter, volume
		FROM editor_clips WHERE project_id = $1 ORDER BY sort_order ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clips for %s: %w", projectID, err)
	}
	defer rows.Close()

	var clips []model.Clip
	for rows.Next() {
		var c model.Clip
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.RawFileURL, &c.Duration, &c.Width, &c.Height,
			&c.SortOrder, &c.TrimStart, &c.TrimEnd, &c.Speed, &c.Filter, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (s *ProjectStore) overlays(ctx context.Context, projectID string) ([]model.Overlay, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, type, x, y, start_time, end_time, text,
		       font_family, font_size, font_color, background_color
		FROM editor_overlays WHERE project_id = $1 ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overlays for %s: %w", projectID, err)
	}
	defer rows.Close()

	var overlays []model.Overlay
	for rows.Next() {
		var o model.Overlay
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Type, &o.X, &o.Y, &o.StartTime, &o.EndTime,
			&o.Text, &o.FontFamily, &o.FontSize, &o.FontColor, &o.BackgroundColor); err != nil {
			return nil, fmt.Errorf("failed to scan overlay: %w", err)
		}
		overlays = append(overlays, o)
	}
	return overlays, rows.Err()
}

// Update applies the set fields of u to the project row.
func (s *ProjectStore) Update(ctx context.Context, id string, u ProjectUpdate) error {
	var set []string
	var args []interface{}

	add := func(col string, val interface{}) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Progress != nil {
		add("progress", *u.Progress)
	}
	if u.Duration != nil {
		add("duration", *u.Duration)
	}
	if u.OutputURL != nil {
		add("output_url", *u.OutputURL)
	}
	if u.ThumbnailURL != nil {
		add("thumbnail_url", *u.ThumbnailURL)
	}
	if u.Error != nil {
		add("error", *u.Error)
	}
	if u.ProcessedAt != nil {
		add("processed_at", *u.ProcessedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE editor_projects SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
