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

// JobStore reads and writes media_jobs rows. Updates touch only the fields
// the caller sets; once a worker owns a job, it is the row's only writer.
type JobStore struct {
	pool *pgxpool.Pool
}

// JobUpdate names the mutable subset of a job row. Nil fields are left
// untouched.
type JobUpdate struct {
	Status       *model.JobStatus
	Progress     *int
	OutputURL    *string
	ThumbnailURL *string
	Duration     *float64
	Width        *int
	Height       *int
	Error        *string
	ProcessedAt  *time.Time
}

const jobColumns = `id, post_id, kind, tier, raw_file_url, status, progress,
	output_url, thumbnail_url, duration, width, height, error, created_at, processed_at`

// Create inserts a queued job row with progress 0.
func (s *JobStore) Create(ctx context.Context, job *model.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO media_jobs (id, post_id, kind, tier, raw_file_url, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
		job.ID, job.PostID, job.Kind, job.Tier, job.RawFileURL, model.JobStatusQueued, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get loads one job row by id.
func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM media_jobs WHERE id = $1`, id)

	var j model.Job
	err := row.Scan(&j.ID, &j.PostID, &j.Kind, &j.Tier, &j.RawFileURL, &j.Status, &j.Progress,
		&j.OutputURL, &j.ThumbnailURL, &j.Duration, &j.Width, &j.Height, &j.Error,
		&j.CreatedAt, &j.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return &j, nil
}

// Update applies the set fields of u to the job row.
func (s *JobStore) Update(ctx context.Context, id string, u JobUpdate) error {
	set, args := buildJobUpdate(u)
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE media_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildJobUpdate turns the set fields into positional SET clauses. Split out
// so the SQL assembly is testable without a database.
func buildJobUpdate(u JobUpdate) ([]string, []interface{}) {
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
	if u.OutputURL != nil {
		add("output_url", *u.OutputURL)
	}
	if u.ThumbnailURL != nil {
		add("thumbnail_url", *u.ThumbnailURL)
	}
	if u.Duration != nil {
		add("duration", *u.Duration)
	}
	if u.Width != nil {
		add("width", *u.Width)
	}
	if u.Height != nil {
		add("height", *u.Height)
	}
	if u.Error != nil {
		add("error", *u.Error)
	}
	if u.ProcessedAt != nil {
		add("processed_at", *u.ProcessedAt)
	}
	return set, args
}
