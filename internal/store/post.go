package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostStore updates the media columns of the parent content row after a job
// completes. The pipeline never touches any other post fields.
type PostStore struct {
	pool *pgxpool.Pool
}

// UpdateMedia propagates derived media metadata onto a post. Width and
// height stay nil for audio.
func (s *PostStore) UpdateMedia(ctx context.Context, postID string, duration float64, width, height *int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET media_duration = $2,
		    media_width = COALESCE($3, media_width),
		    media_height = COALESCE($4, media_height)
		WHERE id = $1`,
		postID, duration, width, height,
	)
	if err != nil {
		return fmt.Errorf("failed to update post %s media: %w", postID, err)
	}
	return nil
}
