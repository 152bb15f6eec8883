package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrVideoNotFound = errors.New("video not found")

// Video lifecycle states. A video starts as uploaded, moves to transcoding
// when the job starts, and ends ready or failed.
const (
	StatusUploaded    = "uploaded"
	StatusTranscoding = "transcoding"
	StatusReady       = "ready"
	StatusFailed      = "failed"
)

// Categories is the controlled vocabulary for Video.Category.
var Categories = []string{"Drama", "Romance", "Action", "Documentary", "Tutorial", "Vlog"}

// IsValidCategory reports whether c is part of the category vocabulary.
func IsValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Video is a single uploaded media record. VideoPath and ThumbnailPath are
// filesystem paths under the media root; either may be empty.
type Video struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	VideoPath     string    `json:"-"`
	ThumbnailPath string    `json:"-"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// VideoStore persists Video records in postgres.
type VideoStore struct {
	pool *pgxpool.Pool
}

func NewVideoStore(pool *pgxpool.Pool) *VideoStore {
	return &VideoStore{pool: pool}
}

const videoColumns = `id, title, description, category,
	COALESCE(video_path, ''), COALESCE(thumbnail_path, ''), status, created_at`

// CreateTx inserts a new video inside the caller's transaction so that the
// record and its transcode job commit or roll back together.
func (s *VideoStore) CreateTx(ctx context.Context, tx pgx.Tx, v *Video) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = StatusUploaded
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO videos (id, title, description, category, video_path, thumbnail_path, status)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		 RETURNING created_at`,
		v.ID, v.Title, v.Description, v.Category, v.VideoPath, v.ThumbnailPath, v.Status,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

// GetByID fetches a single video, returning ErrVideoNotFound if absent.
func (s *VideoStore) GetByID(ctx context.Context, id uuid.UUID) (*Video, error) {
	var v Video
	err := s.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id,
	).Scan(&v.ID, &v.Title, &v.Description, &v.Category, &v.VideoPath, &v.ThumbnailPath, &v.Status, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video: %w", err)
	}
	return &v, nil
}

// List returns all videos, newest first.
func (s *VideoStore) List(ctx context.Context) ([]Video, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.Title, &v.Description, &v.Category, &v.VideoPath, &v.ThumbnailPath, &v.Status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}
	return videos, nil
}

// DeleteTx removes a video inside the caller's transaction and returns the
// deleted record so the caller can enqueue file cleanup for its paths.
// Returns ErrVideoNotFound if no such video exists.
func (s *VideoStore) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Video, error) {
	var v Video
	err := tx.QueryRow(ctx,
		`DELETE FROM videos WHERE id = $1
		 RETURNING `+videoColumns, id,
	).Scan(&v.ID, &v.Title, &v.Description, &v.Category, &v.VideoPath, &v.ThumbnailPath, &v.Status, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete video: %w", err)
	}
	return &v, nil
}

// SetStatusBySource updates the lifecycle status of the video owning the
// given source path. Transcode jobs carry only the source path, so this is
// how the worker reports progress. Updating a row that no longer exists is
// not an error; the video may have been deleted while the job was queued.
func (s *VideoStore) SetStatusBySource(ctx context.Context, sourcePath, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE videos SET status = $2 WHERE video_path = $1`, sourcePath, status)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	return nil
}
