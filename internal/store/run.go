package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// RunStatus is the terminal state of a generation run.
type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// Run is a local history row written when a generation run terminates.
type Run struct {
	ID        string    `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	InputText       string `gorm:"not null;default:''"`
	Genre           string `gorm:"not null;default:''"`
	Lyrics          string `gorm:"not null;default:''"`
	InstrumentalURL string `gorm:"not null;default:''"`
	VocalsURL       string `gorm:"not null;default:''"`
	MixURL          string `gorm:"not null;default:''"`
	DurationSeconds int    `gorm:"not null;default:0"`

	StartedAt  time.Time
	FinishedAt time.Time

	Status     RunStatus `gorm:"index"`
	FailedStep string    `gorm:"not null;default:''"`
	Error      string    `gorm:"not null;default:''"`
}

// AddRun inserts v, assigning an id if it has none.
func (s *Store) AddRun(ctx context.Context, v *Run) error {
	if v.ID == "" {
		v.ID = ulid.Make().String()
	}
	if v.Status == "" {
		v.Status = RunComplete
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("store: failed to add run %s: %w", v.ID, err)
	}
	return nil
}

// Elapsed is how long the run took, or zero when the timestamps are missing.
func (v *Run) Elapsed() time.Duration {
	if v.StartedAt.IsZero() || v.FinishedAt.Before(v.StartedAt) {
		return 0
	}
	return v.FinishedAt.Sub(v.StartedAt)
}

// GetRun returns the run with id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var v Run
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to get run %s: %w", id, err)
	}
	return &v, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	vs := []*Run{}
	// ULIDs sort by creation time.
	q := s.db.WithContext(ctx).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("store: failed to list runs: %w", err)
	}
	return vs, nil
}
