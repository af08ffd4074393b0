package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Track struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	SessionID *string
	Session   *Session `gorm:"foreignKey:SessionID"`

	Part      string `gorm:"index;not null;default:''"`
	LockState string `gorm:"not null;default:'unlocked'"`
	Prompt    string `gorm:"not null;default:''"`

	Duration   float32 `gorm:"not null;default:0"`
	SampleRate int     `gorm:"not null;default:0"`
	Audio      string  `gorm:"not null;default:''"`
	Plot       string  `gorm:"not null;default:''"`

	Tempo      float32 `gorm:"not null;default:0"`
	Key        string  `gorm:"not null;default:''"`
	Similarity float32 `gorm:"not null;default:0"`
	Fallback   bool    `gorm:"not null;default:false"`

	// Current marks the active track per session and part; replaced
	// tracks stay as history.
	Current bool `gorm:"index"`
}

func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	var v Track

	q := s.db.Preload("Session")

	if err := q.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get track %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetTrack(ctx context.Context, v *Track) error {
	if err := s.db.Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set track %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	if err := s.db.Delete(&Track{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete track %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListTracks(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Track, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Track{}

	q := s.db.Preload("Session")
	q = q.Joins("INNER JOIN sessions ON sessions.id = tracks.session_id")

	q = q.Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	// Order by
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list tracks: %w", err)
	}
	return vs, nil
}

// CurrentTracks returns the active track per part for a session.
func (s *Store) CurrentTracks(ctx context.Context, sessionID string) ([]*Track, error) {
	vs := []*Track{}
	q := s.db.Where("session_id = ?", sessionID).Where("current = ?", true)
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to get current tracks for %s: %w", sessionID, err)
	}
	return vs, nil
}
