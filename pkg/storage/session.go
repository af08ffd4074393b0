package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Session struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name    string `gorm:"index;not null;default:''"`
	Request string `gorm:"not null;default:''"`

	// Record is the schema versioned session snapshot as JSON.
	Record string `gorm:"not null;default:''"`

	Exported bool `gorm:"index"`
	Archived bool `gorm:"index"`
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var v Session
	if err := s.db.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get session %s: %w", id, err)
	}
	return &v, nil
}

// GetSessionByName returns the newest session with the given name.
func (s *Store) GetSessionByName(ctx context.Context, name string) (*Session, error) {
	var v Session
	q := s.db.Where("name = ?", name).Order("created_at DESC")
	if err := q.First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get session %s: %w", name, err)
	}
	return &v, nil
}

func (s *Store) SetSession(ctx context.Context, v *Session) error {
	if err := s.db.Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set session %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.Delete(&Session{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Session, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Session{}

	q := s.db.Offset(offset).Limit(size)
	q = q.Where("archived = ?", false)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	// Order by
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list sessions: %w", err)
	}
	return vs, nil
}
