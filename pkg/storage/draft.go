package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// Draft is a reusable request template for batch generation. Drafts
// with a higher weight are picked more often.
type Draft struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Type   string `gorm:"index;not null;default:''"`
	Prompt string `gorm:"not null;default:''"`
	Weight int    `gorm:"not null;default:1"`

	Disabled bool `gorm:"index"`
}

func (s *Store) GetDraft(ctx context.Context, id string) (*Draft, error) {
	var v Draft
	if err := s.db.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get draft %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetDraft(ctx context.Context, v *Draft) error {
	if err := s.db.Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set draft %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	if err := s.db.Delete(&Draft{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete draft %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListDrafts(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Draft, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Draft{}

	q := s.db.Offset(offset).Limit(size)
	q = q.Where("disabled = ?", false)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	// Order by
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list drafts: %w", err)
	}
	return vs, nil
}

// NextDraft picks a weighted random draft among the enabled ones.
// Drafts with a higher weight are picked more often.
func (s *Store) NextDraft(ctx context.Context, filter ...Filter) (*Draft, error) {
	vs := []*Draft{}
	q := s.db.Where("disabled = ?", false)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to get next draft: %w", err)
	}
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	var total int
	for _, v := range vs {
		w := v.Weight
		if w < 1 {
			w = 1
		}
		total += w
	}
	n := rand.Intn(total)
	for _, v := range vs {
		w := v.Weight
		if w < 1 {
			w = 1
		}
		n -= w
		if n < 0 {
			return v, nil
		}
	}
	return vs[len(vs)-1], nil
}
