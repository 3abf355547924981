package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"leadbridge/internal/models"
)

func (s *Store) AppendEvent(ctx context.Context, ev *models.LeadEvent) error {
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *Store) EventsOfLead(ctx context.Context, leadID uint) ([]models.LeadEvent, error) {
	var out []models.LeadEvent
	err := s.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at, id").
		Find(&out).Error
	return out, err
}

// PendingEvents returns the oldest undispatched events.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]models.LeadEvent, error) {
	var out []models.LeadEvent
	err := pendingEvents(s.db.WithContext(ctx), limit).Find(&out).Error
	return out, err
}

func pendingEvents(db *gorm.DB, limit int) *gorm.DB {
	return db.Model(&models.LeadEvent{}).
		Where("dispatched_at IS NULL").
		Order("created_at, id").
		Limit(limit)
}

func (s *Store) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.LeadEvent{}).
		Where("id = ?", id).
		Update("dispatched_at", at).Error
}

// MarkFailed counts a failed delivery attempt. A parked event is closed with
// its last error and never retried.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string, park bool, at time.Time) error {
	return markFailed(s.db.WithContext(ctx), id, reason, park, at).Error
}

func markFailed(db *gorm.DB, id uuid.UUID, reason string, park bool, at time.Time) *gorm.DB {
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
	}
	if park {
		updates["dispatched_at"] = at
	}
	return db.Model(&models.LeadEvent{}).Where("id = ?", id).Updates(updates)
}
