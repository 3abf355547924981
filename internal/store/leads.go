package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

var closedStatuses = []models.CommunicationStatus{
	models.StatusFailed,
	models.StatusDealCreated,
	models.StatusCommissionPaid,
}

func (s *Store) Lead(ctx context.Context, id uint, lock bool) (models.Lead, error) {
	var lead models.Lead
	if err := locked(s.db.WithContext(ctx), lock).First(&lead, id).Error; err != nil {
		return models.Lead{}, notFound(err, "lead", id)
	}
	return lead, nil
}

func (s *Store) CreateLead(ctx context.Context, lead *models.Lead) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(lead).Error
}

func (s *Store) SaveLead(ctx context.Context, lead *models.Lead) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(lead).Error
}

func (s *Store) ListLeads(ctx context.Context, f access.Filter) ([]models.Lead, error) {
	var out []models.Lead
	err := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Scopes(f.Leads()).
		Order("leads.created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) DueCallbacks(ctx context.Context, asOf time.Time) ([]uint, error) {
	var ids []uint
	err := dueCallbacks(s.db.WithContext(ctx), asOf).Pluck("id", &ids).Error
	return ids, err
}

func dueCallbacks(db *gorm.DB, asOf time.Time) *gorm.DB {
	return db.Model(&models.Lead{}).
		Where("callback_scheduled_date IS NOT NULL AND callback_scheduled_date <= ?", asOf.Format("2006-01-02")).
		Where("communication_status NOT IN ?", closedStatuses).
		Order("id")
}

func (s *Store) CreateNote(ctx context.Context, note *models.LeadNote) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(note).Error
}

func (s *Store) NotesOfLead(ctx context.Context, leadID uint) ([]models.LeadNote, error) {
	var out []models.LeadNote
	err := s.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at, id").
		Find(&out).Error
	return out, err
}
