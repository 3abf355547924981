package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

func (s *Store) Deal(ctx context.Context, id uint, lock bool) (models.Deal, error) {
	var deal models.Deal
	if err := locked(s.db.WithContext(ctx), lock).First(&deal, id).Error; err != nil {
		return models.Deal{}, notFound(err, "deal", id)
	}
	return deal, nil
}

func (s *Store) DealsOfLead(ctx context.Context, leadID uint) ([]models.Deal, error) {
	var out []models.Deal
	err := s.db.WithContext(ctx).Where("lead_id = ?", leadID).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) CreateDeal(ctx context.Context, deal *models.Deal) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(deal).Error
}

func (s *Store) SaveDeal(ctx context.Context, deal *models.Deal) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(deal).Error
}

func (s *Store) ListDeals(ctx context.Context, f access.Filter) ([]models.Deal, error) {
	var out []models.Deal
	err := s.db.WithContext(ctx).
		Model(&models.Deal{}).
		Scopes(f.Deals()).
		Order("deals.created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) SyncDealIdentity(ctx context.Context, leadID uint, id models.ClientIdentity) (int64, error) {
	res := syncIdentity(s.db.WithContext(ctx), leadID, id)
	return res.RowsAffected, res.Error
}

func syncIdentity(db *gorm.DB, leadID uint, id models.ClientIdentity) *gorm.DB {
	return db.Model(&models.Deal{}).
		Where("lead_id = ?", leadID).
		Updates(map[string]any{
			"client_first_name": id.FirstName,
			"client_last_name":  id.LastName,
			"client_phone":      id.Phone,
			"client_email":      id.Email,
		})
}
