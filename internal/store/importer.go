package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadbridge/internal/importer"
	"leadbridge/internal/models"
)

func (s *Store) ImportTransaction(ctx context.Context, fn func(w importer.Writer) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) OfficeByName(ctx context.Context, name string) (models.Office, error) {
	var o models.Office
	if err := s.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&o).Error; err != nil {
		return models.Office{}, notFound(err, "office", name)
	}
	return o, nil
}

// UpsertUser keeps the flags an import does not carry on existing users.
func (s *Store) UpsertUser(ctx context.Context, u *models.User) (bool, error) {
	existing, err := s.UserByEmail(ctx, u.Email)
	if errors.Is(err, models.ErrNotFound) {
		return true, s.db.WithContext(ctx).Create(u).Error
	}
	if err != nil {
		return false, err
	}

	u.ID = existing.ID
	u.TelegramChatID = existing.TelegramChatID
	u.IsSuperuser = existing.IsSuperuser
	u.HasAdminAccess = existing.HasAdminAccess
	u.IsActive = existing.IsActive
	u.CreatedAt = existing.CreatedAt
	return false, s.db.WithContext(ctx).Save(u).Error
}

func (s *Store) UpsertOffice(ctx context.Context, name string, ownerID uint) (models.Office, error) {
	office, err := s.OfficeByName(ctx, name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		office = models.Office{Name: name, OwnerID: &ownerID}
		if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&office).Error; err != nil {
			return models.Office{}, err
		}
		return office, nil
	case err != nil:
		return models.Office{}, err
	}
	if err := s.db.WithContext(ctx).Model(&office).Update("owner_id", ownerID).Error; err != nil {
		return models.Office{}, err
	}
	office.OwnerID = &ownerID
	return office, nil
}

func (s *Store) SetManagerOffice(ctx context.Context, managerID uint, officeID *uint) error {
	var mp models.ManagerProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", managerID).First(&mp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mp = models.ManagerProfile{UserID: managerID, OfficeID: officeID}
		return s.db.WithContext(ctx).Omit(clause.Associations).Create(&mp).Error
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&mp).Update("office_id", officeID).Error
}

func (s *Store) SetReferrerManager(ctx context.Context, referrerID uint, managerID *uint) error {
	var rp models.ReferrerProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", referrerID).First(&rp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rp = models.ReferrerProfile{UserID: referrerID, ManagerID: managerID}
		return s.db.WithContext(ctx).Omit(clause.Associations).Create(&rp).Error
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&rp).Update("manager_id", managerID).Error
}
