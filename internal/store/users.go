package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"leadbridge/internal/models"
)

func (s *Store) User(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return models.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&u).Error; err != nil {
		return models.User{}, notFound(err, "user", email)
	}
	return u, nil
}

func (s *Store) ReferrersOfAdvisor(ctx context.Context, advisorID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Table("referrer_profile_advisors AS rpa").
		Joins("JOIN referrer_profiles rp ON rp.id = rpa.referrer_profile_id").
		Where("rpa.user_id = ?", advisorID).
		Pluck("rp.user_id", &ids).Error
	return ids, err
}

func (s *Store) ReferrersManagedBy(ctx context.Context, managerID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.ReferrerProfile{}).
		Where("manager_id = ?", managerID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) ReferrersUnderOffice(ctx context.Context, ownerID uint) ([]uint, error) {
	var ids []uint
	err := underOffice(s.db.WithContext(ctx), ownerID).Pluck("rp.user_id", &ids).Error
	return ids, err
}

// underOffice selects referrers managed by the owner directly or by a
// manager whose office the owner holds.
func underOffice(db *gorm.DB, ownerID uint) *gorm.DB {
	return db.Table("referrer_profiles AS rp").
		Joins("LEFT JOIN manager_profiles mp ON mp.user_id = rp.manager_id").
		Joins("LEFT JOIN offices o ON o.id = mp.office_id").
		Where("rp.manager_id = ? OR o.owner_id = ?", ownerID, ownerID)
}

func (s *Store) AdvisorsOfReferrer(ctx context.Context, referrerID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Table("referrer_profile_advisors AS rpa").
		Joins("JOIN referrer_profiles rp ON rp.id = rpa.referrer_profile_id").
		Where("rp.user_id = ?", referrerID).
		Pluck("rpa.user_id", &ids).Error
	return ids, err
}

func (s *Store) SetLastChosenAdvisor(ctx context.Context, referrerID, advisorID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.ReferrerProfile{}).
		Where("user_id = ?", referrerID).
		Update("last_chosen_advisor_id", advisorID).Error
}

// Hierarchy resolves the manager and office owner above a referrer. A
// profile manager with the OFFICE role is the office owner itself.
func (s *Store) Hierarchy(ctx context.Context, referrerID uint) (models.Hierarchy, error) {
	h := models.Hierarchy{ReferrerID: referrerID}

	var profile models.ReferrerProfile
	err := s.db.WithContext(ctx).Preload("Manager").Where("user_id = ?", referrerID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return h, nil
	}
	if err != nil {
		return h, fmt.Errorf("load referrer profile %d: %w", referrerID, err)
	}
	if profile.Manager == nil {
		return h, nil
	}

	managerID := profile.Manager.ID
	if profile.Manager.Role == models.RoleOffice {
		h.OfficeOwnerID = &managerID
		return h, nil
	}
	h.ManagerID = &managerID

	var mp models.ManagerProfile
	err = s.db.WithContext(ctx).Preload("Office").Where("user_id = ?", managerID).First(&mp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return h, nil
	}
	if err != nil {
		return h, fmt.Errorf("load manager profile %d: %w", managerID, err)
	}
	if mp.Office != nil && mp.Office.OwnerID != nil {
		owner := *mp.Office.OwnerID
		h.OfficeOwnerID = &owner
	}
	return h, nil
}
