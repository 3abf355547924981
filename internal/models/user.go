package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleAdvisor         Role = "ADVISOR"
	RoleReferrer        Role = "REFERRER"
	RoleReferrerManager Role = "REFERRER_MANAGER"
	RoleOffice          Role = "OFFICE"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAdvisor, RoleReferrer, RoleReferrerManager, RoleOffice:
		return true
	}
	return false
}

type User struct {
	ID             uint   `gorm:"primaryKey"`
	FirstName      string `gorm:"size:150"`
	LastName       string `gorm:"size:150"`
	Email          string `gorm:"size:254;index"`
	Phone          string `gorm:"size:32"`
	TelegramChatID int64  `gorm:"default:0"`
	Role           Role   `gorm:"size:32;not null;default:'REFERRER';index"`
	IsSuperuser    bool   `gorm:"not null;default:false"`
	HasAdminAccess bool   `gorm:"not null;default:false"`
	IsActive       bool   `gorm:"not null;default:true"`

	// Rate per million of loan volume and its distribution. The three
	// percentages need not add up to 100; the remainder stays with the advisor.
	CommissionTotalPerMillion decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	CommissionReferrerPct     decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	CommissionManagerPct      decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	CommissionOfficePct       decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsAdmin reports full, unscoped access.
func (u User) IsAdmin() bool {
	return u.IsSuperuser || u.Role == RoleAdmin
}
