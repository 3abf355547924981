package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"leadbridge/internal/utils"
)

type CommunicationStatus string

const (
	StatusNew               CommunicationStatus = "NEW"
	StatusMeeting           CommunicationStatus = "MEETING"
	StatusSearchingProperty CommunicationStatus = "SEARCHING_PROPERTY"
	StatusWaitingForClient  CommunicationStatus = "WAITING_FOR_CLIENT"
	StatusFailed            CommunicationStatus = "FAILED"
	StatusDealCreated       CommunicationStatus = "DEAL_CREATED"
	StatusCommissionPaid    CommunicationStatus = "COMMISSION_PAID"
)

func (s CommunicationStatus) Valid() bool {
	switch s {
	case StatusNew, StatusMeeting, StatusSearchingProperty, StatusWaitingForClient,
		StatusFailed, StatusDealCreated, StatusCommissionPaid:
		return true
	}
	return false
}

// Closed statuses are not reopened by a due callback.
func (s CommunicationStatus) Closed() bool {
	return s == StatusFailed || s == StatusDealCreated || s == StatusCommissionPaid
}

type Lead struct {
	ID              uint   `gorm:"primaryKey"`
	ClientFirstName string `gorm:"size:150"`
	ClientLastName  string `gorm:"size:150;not null"`
	ClientPhone     string `gorm:"size:32"`
	ClientEmail     string `gorm:"size:254"`
	Description     string `gorm:"type:text"`

	ReferrerID uint  `gorm:"not null;index"`
	Referrer   User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	AdvisorID  *uint `gorm:"index"`
	Advisor    *User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	CommunicationStatus CommunicationStatus `gorm:"size:32;not null;default:'NEW';index"`

	MeetingScheduled bool `gorm:"not null;default:false"`
	MeetingAt        *time.Time
	MeetingNote      string `gorm:"type:text"`
	MeetingDone      bool   `gorm:"not null;default:false"`
	MeetingDoneAt    *time.Time

	CallbackScheduledDate *time.Time `gorm:"type:date;index"`
	CallbackNote          string     `gorm:"type:text"`

	IsPersonalContact bool `gorm:"not null;default:false;index"`

	Deals []Deal `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l Lead) ClientName() string {
	return strings.TrimSpace(l.ClientFirstName + " " + l.ClientLastName)
}

func (l Lead) Identity() ClientIdentity {
	return ClientIdentity{
		FirstName: l.ClientFirstName,
		LastName:  l.ClientLastName,
		Phone:     l.ClientPhone,
		Email:     l.ClientEmail,
	}
}

func (l *Lead) ApplyIdentity(id ClientIdentity) {
	l.ClientFirstName = id.FirstName
	l.ClientLastName = id.LastName
	l.ClientPhone = id.Phone
	l.ClientEmail = id.Email
}

func (l Lead) AdvisedBy(userID uint) bool {
	return l.AdvisorID != nil && *l.AdvisorID == userID
}

// ClientIdentity is the set of client fields a lead shares with its deals.
type ClientIdentity struct {
	FirstName string `json:"client_first_name"`
	LastName  string `json:"client_last_name"`
	Phone     string `json:"client_phone"`
	Email     string `json:"client_email"`
}

// Normalize trims every field and canonicalizes the phone number.
func (id ClientIdentity) Normalize() ClientIdentity {
	return ClientIdentity{
		FirstName: strings.TrimSpace(id.FirstName),
		LastName:  strings.TrimSpace(id.LastName),
		Phone:     utils.NormalizePhone(id.Phone),
		Email:     strings.TrimSpace(id.Email),
	}
}

func (id ClientIdentity) Validate() error {
	if id.LastName == "" {
		return fmt.Errorf("%w: client last name is required", ErrValidation)
	}
	if id.Email != "" {
		if _, err := mail.ParseAddress(id.Email); err != nil {
			return fmt.Errorf("%w: client email %q is malformed", ErrValidation, id.Email)
		}
	}
	return nil
}

type LeadNote struct {
	ID        uint   `gorm:"primaryKey"`
	LeadID    uint   `gorm:"not null;index"`
	Lead      Lead   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	AuthorID  *uint  `gorm:"index"`
	Author    *User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Text      string `gorm:"type:text;not null"`
	IsPrivate bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (n LeadNote) AuthoredBy(userID uint) bool {
	return n.AuthorID != nil && *n.AuthorID == userID
}
