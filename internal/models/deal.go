package models

import (
	"time"

	"github.com/shopspring/decimal"

	"leadbridge/internal/commission"
)

type Bank string

const (
	BankCS        Bank = "CS"
	BankCSOB      Bank = "CSOB"
	BankKB        Bank = "KB"
	BankUCB       Bank = "UCB"
	BankRB        Bank = "RB"
	BankMoneta    Bank = "MONETA"
	BankMBank     Bank = "MBANK"
	BankOberbank  Bank = "OBERBANK"
	BankFio       Bank = "FIO"
	BankAirBank   Bank = "AIRBANK"
	BankHypotecni Bank = "HYPOTECNI"
)

func (b Bank) Valid() bool {
	switch b {
	case BankCS, BankCSOB, BankKB, BankUCB, BankRB, BankMoneta,
		BankMBank, BankOberbank, BankFio, BankAirBank, BankHypotecni:
		return true
	}
	return false
}

type PropertyType string

const (
	PropertyOwn   PropertyType = "OWN"
	PropertyOther PropertyType = "OTHER"
)

func (p PropertyType) Valid() bool {
	return p == PropertyOwn || p == PropertyOther
}

type DealStatus string

const (
	DealRequestInBank       DealStatus = "REQUEST_IN_BANK"
	DealWaitingForAppraisal DealStatus = "WAITING_FOR_APPRAISAL"
	DealPrepApproval        DealStatus = "PREP_APPROVAL"
	DealApproval            DealStatus = "APPROVAL"
	DealSignPlanning        DealStatus = "SIGN_PLANNING"
	DealSigned              DealStatus = "SIGNED"
	DealSignedNoProperty    DealStatus = "SIGNED_NO_PROPERTY"
	DealDrawn               DealStatus = "DRAWN"
	DealFailed              DealStatus = "FAILED"
	DealCancelled           DealStatus = "CANCELLED"
)

var dealStage = map[DealStatus]int{
	DealRequestInBank:       1,
	DealWaitingForAppraisal: 2,
	DealPrepApproval:        3,
	DealApproval:            4,
	DealSignPlanning:        5,
	DealSigned:              6,
	DealSignedNoProperty:    6,
	DealDrawn:               7,
	DealFailed:              8,
	DealCancelled:           8,
}

func (s DealStatus) Valid() bool {
	_, ok := dealStage[s]
	return ok
}

// Stage orders the pipeline; SIGNED and SIGNED_NO_PROPERTY share a stage and
// both failure outcomes rank after DRAWN.
func (s DealStatus) Stage() int {
	return dealStage[s]
}

// Terminal statuses are never left.
func (s DealStatus) Terminal() bool {
	return s == DealDrawn || s == DealFailed || s == DealCancelled
}

// Completed is the single successful outcome.
func (s DealStatus) Completed() bool {
	return s == DealDrawn
}

// Leg names one party of the commission split.
type Leg string

const (
	LegReferrer Leg = "referrer"
	LegManager  Leg = "manager"
	LegOffice   Leg = "office"
)

var Legs = []Leg{LegReferrer, LegManager, LegOffice}

func (l Leg) Valid() bool {
	return l == LegReferrer || l == LegManager || l == LegOffice
}

type Deal struct {
	ID     uint `gorm:"primaryKey"`
	LeadID uint `gorm:"not null;index"`

	ClientFirstName string `gorm:"size:150"`
	ClientLastName  string `gorm:"size:150;not null"`
	ClientPhone     string `gorm:"size:32"`
	ClientEmail     string `gorm:"size:254"`

	LoanAmount      decimal.Decimal  `gorm:"type:numeric(14,2);not null"`
	Bank            Bank             `gorm:"size:32;not null"`
	CommissionModel commission.Model `gorm:"size:32;not null"`
	PropertyType    PropertyType     `gorm:"size:16;not null;default:'OWN'"`
	Status          DealStatus       `gorm:"size:32;not null;default:'REQUEST_IN_BANK';index"`
	IsPersonalDeal  bool             `gorm:"not null;default:false;index"`

	// Cached calculator output, recomputed whenever an input changes.
	CommissionGross    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CommissionReferrer decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CommissionManager  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CommissionOffice   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	AdvisorResidual    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CommissionReady    bool            `gorm:"not null;default:false"`

	PaidReferrer   bool `gorm:"not null;default:false"`
	PaidManager    bool `gorm:"not null;default:false"`
	PaidOffice     bool `gorm:"not null;default:false"`
	ReferrerPaidAt *time.Time
	ManagerPaidAt  *time.Time
	OfficePaidAt   *time.Time

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d Deal) Identity() ClientIdentity {
	return ClientIdentity{
		FirstName: d.ClientFirstName,
		LastName:  d.ClientLastName,
		Phone:     d.ClientPhone,
		Email:     d.ClientEmail,
	}
}

func (d *Deal) ApplyIdentity(id ClientIdentity) {
	d.ClientFirstName = id.FirstName
	d.ClientLastName = id.LastName
	d.ClientPhone = id.Phone
	d.ClientEmail = id.Email
}

func (d *Deal) ApplySplit(s commission.Split) {
	d.CommissionGross = s.Gross
	d.CommissionReferrer = s.Referrer
	d.CommissionManager = s.Manager
	d.CommissionOffice = s.Office
	d.AdvisorResidual = s.AdvisorResidual
}

func (d Deal) LegAmount(leg Leg) decimal.Decimal {
	switch leg {
	case LegReferrer:
		return d.CommissionReferrer
	case LegManager:
		return d.CommissionManager
	case LegOffice:
		return d.CommissionOffice
	}
	return decimal.Zero
}

func (d Deal) LegPaid(leg Leg) bool {
	switch leg {
	case LegReferrer:
		return d.PaidReferrer
	case LegManager:
		return d.PaidManager
	case LegOffice:
		return d.PaidOffice
	}
	return false
}

// MarkLegPaid flips the flag and stamps the time. It returns false when the
// leg was already paid.
func (d *Deal) MarkLegPaid(leg Leg, at time.Time) bool {
	if d.LegPaid(leg) {
		return false
	}
	switch leg {
	case LegReferrer:
		d.PaidReferrer, d.ReferrerPaidAt = true, &at
	case LegManager:
		d.PaidManager, d.ManagerPaidAt = true, &at
	case LegOffice:
		d.PaidOffice, d.OfficePaidAt = true, &at
	default:
		return false
	}
	return true
}

// PayableLegs are the legs carrying a non-zero amount.
func (d Deal) PayableLegs() []Leg {
	var legs []Leg
	for _, leg := range Legs {
		if d.LegAmount(leg).IsPositive() {
			legs = append(legs, leg)
		}
	}
	return legs
}

func (d Deal) AnyLegPaid() bool {
	return d.PaidReferrer || d.PaidManager || d.PaidOffice
}

// FullyPaid reports that every payable leg is paid. A deal without payable
// legs is never fully paid.
func (d Deal) FullyPaid() bool {
	legs := d.PayableLegs()
	if len(legs) == 0 {
		return false
	}
	for _, leg := range legs {
		if !d.LegPaid(leg) {
			return false
		}
	}
	return true
}
