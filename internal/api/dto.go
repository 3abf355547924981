package api

import (
	"time"

	"github.com/shopspring/decimal"

	"leadbridge/internal/commission"
	"leadbridge/internal/leads"
	"leadbridge/internal/models"
)

type identityRequest struct {
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Phone     string `json:"phone" validate:"max=32"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
}

func (r identityRequest) identity() models.ClientIdentity {
	return models.ClientIdentity{FirstName: r.FirstName, LastName: r.LastName, Phone: r.Phone, Email: r.Email}
}

type createLeadRequest struct {
	identityRequest
	Description string `json:"description"`
	ReferrerID  uint   `json:"referrer_id"`
	AdvisorID   *uint  `json:"advisor_id"`
	Personal    bool   `json:"personal"`
}

type noteRequest struct {
	Text    string `json:"text" validate:"required,max=5000"`
	Private bool   `json:"private"`
}

type meetingRequest struct {
	At   time.Time `json:"at" validate:"required"`
	Note string    `json:"note"`
}

type completeMeetingRequest struct {
	Next string `json:"next" validate:"required"`
	Note string `json:"note"`
}

type cancelMeetingRequest struct {
	Reason string `json:"reason"`
}

type callbackRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Note string `json:"note"`
}

type createDealRequest struct {
	LoanAmount      decimal.Decimal `json:"loan_amount"`
	Bank            string          `json:"bank" validate:"required"`
	PropertyType    string          `json:"property_type"`
	CommissionModel string          `json:"commission_model"`
	Personal        bool            `json:"personal"`
}

func (r createDealRequest) newDeal() leads.NewDeal {
	return leads.NewDeal{
		LoanAmount:      r.LoanAmount,
		Bank:            models.Bank(r.Bank),
		PropertyType:    models.PropertyType(r.PropertyType),
		CommissionModel: commission.Model(r.CommissionModel),
		Personal:        r.Personal,
	}
}

type dealPatchRequest struct {
	Identity        *identityRequest `json:"identity"`
	LoanAmount      *decimal.Decimal `json:"loan_amount"`
	Bank            *string          `json:"bank"`
	CommissionModel *string          `json:"commission_model"`
	PropertyType    *string          `json:"property_type"`
	Status          *string          `json:"status"`
	IsPersonalDeal  *bool            `json:"is_personal_deal"`
}

func (r dealPatchRequest) patch() leads.DealPatch {
	p := leads.DealPatch{LoanAmount: r.LoanAmount, IsPersonalDeal: r.IsPersonalDeal}
	if r.Identity != nil {
		id := r.Identity.identity()
		p.Identity = &id
	}
	if r.Bank != nil {
		b := models.Bank(*r.Bank)
		p.Bank = &b
	}
	if r.CommissionModel != nil {
		m := commission.Model(*r.CommissionModel)
		p.CommissionModel = &m
	}
	if r.PropertyType != nil {
		pt := models.PropertyType(*r.PropertyType)
		p.PropertyType = &pt
	}
	if r.Status != nil {
		st := models.DealStatus(*r.Status)
		p.Status = &st
	}
	return p
}

type leadDTO struct {
	ID                    uint       `json:"id"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Phone                 string     `json:"phone"`
	Email                 string     `json:"email"`
	Description           string     `json:"description"`
	ReferrerID            uint       `json:"referrer_id"`
	AdvisorID             *uint      `json:"advisor_id"`
	Status                string     `json:"communication_status"`
	MeetingScheduled      bool       `json:"meeting_scheduled"`
	MeetingAt             *time.Time `json:"meeting_at"`
	MeetingNote           string     `json:"meeting_note"`
	MeetingDone           bool       `json:"meeting_done"`
	MeetingDoneAt         *time.Time `json:"meeting_done_at"`
	CallbackScheduledDate *string    `json:"callback_scheduled_date"`
	CallbackNote          string     `json:"callback_note"`
	IsPersonalContact     bool       `json:"is_personal_contact"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func toLeadDTO(l models.Lead) leadDTO {
	dto := leadDTO{
		ID:                l.ID,
		FirstName:         l.ClientFirstName,
		LastName:          l.ClientLastName,
		Phone:             l.ClientPhone,
		Email:             l.ClientEmail,
		Description:       l.Description,
		ReferrerID:        l.ReferrerID,
		AdvisorID:         l.AdvisorID,
		Status:            string(l.CommunicationStatus),
		MeetingScheduled:  l.MeetingScheduled,
		MeetingAt:         l.MeetingAt,
		MeetingNote:       l.MeetingNote,
		MeetingDone:       l.MeetingDone,
		MeetingDoneAt:     l.MeetingDoneAt,
		CallbackNote:      l.CallbackNote,
		IsPersonalContact: l.IsPersonalContact,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
	if l.CallbackScheduledDate != nil {
		d := l.CallbackScheduledDate.Format(time.DateOnly)
		dto.CallbackScheduledDate = &d
	}
	return dto
}

type legDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Paid   bool            `json:"paid"`
	PaidAt *time.Time      `json:"paid_at"`
}

type dealDTO struct {
	ID              uint              `json:"id"`
	LeadID          uint              `json:"lead_id"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	Phone           string            `json:"phone"`
	Email           string            `json:"email"`
	LoanAmount      decimal.Decimal   `json:"loan_amount"`
	Bank            string            `json:"bank"`
	CommissionModel string            `json:"commission_model"`
	PropertyType    string            `json:"property_type"`
	Status          string            `json:"status"`
	IsPersonalDeal  bool              `json:"is_personal_deal"`
	Gross           decimal.Decimal   `json:"commission_gross"`
	AdvisorResidual decimal.Decimal   `json:"advisor_residual"`
	CommissionReady bool              `json:"commission_ready"`
	Legs            map[string]legDTO `json:"legs"`
	FullyPaid       bool              `json:"fully_paid"`
	CompletedAt     *time.Time        `json:"completed_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func toDealDTO(d models.Deal) dealDTO {
	paidAt := map[models.Leg]*time.Time{
		models.LegReferrer: d.ReferrerPaidAt,
		models.LegManager:  d.ManagerPaidAt,
		models.LegOffice:   d.OfficePaidAt,
	}
	legs := make(map[string]legDTO, len(models.Legs))
	for _, leg := range models.Legs {
		legs[string(leg)] = legDTO{Amount: d.LegAmount(leg), Paid: d.LegPaid(leg), PaidAt: paidAt[leg]}
	}
	return dealDTO{
		ID:              d.ID,
		LeadID:          d.LeadID,
		FirstName:       d.ClientFirstName,
		LastName:        d.ClientLastName,
		Phone:           d.ClientPhone,
		Email:           d.ClientEmail,
		LoanAmount:      d.LoanAmount,
		Bank:            string(d.Bank),
		CommissionModel: string(d.CommissionModel),
		PropertyType:    string(d.PropertyType),
		Status:          string(d.Status),
		IsPersonalDeal:  d.IsPersonalDeal,
		Gross:           d.CommissionGross,
		AdvisorResidual: d.AdvisorResidual,
		CommissionReady: d.CommissionReady,
		Legs:            legs,
		FullyPaid:       d.FullyPaid(),
		CompletedAt:     d.CompletedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type noteDTO struct {
	ID        uint      `json:"id"`
	LeadID    uint      `json:"lead_id"`
	AuthorID  *uint     `json:"author_id"`
	Text      string    `json:"text"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

func toNoteDTO(n models.LeadNote) noteDTO {
	return noteDTO{ID: n.ID, LeadID: n.LeadID, AuthorID: n.AuthorID, Text: n.Text, IsPrivate: n.IsPrivate, CreatedAt: n.CreatedAt}
}

type eventDTO struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	DealID      *uint          `json:"deal_id"`
	ActorUserID *uint          `json:"actor_user_id"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toEventDTO(e models.LeadEvent) eventDTO {
	return eventDTO{
		ID:          e.ID.String(),
		EventType:   string(e.EventType),
		DealID:      e.DealID,
		ActorUserID: e.ActorUserID,
		Description: e.Description,
		Payload:     e.PayloadMap(),
		CreatedAt:   e.CreatedAt,
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
