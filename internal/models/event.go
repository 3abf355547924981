package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventLeadCreated      EventType = "lead_created"
	EventLeadUpdated      EventType = "lead_updated"
	EventNoteAdded        EventType = "note_added"
	EventMeetingScheduled EventType = "meeting_scheduled"
	EventMeetingCompleted EventType = "meeting_completed"
	EventDealCreated      EventType = "deal_created"
	EventDealUpdated      EventType = "deal_updated"
	EventCommissionReady  EventType = "commission_ready"
	EventCommissionPaid   EventType = "commission_paid"
	EventCallbackDue      EventType = "callback_due"
)

// LeadEvent is the lead history and the notification outbox at once. Rows are
// written in the transaction of the change they describe.
type LeadEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventType   EventType `gorm:"size:32;not null;index"`
	LeadID      uint      `gorm:"not null;index"`
	DealID      *uint     `gorm:"index"`
	ActorUserID *uint     `gorm:"index"`
	Description string    `gorm:"type:text"`
	Payload     string    `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt   time.Time `gorm:"index"`

	DispatchedAt *time.Time `gorm:"index"`
	Attempts     int        `gorm:"not null;default:0"`
	LastError    string     `gorm:"type:text"`
}

func NewLeadEvent(eventType EventType, leadID uint, dealID *uint, actor *User, description string, payload map[string]any) (LeadEvent, error) {
	ev := LeadEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		LeadID:      leadID,
		DealID:      dealID,
		Description: description,
		Payload:     "{}",
	}
	if actor != nil {
		id := actor.ID
		ev.ActorUserID = &id
	}
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			return LeadEvent{}, err
		}
		ev.Payload = string(raw)
	}
	return ev, nil
}

func (e LeadEvent) PayloadMap() map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(e.Payload), &out)
	return out
}

// Private reports a note_added event for a private note.
func (e LeadEvent) Private() bool {
	private, _ := e.PayloadMap()["private"].(bool)
	return private
}

// Personal reports an event raised on a personal deal.
func (e LeadEvent) Personal() bool {
	personal, _ := e.PayloadMap()["personal"].(bool)
	return personal
}

func (e LeadEvent) ActedBy(userID uint) bool {
	return e.ActorUserID != nil && *e.ActorUserID == userID
}

// AllModels lists every table for migration.
func AllModels() []any {
	return []any{
		&User{},
		&Office{},
		&ManagerProfile{},
		&ReferrerProfile{},
		&Lead{},
		&Deal{},
		&LeadNote{},
		&LeadEvent{},
	}
}
