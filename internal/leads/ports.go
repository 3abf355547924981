package leads

import (
	"context"
	"time"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

// Store is the persistence the service needs. Lookups of missing rows return
// an error wrapping models.ErrNotFound. Methods called on the Store handed to
// a Transaction callback run inside that transaction.
type Store interface {
	access.Directory

	Transaction(ctx context.Context, fn func(tx Store) error) error

	User(ctx context.Context, id uint) (models.User, error)
	Hierarchy(ctx context.Context, referrerID uint) (models.Hierarchy, error)
	AdvisorsOfReferrer(ctx context.Context, referrerID uint) ([]uint, error)
	SetLastChosenAdvisor(ctx context.Context, referrerID, advisorID uint) error

	// Lead loads one lead; lock takes a row lock until the transaction ends.
	Lead(ctx context.Context, id uint, lock bool) (models.Lead, error)
	CreateLead(ctx context.Context, lead *models.Lead) error
	SaveLead(ctx context.Context, lead *models.Lead) error
	ListLeads(ctx context.Context, f access.Filter) ([]models.Lead, error)
	// DueCallbacks returns ids of open leads whose callback date is on or
	// before asOf.
	DueCallbacks(ctx context.Context, asOf time.Time) ([]uint, error)

	Deal(ctx context.Context, id uint, lock bool) (models.Deal, error)
	DealsOfLead(ctx context.Context, leadID uint) ([]models.Deal, error)
	CreateDeal(ctx context.Context, deal *models.Deal) error
	SaveDeal(ctx context.Context, deal *models.Deal) error
	ListDeals(ctx context.Context, f access.Filter) ([]models.Deal, error)
	// SyncDealIdentity writes the identity to every deal of the lead in one
	// statement and returns the number of deals touched.
	SyncDealIdentity(ctx context.Context, leadID uint, id models.ClientIdentity) (int64, error)

	CreateNote(ctx context.Context, note *models.LeadNote) error
	NotesOfLead(ctx context.Context, leadID uint) ([]models.LeadNote, error)

	AppendEvent(ctx context.Context, ev *models.LeadEvent) error
	EventsOfLead(ctx context.Context, leadID uint) ([]models.LeadEvent, error)
}

// Notifier is poked after a commit that appended events. It must not block.
type Notifier interface {
	Notify()
}

// Marker claims a key once for a period.
type Marker interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
