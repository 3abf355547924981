// Package api exposes the lead services over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"leadbridge/internal/leads"
	"leadbridge/internal/models"
	"leadbridge/internal/stats"
)

type LeadService interface {
	CreateLead(ctx context.Context, actor models.User, in leads.NewLead) (models.Lead, error)
	ListLeads(ctx context.Context, actor models.User) ([]models.Lead, error)
	GetLead(ctx context.Context, actor models.User, id uint) (models.Lead, error)
	UpdateLeadIdentity(ctx context.Context, actor models.User, leadID uint, id models.ClientIdentity) (models.Lead, error)
	AddNote(ctx context.Context, actor models.User, leadID uint, text string, private bool) (models.LeadNote, error)
	ListNotes(ctx context.Context, actor models.User, leadID uint) ([]models.LeadNote, error)
	History(ctx context.Context, actor models.User, leadID uint) ([]models.LeadEvent, error)
	ScheduleMeeting(ctx context.Context, actor models.User, leadID uint, m leads.Meeting) (models.Lead, error)
	CompleteMeeting(ctx context.Context, actor models.User, leadID uint, next models.CommunicationStatus, note string) (models.Lead, error)
	CancelMeeting(ctx context.Context, actor models.User, leadID uint, reason string) (models.Lead, error)
	ScheduleCallback(ctx context.Context, actor models.User, leadID uint, date time.Time, note string) (models.Lead, error)
	ProcessDueCallbacks(ctx context.Context, asOf time.Time) (int, error)

	CreateDeal(ctx context.Context, actor models.User, leadID uint, in leads.NewDeal) (models.Deal, error)
	ListDeals(ctx context.Context, actor models.User) ([]models.Deal, error)
	GetDeal(ctx context.Context, actor models.User, id uint) (models.Deal, error)
	DealsOfLead(ctx context.Context, actor models.User, leadID uint) ([]models.Deal, error)
	UpdateDeal(ctx context.Context, actor models.User, dealID uint, p leads.DealPatch) (models.Deal, error)
	MarkCommissionReady(ctx context.Context, actor models.User, dealID uint) (models.Deal, error)
	MarkCommissionPaid(ctx context.Context, actor models.User, dealID uint, leg models.Leg) (models.Deal, error)
}

type StatsService interface {
	Report(ctx context.Context, actor models.User, w stats.Window) (stats.Report, error)
}

type Users interface {
	User(ctx context.Context, id uint) (models.User, error)
}

type Handler struct {
	leads    LeadService
	stats    StatsService
	users    Users
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewHandler(leadSvc LeadService, statsSvc StatsService, users Users, logger *slog.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		leads:    leadSvc,
		stats:    statsSvc,
		users:    users,
		validate: v,
		log:      logger,
		now:      time.Now,
	}
}

// NewRouter mounts the API. Internal routes accept only callers from
// internalCIDRs.
func NewRouter(h *Handler, internalCIDRs []string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}) })

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.actorMiddleware)

		r.Get("/leads", h.listLeads)
		r.Post("/leads", h.createLead)
		r.Get("/leads/{id}", h.getLead)
		r.Patch("/leads/{id}/identity", h.updateLeadIdentity)
		r.Get("/leads/{id}/notes", h.listNotes)
		r.Post("/leads/{id}/notes", h.addNote)
		r.Get("/leads/{id}/history", h.history)
		r.Post("/leads/{id}/meeting", h.scheduleMeeting)
		r.Post("/leads/{id}/meeting/complete", h.completeMeeting)
		r.Delete("/leads/{id}/meeting", h.cancelMeeting)
		r.Post("/leads/{id}/callback", h.scheduleCallback)
		r.Get("/leads/{id}/deals", h.dealsOfLead)
		r.Post("/leads/{id}/deals", h.createDeal)

		r.Get("/deals", h.listDeals)
		r.Get("/deals/{id}", h.getDeal)
		r.Patch("/deals/{id}", h.updateDeal)
		r.Post("/deals/{id}/commission/ready", h.markCommissionReady)
		r.Post("/deals/{id}/commission/{leg}/paid", h.markCommissionPaid)

		r.Get("/stats", h.report)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(internalOnly(internalCIDRs))
		r.Post("/callbacks/process", h.processCallbacks)
	})
	return r
}
