package stats

import (
	"context"
	"fmt"
	"log/slog"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

// Source loads scoped records.
type Source interface {
	access.Directory
	ListLeads(ctx context.Context, f access.Filter) ([]models.Lead, error)
	ListDeals(ctx context.Context, f access.Filter) ([]models.Deal, error)
}

type Service struct {
	src Source
	log *slog.Logger
}

func NewService(src Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{src: src, log: logger}
}

func (s *Service) Report(ctx context.Context, actor models.User, w Window) (Report, error) {
	f, err := access.Resolve(ctx, s.src, access.CapabilityOf(actor))
	if err != nil {
		return Report{}, err
	}

	leads, err := s.src.ListLeads(ctx, f)
	if err != nil {
		return Report{}, fmt.Errorf("load leads: %w", err)
	}
	deals, err := s.src.ListDeals(ctx, f)
	if err != nil {
		return Report{}, fmt.Errorf("load deals: %w", err)
	}

	var team []uint
	if !actor.IsAdmin() {
		switch actor.Role {
		case models.RoleReferrerManager:
			team, err = s.src.ReferrersManagedBy(ctx, actor.ID)
		case models.RoleOffice:
			team, err = s.src.ReferrersUnderOffice(ctx, actor.ID)
		}
		if err != nil {
			return Report{}, fmt.Errorf("load team: %w", err)
		}
	}

	r := Build(actor, f, leads, deals, team, w)
	s.log.Debug("stats report built",
		"actor_id", actor.ID,
		"preset", w.Preset,
		"leads", len(leads),
		"deals", len(deals),
	)
	return r, nil
}
