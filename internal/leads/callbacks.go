package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadbridge/internal/models"
)

const callbackMarkerTTL = 72 * time.Hour

// ProcessDueCallbacks reopens every open lead whose callback date has come.
// Each lead is handled in its own transaction; a reopened lead has its date
// cleared, so a second run finds nothing to do.
func (s *Service) ProcessDueCallbacks(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.store.DueCallbacks(ctx, dateOnly(asOf))
	if err != nil {
		return 0, fmt.Errorf("load due callbacks: %w", err)
	}

	var (
		processed int
		errs      []error
	)
	for _, id := range ids {
		fired, err := s.processCallback(ctx, id, dateOnly(asOf))
		if err != nil {
			s.log.Warn("callback processing failed", "lead_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if fired {
			processed++
		}
	}

	if processed > 0 {
		s.log.Info("due callbacks processed", "count", processed, "as_of", asOf.Format("2006-01-02"))
		s.notify()
	}
	return processed, errors.Join(errs...)
}

func (s *Service) processCallback(ctx context.Context, leadID uint, asOf time.Time) (bool, error) {
	var (
		fired   bool
		claimed string
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		lead, err := tx.Lead(ctx, leadID, true)
		if err != nil {
			return err
		}
		if lead.CallbackScheduledDate == nil || lead.CommunicationStatus.Closed() {
			return nil
		}
		due := dateOnly(*lead.CallbackScheduledDate)
		if due.After(asOf) {
			return nil
		}

		if s.marker != nil {
			key := fmt.Sprintf("callback_due:%d:%s", lead.ID, due.Format("2006-01-02"))
			ok, err := s.marker.Claim(ctx, key, callbackMarkerTTL)
			switch {
			case err != nil:
				// The row lock still serializes runners.
				s.log.Warn("callback marker unavailable", "lead_id", lead.ID, "error", err)
			case !ok:
				return nil
			default:
				claimed = key
			}
		}

		note := lead.CallbackNote
		lead.CommunicationStatus = models.StatusNew
		lead.CallbackScheduledDate = nil
		lead.CallbackNote = ""
		if err := tx.SaveLead(ctx, &lead); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		fired = true
		return s.record(ctx, tx, models.EventCallbackDue, lead.ID, nil, nil,
			"Scheduled callback is due",
			map[string]any{"callback_date": due.Format("2006-01-02"), "note": note})
	})
	if err != nil {
		if claimed != "" {
			if rerr := s.marker.Release(ctx, claimed); rerr != nil {
				s.log.Warn("callback marker release failed", "lead_id", leadID, "error", rerr)
			}
		}
		return false, err
	}
	return fired, nil
}
