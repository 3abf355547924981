package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"leadbridge/internal/models"
)

type RowError struct {
	Line  int
	Field string
	Msg   string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Line, e.Field, e.Msg)
}

type RowErrors []RowError

func (e RowErrors) Error() string {
	msgs := make([]string, len(e))
	for i, re := range e {
		msgs[i] = re.Error()
	}
	return strings.Join(msgs, "; ")
}

var hundred = decimal.NewFromInt(100)

// Validate checks every row and the links between rows. Links may also point
// at users and offices already stored.
func (im *Importer) Validate(ctx context.Context, rows []Row) error {
	var errs RowErrors
	add := func(r Row, field, msg string) {
		errs = append(errs, RowError{Line: r.Line, Field: field, Msg: msg})
	}

	byEmail := map[string]Row{}
	offices := map[string]bool{}
	for _, r := range rows {
		if prev, dup := byEmail[r.Email]; dup && r.Email != "" {
			add(r, "email", fmt.Sprintf("duplicate of row %d", prev.Line))
			continue
		}
		byEmail[r.Email] = r
		if r.Role == models.RoleOffice && r.OfficeName != "" {
			offices[strings.ToLower(r.OfficeName)] = true
		}
	}

	for _, r := range rows {
		if err := im.validate.Struct(r); err != nil {
			var fields validator.ValidationErrors
			if errors.As(err, &fields) {
				for _, fe := range fields {
					add(r, strings.ToLower(fe.Field()), "failed "+fe.Tag())
				}
			} else {
				add(r, "row", err.Error())
			}
		}
		if !r.Role.Valid() || r.Role == models.RoleAdmin {
			add(r, "role", fmt.Sprintf("unknown role %q", r.Role))
		}

		if r.TotalPerMillion.IsNegative() {
			add(r, "total_per_million", "must not be negative")
		}
		sum := decimal.Zero
		for name, pct := range map[string]decimal.Decimal{
			"referrer_pct": r.ReferrerPct,
			"manager_pct":  r.ManagerPct,
			"office_pct":   r.OfficePct,
		} {
			if pct.IsNegative() || pct.GreaterThan(hundred) {
				add(r, name, "must be between 0 and 100")
			}
			sum = sum.Add(pct)
		}
		if sum.GreaterThan(hundred) {
			add(r, "pct", "shares add up to more than 100")
		}

		if r.ManagerEmail != "" {
			if r.Role != models.RoleReferrer {
				add(r, "manager_email", "only referrers have a manager")
			} else if err := im.resolveManager(ctx, byEmail, r.ManagerEmail); err != nil {
				add(r, "manager_email", err.Error())
			}
		}
		if r.OfficeName != "" {
			switch r.Role {
			case models.RoleOffice:
			case models.RoleReferrerManager:
				if err := im.resolveOffice(ctx, offices, r.OfficeName); err != nil {
					add(r, "office_name", err.Error())
				}
			default:
				add(r, "office_name", "only managers belong to an office")
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isManagerRole(r models.Role) bool {
	return r == models.RoleReferrerManager || r == models.RoleOffice
}

func (im *Importer) resolveManager(ctx context.Context, byEmail map[string]Row, email string) error {
	if row, ok := byEmail[email]; ok {
		if !isManagerRole(row.Role) {
			return fmt.Errorf("%s is %s, not a manager or office", email, row.Role)
		}
		return nil
	}
	u, err := im.db.UserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("unknown manager %s", email)
	}
	if err != nil {
		return err
	}
	if !isManagerRole(u.Role) {
		return fmt.Errorf("%s is %s, not a manager or office", email, u.Role)
	}
	return nil
}

func (im *Importer) resolveOffice(ctx context.Context, inFile map[string]bool, name string) error {
	if inFile[strings.ToLower(name)] {
		return nil
	}
	_, err := im.db.OfficeByName(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("unknown office %q", name)
	}
	return err
}
