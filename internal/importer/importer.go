package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"leadbridge/internal/models"
)

type Lookup interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	OfficeByName(ctx context.Context, name string) (models.Office, error)
}

type Writer interface {
	Lookup
	// UpsertUser matches on e-mail and reports whether the user was created.
	UpsertUser(ctx context.Context, u *models.User) (bool, error)
	UpsertOffice(ctx context.Context, name string, ownerID uint) (models.Office, error)
	SetManagerOffice(ctx context.Context, managerID uint, officeID *uint) error
	SetReferrerManager(ctx context.Context, referrerID uint, managerID *uint) error
}

type Database interface {
	Lookup
	ImportTransaction(ctx context.Context, fn func(w Writer) error) error
}

type Result struct {
	Rows    int
	Created int
	Updated int
	Offices int
	DryRun  bool
}

type Importer struct {
	db       Database
	validate *validator.Validate
	log      *slog.Logger
}

func New(db Database, logger *slog.Logger) *Importer {
	return &Importer{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger,
	}
}

// Run validates all rows and then writes them in one transaction. Nothing is
// written when any row is invalid or in dry-run mode.
func (im *Importer) Run(ctx context.Context, rows []Row, dryRun bool) (Result, error) {
	res := Result{Rows: len(rows), DryRun: dryRun}
	if err := im.Validate(ctx, rows); err != nil {
		return res, err
	}
	if dryRun {
		im.log.Info("dry run, nothing written", "rows", len(rows))
		return res, nil
	}

	err := im.db.ImportTransaction(ctx, func(w Writer) error {
		res.Created, res.Updated, res.Offices = 0, 0, 0

		ids := make(map[string]uint, len(rows))
		for _, r := range rows {
			u := r.user()
			created, err := w.UpsertUser(ctx, &u)
			if err != nil {
				return fmt.Errorf("row %d: save user %s: %w", r.Line, r.Email, err)
			}
			ids[r.Email] = u.ID
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}

		offices := map[string]uint{}
		for _, r := range rows {
			if r.Role != models.RoleOffice || r.OfficeName == "" {
				continue
			}
			office, err := w.UpsertOffice(ctx, r.OfficeName, ids[r.Email])
			if err != nil {
				return fmt.Errorf("row %d: save office %q: %w", r.Line, r.OfficeName, err)
			}
			offices[strings.ToLower(r.OfficeName)] = office.ID
			res.Offices++
		}

		for _, r := range rows {
			var err error
			switch r.Role {
			case models.RoleReferrerManager:
				err = im.linkOffice(ctx, w, offices, ids[r.Email], r.OfficeName)
			case models.RoleReferrer:
				err = im.linkManager(ctx, w, ids, ids[r.Email], r.ManagerEmail)
			}
			if err != nil {
				return fmt.Errorf("row %d: %w", r.Line, err)
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	im.log.Info("import finished", "rows", res.Rows, "created", res.Created, "updated", res.Updated, "offices", res.Offices)
	return res, nil
}

func (im *Importer) linkOffice(ctx context.Context, w Writer, offices map[string]uint, managerID uint, name string) error {
	if name == "" {
		return w.SetManagerOffice(ctx, managerID, nil)
	}
	id, ok := offices[strings.ToLower(name)]
	if !ok {
		office, err := w.OfficeByName(ctx, name)
		if err != nil {
			return fmt.Errorf("office %q: %w", name, err)
		}
		id = office.ID
	}
	return w.SetManagerOffice(ctx, managerID, &id)
}

func (im *Importer) linkManager(ctx context.Context, w Writer, ids map[string]uint, referrerID uint, email string) error {
	if email == "" {
		return w.SetReferrerManager(ctx, referrerID, nil)
	}
	id, ok := ids[email]
	if !ok {
		u, err := w.UserByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("manager %s: %w", email, err)
		}
		id = u.ID
	}
	return w.SetReferrerManager(ctx, referrerID, &id)
}

func (r Row) user() models.User {
	return models.User{
		FirstName:                 r.FirstName,
		LastName:                  r.LastName,
		Email:                     r.Email,
		Phone:                     r.Phone,
		Role:                      r.Role,
		IsActive:                  true,
		CommissionTotalPerMillion: r.TotalPerMillion,
		CommissionReferrerPct:     r.ReferrerPct,
		CommissionManagerPct:      r.ManagerPct,
		CommissionOfficePct:       r.OfficePct,
	}
}
