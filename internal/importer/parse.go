// Package importer loads users and their referral structure from a workbook.
package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"leadbridge/internal/models"
	"leadbridge/internal/utils"
)

var requiredColumns = []string{"first_name", "last_name", "email", "role"}

var roleAliases = map[string]models.Role{
	"makléř":           models.RoleReferrer,
	"maklér":           models.RoleReferrer,
	"makler":           models.RoleReferrer,
	"referrer":         models.RoleReferrer,
	"manažer":          models.RoleReferrerManager,
	"manazer":          models.RoleReferrerManager,
	"manager":          models.RoleReferrerManager,
	"referrer_manager": models.RoleReferrerManager,
	"kancelář":         models.RoleOffice,
	"kancelar":         models.RoleOffice,
	"office":           models.RoleOffice,
	"poradce":          models.RoleAdvisor,
	"advisor":          models.RoleAdvisor,
}

// Row is one user line of the workbook. Line is the 1-based sheet row.
type Row struct {
	Line int `validate:"-"`

	FirstName    string      `validate:"max=150"`
	LastName     string      `validate:"required,max=150"`
	Email        string      `validate:"required,email,max=254"`
	Phone        string      `validate:"max=32"`
	Role         models.Role `validate:"required"`
	ManagerEmail string      `validate:"omitempty,email"`
	OfficeName   string      `validate:"max=150"`

	TotalPerMillion decimal.Decimal
	ReferrerPct     decimal.Decimal
	ManagerPct      decimal.Decimal
	OfficePct       decimal.Decimal
}

// Parse reads the first sheet. The header row names the columns in any
// order; blank rows are skipped.
func Parse(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	lines, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	cols := map[string]int{}
	for i, name := range lines[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []Row
	var errs RowErrors
	for i, cells := range lines[1:] {
		line := i + 2
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if blank(cells) {
			continue
		}

		row := Row{
			Line:         line,
			FirstName:    cell("first_name"),
			LastName:     cell("last_name"),
			Email:        strings.ToLower(cell("email")),
			Phone:        utils.NormalizePhone(cell("phone")),
			ManagerEmail: strings.ToLower(cell("manager_email")),
			OfficeName:   cell("office_name"),
		}

		rawRole := cell("role")
		role, ok := roleAliases[strings.ToLower(rawRole)]
		if !ok {
			role = models.Role(strings.ToUpper(rawRole))
		}
		row.Role = role

		for _, n := range []struct {
			col string
			dst *decimal.Decimal
		}{
			{"total_per_million", &row.TotalPerMillion},
			{"referrer_pct", &row.ReferrerPct},
			{"manager_pct", &row.ManagerPct},
			{"office_pct", &row.OfficePct},
		} {
			v, err := number(cell(n.col))
			if err != nil {
				errs = append(errs, RowError{Line: line, Field: n.col, Msg: err.Error()})
				continue
			}
			*n.dst = v
		}
		rows = append(rows, row)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return rows, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// number accepts a decimal comma as well as a point.
func number(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	raw = strings.ReplaceAll(strings.ReplaceAll(raw, " ", ""), ",", ".")
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", raw)
	}
	return v, nil
}
