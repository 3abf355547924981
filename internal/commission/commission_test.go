package commission

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func standardConfig() Config {
	return Config{
		TotalPerMillion: d("20000"),
		ReferrerPct:     d("10"),
		ManagerPct:      d("5"),
		OfficePct:       d("5"),
	}
}

func assertAmount(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s = %s, want %s", field, got, want)
	}
}

func TestComputeModels(t *testing.T) {
	tests := []struct {
		model    Model
		residual string
	}{
		{FullMinusStructure, "32000"},
		{NetWithStructure, "36000"},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			s, err := Compute(d("2000000"), standardConfig(), tt.model, false)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			assertAmount(t, "gross", s.Gross, "40000")
			assertAmount(t, "referrer", s.Referrer, "4000")
			assertAmount(t, "manager", s.Manager, "2000")
			assertAmount(t, "office", s.Office, "2000")
			assertAmount(t, "residual", s.AdvisorResidual, tt.residual)
		})
	}
}

func TestComputePersonalDealHasNoShares(t *testing.T) {
	for _, model := range []Model{FullMinusStructure, NetWithStructure} {
		s, err := Compute(d("2000000"), standardConfig(), model, true)
		if err != nil {
			t.Fatalf("Compute(%s): %v", model, err)
		}
		if !s.Shared().IsZero() {
			t.Errorf("%s: shares = %s, want 0", model, s.Shared())
		}
		assertAmount(t, "residual", s.AdvisorResidual, "40000")
	}
}

func TestComputeRoundsHalfUp(t *testing.T) {
	cfg := Config{TotalPerMillion: d("1000"), ReferrerPct: d("10")}
	s, err := Compute(d("1234565"), cfg, FullMinusStructure, false)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	assertAmount(t, "gross", s.Gross, "1234.57")
	assertAmount(t, "referrer", s.Referrer, "123.46")
}

func TestComputeNeverOverAllocates(t *testing.T) {
	cfg := Config{TotalPerMillion: d("1000"), ReferrerPct: d("50"), ManagerPct: d("50")}
	s, err := Compute(d("50"), cfg, FullMinusStructure, false)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	assertAmount(t, "gross", s.Gross, "0.05")
	if s.Shared().GreaterThan(s.Gross) {
		t.Fatalf("shares %s exceed pool %s", s.Shared(), s.Gross)
	}
	assertAmount(t, "referrer", s.Referrer, "0.02")
	assertAmount(t, "manager", s.Manager, "0.03")
	assertAmount(t, "residual", s.AdvisorResidual, "0")
}

func TestComputeSharesWithinPool(t *testing.T) {
	pcts := []string{"0", "0.01", "12.5", "33.33"}
	loans := []string{"1", "999.99", "1500000", "3333333.33"}

	for _, loan := range loans {
		for _, r := range pcts {
			for _, m := range pcts {
				cfg := Config{TotalPerMillion: d("17777"), ReferrerPct: d(r), ManagerPct: d(m), OfficePct: d("33.34")}
				s, err := Compute(d(loan), cfg, FullMinusStructure, false)
				if err != nil {
					t.Fatalf("Compute(%s, %s/%s): %v", loan, r, m, err)
				}
				if s.Shared().GreaterThan(s.Gross) {
					t.Errorf("loan %s pcts %s/%s: shares %s exceed pool %s", loan, r, m, s.Shared(), s.Gross)
				}
				if s.AdvisorResidual.IsNegative() {
					t.Errorf("loan %s pcts %s/%s: negative residual %s", loan, r, m, s.AdvisorResidual)
				}
			}
		}
	}
}

func TestComputeErrors(t *testing.T) {
	tests := []struct {
		name  string
		loan  string
		cfg   Config
		model Model
		want  error
	}{
		{"zero loan", "0", standardConfig(), FullMinusStructure, ErrInvalidLoanAmount},
		{"negative loan", "-5", standardConfig(), FullMinusStructure, ErrInvalidLoanAmount},
		{"no rate", "100000", Config{ReferrerPct: d("10")}, FullMinusStructure, ErrInvalidCommissionConfig},
		{"negative pct", "100000", Config{TotalPerMillion: d("1"), ManagerPct: d("-1")}, FullMinusStructure, ErrInvalidCommissionConfig},
		{"pct over 100", "100000", Config{TotalPerMillion: d("1"), OfficePct: d("100.01")}, NetWithStructure, ErrInvalidCommissionConfig},
		{"sum over 100", "100000", Config{TotalPerMillion: d("1"), ReferrerPct: d("60"), ManagerPct: d("41")}, NetWithStructure, ErrInvalidCommissionConfig},
		{"unknown model", "100000", standardConfig(), Model("BONUS"), ErrInvalidCommissionConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(d(tt.loan), tt.cfg, tt.model, false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefaultBankTable(t *testing.T) {
	table := DefaultBankTable()

	codes := table.Codes()
	if len(codes) != 11 {
		t.Fatalf("got %d banks, want 11: %v", len(codes), codes)
	}
	if m, ok := table.ModelFor("CS"); !ok || m != FullMinusStructure {
		t.Errorf("CS model = %q, %v", m, ok)
	}
	if m, ok := table.ModelFor("FIO"); !ok || m != NetWithStructure {
		t.Errorf("FIO model = %q, %v", m, ok)
	}
	if _, ok := table.ModelFor("NOPE"); ok {
		t.Error("unknown bank resolved")
	}
	if got := table.Label("KB"); got != "Komerční banka" {
		t.Errorf("KB label = %q", got)
	}
	if got := table.Label("NOPE"); got != "NOPE" {
		t.Errorf("unknown label = %q", got)
	}
}

func TestParseBankTableRejectsBadInput(t *testing.T) {
	inputs := map[string]string{
		"empty":         "banks: []",
		"unknown model": "banks:\n  - code: X\n    model: SOMETHING\n",
		"missing code":  "banks:\n  - model: NET_WITH_STRUCTURE\n",
		"duplicate":     "banks:\n  - code: X\n    model: NET_WITH_STRUCTURE\n  - code: X\n    model: NET_WITH_STRUCTURE\n",
		"not yaml":      "banks: [",
	}
	for name, raw := range inputs {
		if _, err := ParseBankTable([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
