// Package commission splits an advisor's gross commission on a loan between
// the referrer, the referrer's manager and the office.
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Model string

const (
	// FullMinusStructure funds every share, structure included, out of the
	// advisor's pool.
	FullMinusStructure Model = "FULL_MINUS_STRUCTURE"
	// NetWithStructure pays the structure separately; only the referrer share
	// is taken from the advisor's pool.
	NetWithStructure Model = "NET_WITH_STRUCTURE"
)

func (m Model) Valid() bool {
	return m == FullMinusStructure || m == NetWithStructure
}

var (
	ErrInvalidLoanAmount       = errors.New("loan amount must be positive")
	ErrInvalidCommissionConfig = errors.New("invalid commission configuration")
)

var (
	million = decimal.NewFromInt(1_000_000)
	hundred = decimal.NewFromInt(100)
)

// Config is the advisor's commission rate setup.
type Config struct {
	TotalPerMillion decimal.Decimal
	ReferrerPct     decimal.Decimal
	ManagerPct      decimal.Decimal
	OfficePct       decimal.Decimal
}

func (c Config) Validate() error {
	if !c.TotalPerMillion.IsPositive() {
		return fmt.Errorf("%w: no commission rate configured", ErrInvalidCommissionConfig)
	}
	for name, pct := range map[string]decimal.Decimal{
		"referrer": c.ReferrerPct,
		"manager":  c.ManagerPct,
		"office":   c.OfficePct,
	} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s percentage %s outside 0-100", ErrInvalidCommissionConfig, name, pct)
		}
	}
	if sum := c.ReferrerPct.Add(c.ManagerPct).Add(c.OfficePct); sum.GreaterThan(hundred) {
		return fmt.Errorf("%w: percentages add up to %s", ErrInvalidCommissionConfig, sum)
	}
	return nil
}

// Split is the result of one calculation. Amounts are in currency units
// rounded to two decimals.
type Split struct {
	Gross           decimal.Decimal `json:"gross"`
	Referrer        decimal.Decimal `json:"referrer"`
	Manager         decimal.Decimal `json:"manager"`
	Office          decimal.Decimal `json:"office"`
	AdvisorResidual decimal.Decimal `json:"advisor_residual"`
}

// Structure is the manager and office part of the split.
func (s Split) Structure() decimal.Decimal {
	return s.Manager.Add(s.Office)
}

func (s Split) Shared() decimal.Decimal {
	return s.Referrer.Add(s.Structure())
}

// Compute splits the gross pool of a loan. A personal deal carries no shares
// at all and the advisor keeps the whole pool.
func Compute(loanAmount decimal.Decimal, cfg Config, model Model, personal bool) (Split, error) {
	if !loanAmount.IsPositive() {
		return Split{}, fmt.Errorf("%w: got %s", ErrInvalidLoanAmount, loanAmount)
	}
	if err := cfg.Validate(); err != nil {
		return Split{}, err
	}
	if !model.Valid() {
		return Split{}, fmt.Errorf("%w: unknown commission model %q", ErrInvalidCommissionConfig, model)
	}

	gross := loanAmount.Mul(cfg.TotalPerMillion).Div(million).Round(2)
	if personal {
		return Split{
			Gross:           gross,
			Referrer:        decimal.Zero,
			Manager:         decimal.Zero,
			Office:          decimal.Zero,
			AdvisorResidual: gross,
		}, nil
	}

	shares := capToPool(gross, []decimal.Decimal{
		share(gross, cfg.ReferrerPct),
		share(gross, cfg.ManagerPct),
		share(gross, cfg.OfficePct),
	})
	s := Split{
		Gross:    gross,
		Referrer: shares[0],
		Manager:  shares[1],
		Office:   shares[2],
	}

	switch model {
	case FullMinusStructure:
		s.AdvisorResidual = gross.Sub(s.Shared())
	case NetWithStructure:
		s.AdvisorResidual = gross.Sub(s.Referrer)
	}
	return s, nil
}

// share rounds half away from zero, which is half-up for the non-negative
// amounts handled here.
func share(gross, pct decimal.Decimal) decimal.Decimal {
	return gross.Mul(pct).Div(hundred).Round(2)
}

// capToPool takes any rounding overshoot off the largest share first so the
// shares never add up to more than the pool.
func capToPool(gross decimal.Decimal, shares []decimal.Decimal) []decimal.Decimal {
	excess := decimal.Sum(decimal.Zero, shares...).Sub(gross)
	for excess.IsPositive() {
		largest := 0
		for i := range shares {
			if shares[i].GreaterThan(shares[largest]) {
				largest = i
			}
		}
		cut := decimal.Min(excess, shares[largest])
		if !cut.IsPositive() {
			break
		}
		shares[largest] = shares[largest].Sub(cut)
		excess = excess.Sub(cut)
	}
	return shares
}
