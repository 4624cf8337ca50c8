// Package allocation splits a monetary total among participants by
// percentage share.
//
// All percentage validation in the module goes through ValidateShares so
// the sum rule is defined once.
package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"sharedspese/internal/core"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.New(1, -2) // 0.01
)

// ValidateShares checks that shares is non-empty, that no percentage is
// negative and that the percentages sum to 100 within 0.01.
func ValidateShares(shares []core.Share) error {
	if len(shares) == 0 {
		return core.Invalid("shares", "no participants to distribute among")
	}
	sum := decimal.Zero
	seen := make(map[string]struct{}, len(shares))
	for _, s := range shares {
		if s.Percentage.IsNegative() {
			return core.Invalid("shares", "negative percentage %s for participant %s", s.Percentage.StringFixed(2), s.ParticipantID)
		}
		if s.ParticipantID != "" {
			if _, dup := seen[s.ParticipantID]; dup {
				return core.Invalid("shares", "participant %s listed twice", s.ParticipantID)
			}
			seen[s.ParticipantID] = struct{}{}
		}
		sum = sum.Add(s.Percentage)
	}
	if sum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return core.Invalid("shares", "percentages sum to %s, expected 100", sum.StringFixed(2))
	}
	return nil
}

// ComputeShares applies each percentage to total, rounding every amount to
// the cent. The residual left by rounding goes to the first share with a
// positive percentage so the amounts always sum exactly to total.
func ComputeShares(total core.Money, shares []core.Share) ([]core.ShareAmount, error) {
	if err := ValidateShares(shares); err != nil {
		return nil, err
	}
	if total.Cents <= 0 {
		return nil, core.Invalid("total", "must be positive, got %s", total)
	}

	cents := decimal.NewFromInt(total.Cents)
	out := make([]core.ShareAmount, len(shares))
	var assigned int64
	for i, s := range shares {
		amt := cents.Mul(s.Percentage).Div(hundred).Round(0).IntPart()
		out[i] = core.ShareAmount{ParticipantID: s.ParticipantID, Amount: core.Cents(amt)}
		assigned += amt
	}
	absorbResidual(out, shares, total.Cents-assigned)
	return out, nil
}

// absorbResidual adds residual to the first share with a positive
// percentage. A negative residual is taken from the earliest shares that
// still hold money, so no amount ever drops below zero.
func absorbResidual(out []core.ShareAmount, shares []core.Share, residual int64) {
	if residual == 0 {
		return
	}
	for i, s := range shares {
		if !s.Percentage.IsPositive() {
			continue
		}
		if residual > 0 {
			out[i].Amount = out[i].Amount.Add(core.Cents(residual))
			return
		}
		take := min(out[i].Amount.Cents, -residual)
		out[i].Amount = out[i].Amount.Sub(core.Cents(take))
		residual += take
		if residual == 0 {
			return
		}
	}
}

// EqualSplit divides 100% equally among participants with two decimals;
// the remainder needed to reach exactly 100 goes to the first participant.
func EqualSplit(participants []core.Participant) []core.Share {
	n := len(participants)
	if n == 0 {
		return nil
	}
	base := hundred.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	rest := hundred.Sub(base.Mul(decimal.NewFromInt(int64(n))))
	shares := make([]core.Share, n)
	for i, p := range participants {
		pct := base
		if i == 0 {
			pct = pct.Add(rest)
		}
		shares[i] = core.Share{ParticipantID: p.UserID, Name: p.Name, Percentage: pct}
	}
	return shares
}

// Describe renders shares for logs, e.g. "u1=60.00%,u2=40.00%".
func Describe(shares []core.Share) string {
	s := ""
	for i, sh := range shares {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%s%%", sh.ParticipantID, sh.Percentage.StringFixed(2))
	}
	return s
}
