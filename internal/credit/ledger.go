package credit

import (
	"fmt"
	"sort"
)

const (
	// DefaultScore is assigned to profiles that have never been scored.
	DefaultScore = 100

	// ScoreUnset marks a profile whose score has not been initialized.
	// Zero is a reachable score (default penalties floor there), so the
	// sentinel has to live outside the valid range.
	ScoreUnset = -1

	pointsPerUnit  = 2
	minGain        = 10
	maxGain        = 100
	repaymentBonus = 1
	defaultPenalty = 50
)

// Profile is the per-borrower credit state. It is owned by the wallet
// store; Ledger only mutates the copy it is handed.
type Profile struct {
	Address     string `json:"address"`
	CreditScore int    `json:"credit_score"`
}

type Eligibility struct {
	Eligible bool    `json:"eligible"`
	Tier     Tier    `json:"tier"`
	NextTier *Tier   `json:"next_tier,omitempty"`
	Amount   float64 `json:"amount"`
	Message  string  `json:"message"`
}

type ScoreChange struct {
	OldScore int  `json:"old_score"`
	NewScore int  `json:"new_score"`
	Delta    int  `json:"delta"`
	NewTier  Tier `json:"new_tier"`
}

// Ledger answers tier and eligibility questions against an injected tier
// table and applies score adjustments. It has no storage side effects.
type Ledger struct {
	tiers []Tier
}

func NewLedger(tiers []Tier) *Ledger {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	owned := make([]Tier, len(tiers))
	copy(owned, tiers)
	sort.Slice(owned, func(i, j int) bool { return owned[i].MinCreditScore < owned[j].MinCreditScore })
	return &Ledger{tiers: owned}
}

// Initialize assigns the default score to a profile that has never been
// scored. Idempotent: an already-scored profile is left alone, including
// profiles legitimately at zero.
func (l *Ledger) Initialize(p *Profile) {
	if p.CreditScore == ScoreUnset {
		p.CreditScore = DefaultScore
	}
}

// TierFor returns the highest tier whose minimum the score meets,
// falling back to the lowest tier.
func (l *Ledger) TierFor(score int) Tier {
	for i := len(l.tiers) - 1; i >= 0; i-- {
		if score >= l.tiers[i].MinCreditScore {
			return l.tiers[i]
		}
	}
	return l.tiers[0]
}

// NextTier returns the first tier above the given score, or false when
// the score already sits in the top tier.
func (l *Ledger) NextTier(score int) (Tier, bool) {
	for _, t := range l.tiers {
		if t.MinCreditScore > score {
			return t, true
		}
	}
	return Tier{}, false
}

// AllTiers returns a copy of the tier table, lowest first.
func (l *Ledger) AllTiers() []Tier {
	out := make([]Tier, len(l.tiers))
	copy(out, l.tiers)
	return out
}

// CheckEligibility decides whether the profile's current tier covers the
// requested amount. The three outcomes are distinguishable by callers:
// eligible, ineligible with a next tier to aim for, and ineligible while
// already in the top tier.
func (l *Ledger) CheckEligibility(p *Profile, amount float64) Eligibility {
	score := p.CreditScore
	if score == ScoreUnset {
		score = DefaultScore
	}
	tier := l.TierFor(score)

	if amount <= tier.MaxLoanAmount {
		return Eligibility{
			Eligible: true,
			Tier:     tier,
			Amount:   amount,
			Message:  fmt.Sprintf("Eligible for %g loan with %s credit tier", amount, tier.Label),
		}
	}

	if next, ok := l.NextTier(score); ok {
		return Eligibility{
			Eligible: false,
			Tier:     tier,
			NextTier: &next,
			Amount:   amount,
			Message: fmt.Sprintf(
				"Loan amount exceeds %s tier limit (%g). Need %d credit score for %s tier (%g limit).",
				tier.Label, tier.MaxLoanAmount, next.MinCreditScore, next.Label, next.MaxLoanAmount,
			),
		}
	}

	return Eligibility{
		Eligible: false,
		Tier:     tier,
		Amount:   amount,
		Message:  fmt.Sprintf("Loan amount exceeds maximum tier limit (%g).", tier.MaxLoanAmount),
	}
}

// RepaymentGain is the size-based gain formula: pointsPerUnit per unit
// repaid, clamped to [minGain, maxGain]. The applied path uses the flat
// increment in ApplyRepaymentBonus instead; this stays exposed so the
// policy choice is visible.
func (l *Ledger) RepaymentGain(amount float64) int {
	base := int(amount * pointsPerUnit)
	if base < minGain {
		return minGain
	}
	if base > maxGain {
		return maxGain
	}
	return base
}

// ApplyRepaymentBonus credits the flat per-repayment increment. See
// RepaymentGain for the unapplied variable formula.
func (l *Ledger) ApplyRepaymentBonus(p *Profile) ScoreChange {
	old := p.CreditScore
	if old == ScoreUnset {
		old = DefaultScore
	}
	p.CreditScore = old + repaymentBonus
	return ScoreChange{
		OldScore: old,
		NewScore: p.CreditScore,
		Delta:    repaymentBonus,
		NewTier:  l.TierFor(p.CreditScore),
	}
}

// ApplyDefaultPenalty deducts the fixed default penalty, floored at zero.
func (l *Ledger) ApplyDefaultPenalty(p *Profile) ScoreChange {
	old := p.CreditScore
	if old == ScoreUnset {
		old = DefaultScore
	}
	next := old - defaultPenalty
	if next < 0 {
		next = 0
	}
	p.CreditScore = next
	return ScoreChange{
		OldScore: old,
		NewScore: next,
		Delta:    old - next,
		NewTier:  l.TierFor(next),
	}
}

// TierProgress reports how far a score is from the next tier, for the
// credit display endpoint.
type TierProgress struct {
	Current      Tier  `json:"current"`
	Next         *Tier `json:"next,omitempty"`
	PointsNeeded int   `json:"points_needed"`
}

func (l *Ledger) ProgressToNextTier(score int) TierProgress {
	current := l.TierFor(score)
	next, ok := l.NextTier(score)
	if !ok {
		return TierProgress{Current: current}
	}
	return TierProgress{
		Current:      current,
		Next:         &next,
		PointsNeeded: next.MinCreditScore - score,
	}
}
