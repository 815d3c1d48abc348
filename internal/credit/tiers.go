package credit

// Tier is a credit-score bracket with the maximum loan it allows.
type Tier struct {
	MinCreditScore int     `json:"min_credit_score"`
	MaxLoanAmount  float64 `json:"max_loan_amount"`
	Label          string  `json:"label"`
}

// DefaultTiers returns the standard six-tier schedule. The table is
// treated as immutable; Ledger copies it at construction.
func DefaultTiers() []Tier {
	return []Tier{
		{MinCreditScore: 0, MaxLoanAmount: 10, Label: "Starter"},
		{MinCreditScore: 150, MaxLoanAmount: 25, Label: "Bronze"},
		{MinCreditScore: 300, MaxLoanAmount: 50, Label: "Silver"},
		{MinCreditScore: 500, MaxLoanAmount: 100, Label: "Gold"},
		{MinCreditScore: 750, MaxLoanAmount: 200, Label: "Platinum"},
		{MinCreditScore: 1000, MaxLoanAmount: 500, Label: "Diamond"},
	}
}
