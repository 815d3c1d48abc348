package ledger

import (
	"context"
	"strconv"
)

// Credential is the signing material for a ledger account. Key handling
// is deliberately plain here; hardening is out of scope.
type Credential struct {
	Address string `json:"address"`
	Secret  string `json:"secret"`
}

// PaymentResult reports the outcome of a submitted payment. A ledger
// rejection (tec/tem result code) is a domain failure carried in the
// result, not an error; errors are reserved for connectivity problems.
type PaymentResult struct {
	Success    bool   `json:"success"`
	TxHash     string `json:"tx_hash"`
	ResultCode string `json:"result_code"`
}

type FundingStatus struct {
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	IsFunded bool   `json:"is_funded"`
}

type Account struct {
	Address    string     `json:"address"`
	Credential Credential `json:"credential"`
	Balance    string     `json:"balance"`
	Label      string     `json:"label"`
	Network    string     `json:"network"`
}

// Gateway is the ledger capability the loan core consumes. Balances are
// decimal unit strings; GetAccountBalance returns "0" for unknown
// accounts rather than an error so callers can poll freshly created
// wallets.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetAccountBalance(ctx context.Context, address string) (string, error)
	CheckAndUpdateFunding(ctx context.Context, address string) (FundingStatus, error)
	SendPayment(ctx context.Context, from Credential, to string, amount float64) (PaymentResult, error)
	CreateAccount(ctx context.Context, label string) (Account, error)
}

const dropsPerUnit = 1_000_000

func unitsToDrops(amount float64) int64 {
	return int64(amount*dropsPerUnit + 0.5)
}

func dropsToUnits(drops int64) string {
	return strconv.FormatFloat(float64(drops)/dropsPerUnit, 'f', -1, 64)
}

// ParseAmount converts a gateway balance string into units. Malformed
// input counts as zero; the gateway only emits well-formed strings.
func ParseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
