package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const (
	simFeeDrops   = 12
	simGrantUnits = 100
)

// Sim is an in-process Gateway used by the local profile and by tests.
// It keeps drop-denominated balances in memory and honors the same
// failure contract as the RPC client: rejections are unsuccessful
// results, unknown sources are errors only when the secret cannot sign.
type Sim struct {
	mu               sync.Mutex
	balances         map[string]int64
	secrets          map[string]string
	seq              int64
	fundingThreshold float64
	network          string
}

func NewSim(fundingThreshold float64) *Sim {
	if fundingThreshold <= 0 {
		fundingThreshold = 10
	}
	return &Sim{
		balances:         map[string]int64{},
		secrets:          map[string]string{},
		fundingThreshold: fundingThreshold,
		network:          "sim",
	}
}

func (s *Sim) Connect(_ context.Context) error    { return nil }
func (s *Sim) Disconnect(_ context.Context) error { return nil }

func (s *Sim) CreateAccount(_ context.Context, label string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := "r" + keccakHex(uuid.NewString())[:31]
	secret := "s" + keccakHex(uuid.NewString())[:28]
	s.balances[address] = unitsToDrops(simGrantUnits)
	s.secrets[address] = secret

	return Account{
		Address:    address,
		Credential: Credential{Address: address, Secret: secret},
		Balance:    dropsToUnits(s.balances[address]),
		Label:      label,
		Network:    s.network,
	}, nil
}

func (s *Sim) GetAccountBalance(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drops, ok := s.balances[address]
	if !ok {
		return "0", nil
	}
	return dropsToUnits(drops), nil
}

func (s *Sim) CheckAndUpdateFunding(ctx context.Context, address string) (FundingStatus, error) {
	balance, err := s.GetAccountBalance(ctx, address)
	if err != nil {
		return FundingStatus{Address: address, Balance: "0"}, err
	}
	return FundingStatus{
		Address:  address,
		Balance:  balance,
		IsFunded: ParseAmount(balance) >= s.fundingThreshold,
	}, nil
}

func (s *Sim) SendPayment(_ context.Context, from Credential, to string, amount float64) (PaymentResult, error) {
	if amount <= 0 {
		return PaymentResult{}, fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(to) == "" {
		return PaymentResult{}, fmt.Errorf("missing destination")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.secrets[from.Address]
	if !ok || secret != from.Secret {
		return PaymentResult{}, fmt.Errorf("cannot sign for %s", from.Address)
	}

	need := unitsToDrops(amount) + simFeeDrops
	if s.balances[from.Address] < need {
		return PaymentResult{Success: false, ResultCode: "tecUNFUNDED_PAYMENT"}, nil
	}

	s.seq++
	s.balances[from.Address] -= need
	s.balances[to] += unitsToDrops(amount)

	hash := strings.ToUpper(keccakHex(fmt.Sprintf("%s|%s|%d|%d", from.Address, to, unitsToDrops(amount), s.seq)))
	return PaymentResult{Success: true, TxHash: hash, ResultCode: "tesSUCCESS"}, nil
}

// SetBalance overrides an account balance in units. Test hook.
func (s *Sim) SetBalance(address string, units float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = unitsToDrops(units)
}

func keccakHex(input string) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}
