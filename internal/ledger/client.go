package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client talks JSON-RPC to a rippled-style endpoint and uses the testnet
// faucet for account creation. One Client is shared by the whole process.
type Client struct {
	rpcURL     string
	faucetURL  string
	network    string
	httpClient *http.Client

	fundingThreshold float64
	fundAttempts     int
	fundBackoff      time.Duration

	connected bool
}

type ClientOptions struct {
	RPCURL           string
	FaucetURL        string
	Network          string
	FundingThreshold float64
	FundAttempts     int
	FundBackoff      time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.RPCURL) == "" {
		return nil, fmt.Errorf("missing LEDGER_RPC_URL")
	}
	if opts.FundingThreshold <= 0 {
		opts.FundingThreshold = 10
	}
	if opts.FundAttempts <= 0 {
		opts.FundAttempts = 10
	}
	if opts.FundBackoff <= 0 {
		opts.FundBackoff = 2 * time.Second
	}
	return &Client{
		rpcURL:           strings.TrimSpace(opts.RPCURL),
		faucetURL:        strings.TrimSpace(opts.FaucetURL),
		network:          opts.Network,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		fundingThreshold: opts.FundingThreshold,
		fundAttempts:     opts.FundAttempts,
		fundBackoff:      opts.FundBackoff,
	}, nil
}

// Connect verifies the endpoint answers. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}
	var out json.RawMessage
	if err := c.rpc(ctx, "server_info", map[string]any{}, &out); err != nil {
		return fmt.Errorf("ledger connect: %w", err)
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect(_ context.Context) error {
	c.connected = false
	return nil
}

type accountInfoResult struct {
	AccountData struct {
		Balance string `json:"Balance"`
	} `json:"account_data"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *Client) GetAccountBalance(ctx context.Context, address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", fmt.Errorf("missing address")
	}
	var res accountInfoResult
	err := c.rpc(ctx, "account_info", map[string]any{
		"account":      strings.TrimSpace(address),
		"ledger_index": "validated",
	}, &res)
	if err != nil {
		return "", err
	}
	// An account the ledger has never seen reads as zero, not an error.
	if res.Error == "actNotFound" {
		return "0", nil
	}
	if res.Status != "success" {
		return "", fmt.Errorf("account_info failed: %s", res.Error)
	}
	drops, err := strconv.ParseInt(res.AccountData.Balance, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed balance %q", res.AccountData.Balance)
	}
	return dropsToUnits(drops), nil
}

func (c *Client) CheckAndUpdateFunding(ctx context.Context, address string) (FundingStatus, error) {
	balance, err := c.GetAccountBalance(ctx, address)
	if err != nil {
		return FundingStatus{Address: address, Balance: "0"}, err
	}
	return FundingStatus{
		Address:  address,
		Balance:  balance,
		IsFunded: ParseAmount(balance) >= c.fundingThreshold,
	}, nil
}

type submitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	Status              string `json:"status"`
	Error               string `json:"error"`
	TxJSON              struct {
		Hash string `json:"hash"`
	} `json:"tx_json"`
}

// SendPayment submits a signed payment through the endpoint's
// sign-and-submit mode. A non-tesSUCCESS engine result comes back as an
// unsuccessful PaymentResult; transport and RPC errors are returned as
// errors.
func (c *Client) SendPayment(ctx context.Context, from Credential, to string, amount float64) (PaymentResult, error) {
	if strings.TrimSpace(from.Address) == "" || strings.TrimSpace(from.Secret) == "" {
		return PaymentResult{}, fmt.Errorf("missing sender credential")
	}
	if strings.TrimSpace(to) == "" {
		return PaymentResult{}, fmt.Errorf("missing destination")
	}
	if amount <= 0 {
		return PaymentResult{}, fmt.Errorf("amount must be positive")
	}

	var res submitResult
	err := c.rpc(ctx, "submit", map[string]any{
		"secret": from.Secret,
		"tx_json": map[string]any{
			"TransactionType": "Payment",
			"Account":         strings.TrimSpace(from.Address),
			"Destination":     strings.TrimSpace(to),
			"Amount":          strconv.FormatInt(unitsToDrops(amount), 10),
		},
	}, &res)
	if err != nil {
		return PaymentResult{}, err
	}
	if res.Status != "success" {
		return PaymentResult{}, fmt.Errorf("submit failed: %s", res.Error)
	}
	return PaymentResult{
		Success:    res.EngineResult == "tesSUCCESS",
		TxHash:     res.TxJSON.Hash,
		ResultCode: res.EngineResult,
	}, nil
}

type faucetResponse struct {
	Account struct {
		ClassicAddress string `json:"classicAddress"`
		Address        string `json:"address"`
		Secret         string `json:"secret"`
	} `json:"account"`
	Balance float64 `json:"balance"`
}

// CreateAccount asks the faucet for a funded account, then polls until
// the funding lands (faucet credits are asynchronous). Polling is
// best-effort: bounded attempts with a fixed backoff, and the account is
// returned even if funding has not shown up yet.
func (c *Client) CreateAccount(ctx context.Context, label string) (Account, error) {
	if c.faucetURL == "" {
		return Account{}, fmt.Errorf("missing LEDGER_FAUCET_URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.faucetURL, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return Account{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Account{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Account{}, fmt.Errorf("faucet returned status %d", resp.StatusCode)
	}

	var payload faucetResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Account{}, err
	}
	address := payload.Account.ClassicAddress
	if address == "" {
		address = payload.Account.Address
	}
	if address == "" || payload.Account.Secret == "" {
		return Account{}, fmt.Errorf("faucet response missing account material")
	}

	account := Account{
		Address:    address,
		Credential: Credential{Address: address, Secret: payload.Account.Secret},
		Balance:    "0",
		Label:      label,
		Network:    c.network,
	}

	for attempt := 0; attempt < c.fundAttempts; attempt++ {
		status, err := c.CheckAndUpdateFunding(ctx, address)
		if err == nil && status.IsFunded {
			account.Balance = status.Balance
			return account, nil
		}
		select {
		case <-ctx.Done():
			return account, ctx.Err()
		case <-time.After(c.fundBackoff):
		}
	}
	return account, nil
}

func (c *Client) rpc(ctx context.Context, method string, params map[string]any, out any) error {
	reqBody, _ := json.Marshal(map[string]any{
		"method": method,
		"params": []any{params},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	if len(payload.Result) == 0 {
		return fmt.Errorf("rpc empty result")
	}
	return json.Unmarshal(payload.Result, out)
}
