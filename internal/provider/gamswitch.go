package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"iutility/internal/config"
	"iutility/internal/model"

	"github.com/shopspring/decimal"
)

// GamSwitchAdapter talks to the GamSwitch aggregator. Requests carry a static
// API token plus an HMAC-SHA256 signature over the body and a timestamp.
// Handles both airtime and cashpower vending.
type GamSwitchAdapter struct {
	baseURL        string
	apiToken       string
	hmacSecret     string
	defaultNetwork string
	client         *http.Client
}

func NewGamSwitchAdapter(cfg *config.GamSwitchConfig) *GamSwitchAdapter {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GamSwitchAdapter{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:       cfg.APIToken,
		hmacSecret:     cfg.HMACSecret,
		defaultNetwork: cfg.DefaultNetwork,
		client:         &http.Client{Timeout: timeout},
	}
}

func (a *GamSwitchAdapter) Name() string {
	return NameGamSwitch
}

type gamswitchPurchaseBody struct {
	Service     string `json:"service"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Network     string `json:"network,omitempty"`
	Reference   string `json:"reference"`
}

type gamswitchResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
	Token     string `json:"token"`
	Units     string `json:"units"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	ErrorCode string `json:"error_code"`
}

func (a *GamSwitchAdapter) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	network := req.Network
	if network == "" && req.Type == model.ServiceAirtime {
		network = a.defaultNetwork
	}

	body := gamswitchPurchaseBody{
		Service:     req.Type,
		Destination: req.Destination,
		Amount:      req.Amount.StringFixed(2),
		Network:     network,
		Reference:   req.Reference,
	}

	path := "/api/v1/airtime/vend"
	if req.Type == model.ServiceCashpower {
		path = "/api/v1/cashpower/vend"
	}

	var resp gamswitchResponse
	if err := a.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "success" {
		return &PurchaseResult{
			Success:      false,
			ErrorType:    categorizeGamSwitchError(resp.ErrorCode),
			ErrorMessage: resp.Message,
		}, nil
	}

	return &PurchaseResult{
		Success:           true,
		ProviderReference: resp.Reference,
		Token:             resp.Token,
		Units:             resp.Units,
	}, nil
}

func (a *GamSwitchAdapter) CheckBalance(ctx context.Context) (*BalanceResult, error) {
	var resp gamswitchResponse
	if err := a.post(ctx, "/api/v1/account/balance", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("gamswitch balance check rejected: %s", resp.Message)
	}

	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return nil, fmt.Errorf("gamswitch returned unparseable balance %q: %w", resp.Balance, err)
	}

	currency := resp.Currency
	if currency == "" {
		currency = "GMD"
	}
	return &BalanceResult{Balance: balance, Currency: currency}, nil
}

func (a *GamSwitchAdapter) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gamswitch: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("gamswitch: build request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiToken)
	httpReq.Header.Set("X-Timestamp", timestamp)
	httpReq.Header.Set("X-Signature", a.sign(raw, timestamp))

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gamswitch: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("gamswitch: read response: %w", err)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gamswitch: upstream returned %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("gamswitch: decode response: %w", err)
	}
	return nil
}

// sign computes the request signature: hex(HMAC-SHA256(secret, timestamp + "." + body)).
func (a *GamSwitchAdapter) sign(body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(a.hmacSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func categorizeGamSwitchError(code string) string {
	switch code {
	case "INVALID_METER", "METER_NOT_FOUND":
		return model.ErrorTypeMeterValidation
	case "", "INTERNAL":
		return model.ErrorTypeService
	default:
		return model.ErrorTypeProvider
	}
}
