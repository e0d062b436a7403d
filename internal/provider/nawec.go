package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"iutility/internal/config"
	"iutility/internal/model"

	"github.com/shopspring/decimal"
)

// NawecAdapter vends electricity tokens directly against the NAWEC API.
// Auth is an OAuth2 password grant; the bearer token is cached and refreshed
// shortly before expiry. Cashpower only.
type NawecAdapter struct {
	baseURL      string
	username     string
	password     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewNawecAdapter(cfg *config.NawecConfig) *NawecAdapter {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NawecAdapter{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

func (a *NawecAdapter) Name() string {
	return NameNawec
}

type nawecTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type nawecVendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
	Receipt   string `json:"receipt"`
	Token     string `json:"token"`
	Units     string `json:"units"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
}

func (a *NawecAdapter) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	if req.Type != model.ServiceCashpower {
		return nil, fmt.Errorf("nawec: unsupported service %q", req.Type)
	}

	body := map[string]string{
		"meter_number": req.Destination,
		"amount":       req.Amount.StringFixed(2),
		"reference":    req.Reference,
	}

	var resp nawecVendResponse
	if err := a.post(ctx, "/api/vend", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return &PurchaseResult{
			Success:      false,
			ErrorType:    categorizeNawecError(resp.ErrorCode),
			ErrorMessage: resp.Message,
		}, nil
	}

	return &PurchaseResult{
		Success:           true,
		ProviderReference: resp.Receipt,
		Token:             resp.Token,
		Units:             resp.Units,
	}, nil
}

func (a *NawecAdapter) CheckBalance(ctx context.Context) (*BalanceResult, error) {
	var resp nawecVendResponse
	if err := a.post(ctx, "/api/account/balance", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("nawec balance check rejected: %s", resp.Message)
	}

	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return nil, fmt.Errorf("nawec returned unparseable balance %q: %w", resp.Balance, err)
	}

	currency := resp.Currency
	if currency == "" {
		currency = "GMD"
	}
	return &BalanceResult{Balance: balance, Currency: currency}, nil
}

func (a *NawecAdapter) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("nawec: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("nawec: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("nawec: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("nawec: read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusUnauthorized {
		// Token invalidated upstream; drop the cache so the next call
		// re-authenticates.
		a.mu.Lock()
		a.accessToken = ""
		a.mu.Unlock()
		return fmt.Errorf("nawec: unauthorized")
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("nawec: upstream returned %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("nawec: decode response: %w", err)
	}
	return nil
}

// token returns a cached bearer token, fetching a fresh one through the
// password grant when missing or within 30s of expiry.
func (a *NawecAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Add(30*time.Second).Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", a.username)
	form.Set("password", a.password)
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("nawec: build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("nawec: token request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nawec: token endpoint returned %d", httpResp.StatusCode)
	}

	var tokenResp nawecTokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("nawec: decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("nawec: empty access token")
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

func categorizeNawecError(code string) string {
	switch code {
	case "INVALID_METER", "METER_NOT_FOUND", "METER_BLOCKED":
		return model.ErrorTypeMeterValidation
	case "", "INTERNAL":
		return model.ErrorTypeService
	default:
		return model.ErrorTypeProvider
	}
}
