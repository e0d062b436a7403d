package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"iutility/internal/config"
	"iutility/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nawecConfig(baseURL string) *config.NawecConfig {
	return &config.NawecConfig{
		BaseURL:        baseURL,
		Username:       "vendor",
		Password:       "secret",
		ClientID:       "iutility",
		ClientSecret:   "cs",
		TimeoutSeconds: 5,
	}
}

func TestNawecCachesTokenAcrossCalls(t *testing.T) {
	tokenFetches := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenFetches++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			assert.Equal(t, "vendor", r.PostForm.Get("username"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-1",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case "/api/vend":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"receipt": "NW-1",
				"token":   "1111-2222-3333-4444",
				"units":   "21.7",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewNawecAdapter(nawecConfig(server.URL))
	req := &PurchaseRequest{
		Type:        model.ServiceCashpower,
		Destination: "01234567890",
		Amount:      decimal.NewFromInt(300),
		Reference:   "UTL20260101000000005",
	}

	for i := 0; i < 3; i++ {
		result, err := adapter.Purchase(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "NW-1", result.ProviderReference)
	}

	assert.Equal(t, 1, tokenFetches, "token fetched once, then served from cache")
}

func TestNawecDropsTokenOnUnauthorized(t *testing.T) {
	tokenFetches := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenFetches++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok",
				"expires_in":   3600,
			})
		case "/api/vend":
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	adapter := NewNawecAdapter(nawecConfig(server.URL))
	req := &PurchaseRequest{
		Type:        model.ServiceCashpower,
		Destination: "01234567890",
		Amount:      decimal.NewFromInt(300),
		Reference:   "UTL20260101000000006",
	}

	_, err := adapter.Purchase(context.Background(), req)
	assert.Error(t, err)

	_, err = adapter.Purchase(context.Background(), req)
	assert.Error(t, err)
	assert.Equal(t, 2, tokenFetches, "cache dropped after 401, second call re-authenticates")
}

func TestNawecRefusesAirtime(t *testing.T) {
	adapter := NewNawecAdapter(nawecConfig("http://unused"))
	_, err := adapter.Purchase(context.Background(), &PurchaseRequest{
		Type:        model.ServiceAirtime,
		Destination: "+2207001122",
		Amount:      decimal.NewFromInt(100),
	})
	assert.Error(t, err)
}

func TestNawecRejectionIsCategorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok",
				"expires_in":   3600,
			})
		case "/api/vend":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success":    false,
				"message":    "meter is blocked",
				"error_code": "METER_BLOCKED",
			})
		}
	}))
	defer server.Close()

	adapter := NewNawecAdapter(nawecConfig(server.URL))
	result, err := adapter.Purchase(context.Background(), &PurchaseRequest{
		Type:        model.ServiceCashpower,
		Destination: "01234567890",
		Amount:      decimal.NewFromInt(300),
		Reference:   "UTL20260101000000007",
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorTypeMeterValidation, result.ErrorType)
}
