package provider

import (
	"context"
	"testing"

	"iutility/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	return &PurchaseResult{Success: true}, nil
}

func (s *stubAdapter) CheckBalance(ctx context.Context) (*BalanceResult, error) {
	return &BalanceResult{}, nil
}

func TestRegistryAirtimeAlwaysGamSwitch(t *testing.T) {
	gs := &stubAdapter{name: NameGamSwitch}
	nw := &stubAdapter{name: NameNawec}
	registry := NewRegistryWithAdapters(gs, nw, NameNawec)

	adapter, err := registry.ForService(model.ServiceAirtime, "")
	require.NoError(t, err)
	assert.Equal(t, NameGamSwitch, adapter.Name())

	// The override is ignored for airtime.
	adapter, err = registry.ForService(model.ServiceAirtime, NameNawec)
	require.NoError(t, err)
	assert.Equal(t, NameGamSwitch, adapter.Name())
}

func TestRegistryCashpowerDefaultAndOverride(t *testing.T) {
	gs := &stubAdapter{name: NameGamSwitch}
	nw := &stubAdapter{name: NameNawec}
	registry := NewRegistryWithAdapters(gs, nw, NameNawec)

	adapter, err := registry.ForService(model.ServiceCashpower, "")
	require.NoError(t, err)
	assert.Equal(t, NameNawec, adapter.Name(), "configured default wins when no override")

	adapter, err = registry.ForService(model.ServiceCashpower, NameGamSwitch)
	require.NoError(t, err)
	assert.Equal(t, NameGamSwitch, adapter.Name())

	_, err = registry.ForService(model.ServiceCashpower, "africell")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistryUnknownService(t *testing.T) {
	registry := NewRegistryWithAdapters(&stubAdapter{name: NameGamSwitch}, &stubAdapter{name: NameNawec}, NameNawec)
	_, err := registry.ForService("sms", "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
