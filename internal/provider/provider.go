package provider

import (
	"context"
	"errors"
	"fmt"

	"iutility/internal/config"
	"iutility/internal/model"

	"github.com/shopspring/decimal"
)

// PurchaseRequest is the normalized input every adapter accepts.
type PurchaseRequest struct {
	Type        string // airtime | cashpower
	Destination string // phone number (airtime) or meter number (cashpower)
	Amount      decimal.Decimal
	Network     string // provider network code, adapter default when empty
	Reference   string // our transaction reference, passed upstream
}

// PurchaseResult is the outcome contract of an upstream call. Success=false
// means the provider rejected the request; a transport failure is returned
// as an error instead.
type PurchaseResult struct {
	Success           bool
	ProviderReference string
	Token             string // cashpower token, empty for airtime
	Units             string // kWh delivered, cashpower only
	ErrorType         string // model.ErrorType* category
	ErrorMessage      string
}

// BalanceResult reports the float balance we hold with an upstream provider.
type BalanceResult struct {
	Balance  decimal.Decimal
	Currency string
}

// Adapter is the contract every upstream provider must satisfy. Signature
// and token mechanics stay inside the adapter.
type Adapter interface {
	Name() string
	Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error)
	CheckBalance(ctx context.Context) (*BalanceResult, error)
}

const (
	NameGamSwitch = "gamswitch"
	NameNawec     = "nawec"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Registry holds the closed set of configured adapters and picks one per
// purchase. Airtime always goes to GamSwitch; cashpower defaults from
// configuration with an explicit per-request override allowed.
type Registry struct {
	gamswitch        Adapter
	nawec            Adapter
	defaultCashpower string
}

func NewRegistry(cfg *config.ProvidersConfig) *Registry {
	return &Registry{
		gamswitch:        NewGamSwitchAdapter(&cfg.GamSwitch),
		nawec:            NewNawecAdapter(&cfg.Nawec),
		defaultCashpower: cfg.DefaultCashpower,
	}
}

// NewRegistryWithAdapters wires pre-built adapters. Used by tests to inject
// doubles.
func NewRegistryWithAdapters(gamswitch, nawec Adapter, defaultCashpower string) *Registry {
	return &Registry{
		gamswitch:        gamswitch,
		nawec:            nawec,
		defaultCashpower: defaultCashpower,
	}
}

// ForService resolves the adapter for a service type. override names a
// provider explicitly; empty picks the configured default.
func (r *Registry) ForService(service, override string) (Adapter, error) {
	switch service {
	case model.ServiceAirtime:
		return r.gamswitch, nil
	case model.ServiceCashpower:
		name := override
		if name == "" {
			name = r.defaultCashpower
		}
		switch name {
		case NameGamSwitch:
			return r.gamswitch, nil
		case NameNawec, "":
			return r.nawec, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return nil, fmt.Errorf("%w: service %s", ErrUnknownProvider, service)
}

// All returns every configured adapter, for balance reporting.
func (r *Registry) All() []Adapter {
	return []Adapter{r.gamswitch, r.nawec}
}
