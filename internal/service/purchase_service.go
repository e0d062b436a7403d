package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"iutility/internal/model"
	"iutility/internal/provider"
	"iutility/internal/repository"
	"iutility/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPurchaseFailed     = errors.New("purchase failed")
	ErrInvalidDestination = errors.New("destination is required")
)

// purchaseStore is the slice of the utility transaction repository the
// purchase pipeline needs.
type purchaseStore interface {
	Create(ctx context.Context, tx *gorm.DB, txn *model.UtilityTransaction) error
	Complete(ctx context.Context, tx *gorm.DB, id, status string, providerRef *string, errorMessage, metaData string) error
}

// providerSelector resolves the adapter for a purchase.
type providerSelector interface {
	ForService(service, override string) (provider.Adapter, error)
}

// txRunner executes fn inside one database transaction.
type txRunner func(fn func(tx *gorm.DB) error) error

func gormTxRunner(db *gorm.DB) txRunner {
	return func(fn func(tx *gorm.DB) error) error {
		return db.Transaction(fn)
	}
}

// PurchaseInput is one authorized purchase attempt. Client and ApiKeyID come
// from the access gate, already validated.
type PurchaseInput struct {
	Client      *model.Client
	ApiKeyID    string
	Type        string // airtime | cashpower
	PhoneNumber string // airtime
	MeterNumber string // cashpower
	Amount      decimal.Decimal
	Network     string
	Provider    string // explicit provider override, optional
	IPAddress   string
}

// PurchaseOutput is what a successful purchase returns to the integrator.
type PurchaseOutput struct {
	TransactionReference string          `json:"transaction_reference"`
	Status               string          `json:"status"`
	Amount               decimal.Decimal `json:"amount"`
	ProviderReference    string          `json:"provider_reference,omitempty"`
	Token                string          `json:"token,omitempty"`
	Units                string          `json:"units,omitempty"`
}

// PurchaseService drives one purchase attempt end to end:
//
//	received -> provider called -> provider failed | provider succeeded
//	         -> debit failed | debited -> recorded
//
// Exactly one UtilityTransaction row is written per attempt. The wallet is
// debited only after provider success, and a debit failure at that point is
// the accepted reconciliation gap: recorded as fail, escalated to operators,
// never auto-reversed.
type PurchaseService struct {
	providers providerSelector
	wallet    WalletLedger
	purchases purchaseStore
	notifier  Notifier
	runTx     txRunner
}

func NewPurchaseService(db *gorm.DB, providers *provider.Registry, wallet WalletLedger, notifier Notifier) *PurchaseService {
	return &PurchaseService{
		providers: providers,
		wallet:    wallet,
		purchases: repository.NewUtilityTransactionRepository(db),
		notifier:  notifier,
		runTx:     gormTxRunner(db),
	}
}

// NewPurchaseServiceWithDeps wires explicit collaborators. Used by tests to
// substitute doubles for the provider, ledger and store.
func NewPurchaseServiceWithDeps(providers providerSelector, wallet WalletLedger, purchases purchaseStore, notifier Notifier, runTx txRunner) *PurchaseService {
	return &PurchaseService{
		providers: providers,
		wallet:    wallet,
		purchases: purchases,
		notifier:  notifier,
		runTx:     runTx,
	}
}

func (s *PurchaseService) Purchase(ctx context.Context, in *PurchaseInput) (*PurchaseOutput, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	destination := in.PhoneNumber
	if in.Type == model.ServiceCashpower {
		destination = in.MeterNumber
	}
	if destination == "" {
		return nil, ErrInvalidDestination
	}

	// The reference exists before anything else so even a failed attempt is
	// traceable.
	reference := idgen.GenerateTransactionRef()

	txn := &model.UtilityTransaction{
		ClientID:             in.Client.ID,
		ApiKeyID:             in.ApiKeyID,
		Type:                 in.Type,
		NetworkCode:          in.Network,
		PhoneNumber:          in.PhoneNumber,
		MeterNumber:          in.MeterNumber,
		Amount:               in.Amount,
		TransactionReference: reference,
		Status:               model.UtilityTxStatusPending,
		MetaData:             mustJSON(map[string]interface{}{"ip": in.IPAddress}),
	}
	if err := s.purchases.Create(ctx, nil, txn); err != nil {
		return nil, fmt.Errorf("create transaction record: %w", err)
	}

	adapter, err := s.providers.ForService(in.Type, in.Provider)
	if err != nil {
		s.failPurchase(ctx, txn, nil, model.ErrorTypeService, err.Error())
		return nil, ErrPurchaseFailed
	}

	result, err := adapter.Purchase(ctx, &provider.PurchaseRequest{
		Type:        in.Type,
		Destination: destination,
		Amount:      in.Amount,
		Network:     in.Network,
		Reference:   reference,
	})
	if err != nil {
		// Transport-level failure: provider unreachable or timed out. No
		// ledger mutation has happened.
		s.failPurchase(ctx, txn, nil, model.ErrorTypeService, err.Error())
		return nil, ErrPurchaseFailed
	}
	if !result.Success {
		s.failPurchase(ctx, txn, nil, result.ErrorType, result.ErrorMessage)
		return nil, ErrPurchaseFailed
	}

	// Provider delivered. Debit the wallet and finalise the record in one
	// database transaction so a success row always has its ledger entry.
	metaData := mustJSON(map[string]interface{}{
		"ip":       in.IPAddress,
		"token":    result.Token,
		"units":    result.Units,
		"provider": adapter.Name(),
	})
	providerRef := result.ProviderReference

	err = s.runTx(func(tx *gorm.DB) error {
		if _, _, err := s.wallet.Debit(ctx, tx, in.Client.ID, in.Amount,
			fmt.Sprintf("%s purchase %s", in.Type, reference), &txn.ID); err != nil {
			return err
		}
		return s.purchases.Complete(ctx, tx, txn.ID, model.UtilityTxStatusSuccess, &providerRef, "", metaData)
	})
	if err != nil {
		// Reconciliation gap: the provider fulfilled delivery but the wallet
		// could not be debited. Record the failure, alert operators, leave
		// recovery to manual intervention.
		s.failPurchase(ctx, txn, &providerRef, model.ErrorTypeService, err.Error())
		s.notifier.NotifyOperators(ctx, AlertReconciliation, map[string]interface{}{
			"client_id":             in.Client.ID,
			"transaction_reference": reference,
			"provider_reference":    providerRef,
			"amount":                in.Amount.StringFixed(2),
			"error":                 err.Error(),
		})
		return nil, ErrPurchaseFailed
	}

	log.Printf("[Purchase] success: ref=%s client=%s type=%s amount=%s",
		reference, in.Client.ID, in.Type, in.Amount.StringFixed(2))

	return &PurchaseOutput{
		TransactionReference: reference,
		Status:               model.UtilityTxStatusSuccess,
		Amount:               in.Amount,
		ProviderReference:    providerRef,
		Token:                result.Token,
		Units:                result.Units,
	}, nil
}

// failPurchase finalises the attempt as failed and notifies the client
// out-of-band. The integrator response stays opaque.
func (s *PurchaseService) failPurchase(ctx context.Context, txn *model.UtilityTransaction, providerRef *string, errorType, detail string) {
	if err := s.purchases.Complete(ctx, nil, txn.ID, model.UtilityTxStatusFail, providerRef, detail, ""); err != nil {
		log.Printf("[Purchase] failed to finalise transaction %s: %v", txn.ID, err)
	}
	s.notifier.NotifyClientError(ctx, txn.ClientID, errorType, detail, map[string]interface{}{
		"transaction_reference": txn.TransactionReference,
		"type":                  txn.Type,
		"amount":                txn.Amount.StringFixed(2),
	})
}

func mustJSON(v map[string]interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
