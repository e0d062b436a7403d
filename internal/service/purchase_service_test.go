package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"iutility/internal/model"
	"iutility/internal/provider"
	"iutility/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ---------- test doubles ----------

type fakeAdapter struct {
	name    string
	result  *provider.PurchaseResult
	err     error
	balance *provider.BalanceResult
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Purchase(ctx context.Context, req *provider.PurchaseRequest) (*provider.PurchaseResult, error) {
	return f.result, f.err
}

func (f *fakeAdapter) CheckBalance(ctx context.Context) (*provider.BalanceResult, error) {
	return f.balance, f.err
}

type fakeSelector struct {
	adapter provider.Adapter
	err     error
}

func (f *fakeSelector) ForService(service, override string) (provider.Adapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	debitErr error
	debits   []decimal.Decimal
	credits  []decimal.Decimal
}

func (f *fakeLedger) Credit(ctx context.Context, tx *gorm.DB, clientID string, amount decimal.Decimal, description, reference string, topUpRequestID *string) (*model.ClientWallet, *model.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, amount)
	f.balance = f.balance.Add(amount)
	return &model.ClientWallet{ClientID: clientID, Balance: f.balance}, &model.WalletTransaction{}, nil
}

func (f *fakeLedger) Debit(ctx context.Context, tx *gorm.DB, clientID string, amount decimal.Decimal, description string, utilityTxID *string) (*model.ClientWallet, *model.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return nil, nil, f.debitErr
	}
	if f.balance.LessThan(amount) {
		return nil, nil, repository.ErrInsufficientBalance
	}
	f.debits = append(f.debits, amount)
	f.balance = f.balance.Sub(amount)
	return &model.ClientWallet{ClientID: clientID, Balance: f.balance}, &model.WalletTransaction{}, nil
}

func (f *fakeLedger) BalanceOf(ctx context.Context, clientID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) currentBalance() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

func (f *fakeLedger) debitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.debits)
}

func (f *fakeLedger) creditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.credits)
}

type completion struct {
	id           string
	status       string
	providerRef  *string
	errorMessage string
}

type fakePurchaseStore struct {
	mu          sync.Mutex
	created     []*model.UtilityTransaction
	completions []completion
	createErr   error
}

func (f *fakePurchaseStore) Create(ctx context.Context, tx *gorm.DB, txn *model.UtilityTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	f.created = append(f.created, txn)
	return nil
}

func (f *fakePurchaseStore) Complete(ctx context.Context, tx *gorm.DB, id, status string, providerRef *string, errorMessage, metaData string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, completion{
		id:           id,
		status:       status,
		providerRef:  providerRef,
		errorMessage: errorMessage,
	})
	return nil
}

func (f *fakePurchaseStore) statusCounts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, c := range f.completions {
		counts[c.status]++
	}
	return counts
}

type notification struct {
	clientID string
	kind     string
	detail   string
}

type fakeNotifier struct {
	mu           sync.Mutex
	clientErrors []notification
	clientEvents []notification
	alerts       []string
}

func (f *fakeNotifier) NotifyClientError(ctx context.Context, clientID, errorType, detail string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientErrors = append(f.clientErrors, notification{clientID: clientID, kind: errorType, detail: detail})
}

func (f *fakeNotifier) NotifyClientEvent(ctx context.Context, clientID, eventType string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientEvents = append(f.clientEvents, notification{clientID: clientID, kind: eventType})
}

func (f *fakeNotifier) NotifyOperators(ctx context.Context, alertType string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alertType)
}

func passthroughTx(fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// ---------- fixtures ----------

func testClient() *model.Client {
	return &model.Client{ID: uuid.NewString(), Email: "shop@example.gm", IsActive: true}
}

func airtimeInput(client *model.Client, amount string) *PurchaseInput {
	return &PurchaseInput{
		Client:      client,
		ApiKeyID:    uuid.NewString(),
		Type:        model.ServiceAirtime,
		PhoneNumber: "+2207001122",
		Amount:      decimal.RequireFromString(amount),
		Network:     "gamcel",
	}
}

// ---------- tests ----------

func TestPurchaseSuccessDebitsWalletOnce(t *testing.T) {
	client := testClient()
	ledger := &fakeLedger{balance: decimal.NewFromInt(500)}
	store := &fakePurchaseStore{}
	notifier := &fakeNotifier{}
	adapter := &fakeAdapter{
		name:   provider.NameGamSwitch,
		result: &provider.PurchaseResult{Success: true, ProviderReference: "GS-123"},
	}

	svc := NewPurchaseServiceWithDeps(&fakeSelector{adapter: adapter}, ledger, store, notifier, passthroughTx)
	out, err := svc.Purchase(context.Background(), airtimeInput(client, "100"))

	require.NoError(t, err)
	assert.Equal(t, model.UtilityTxStatusSuccess, out.Status)
	assert.Equal(t, "GS-123", out.ProviderReference)
	assert.NotEmpty(t, out.TransactionReference)

	require.Len(t, ledger.debits, 1)
	assert.True(t, ledger.debits[0].Equal(decimal.NewFromInt(100)))
	assert.True(t, ledger.balance.Equal(decimal.NewFromInt(400)))

	require.Len(t, store.created, 1)
	require.Len(t, store.completions, 1)
	assert.Equal(t, model.UtilityTxStatusSuccess, store.completions[0].status)
	assert.Empty(t, notifier.clientErrors)
	assert.Empty(t, notifier.alerts)
}

func TestPurchaseProviderRejectionDoesNotDebit(t *testing.T) {
	client := testClient()
	ledger := &fakeLedger{balance: decimal.NewFromInt(500)}
	store := &fakePurchaseStore{}
	notifier := &fakeNotifier{}
	adapter := &fakeAdapter{
		name: provider.NameGamSwitch,
		result: &provider.PurchaseResult{
			Success:      false,
			ErrorType:    model.ErrorTypeProvider,
			ErrorMessage: "network busy",
		},
	}

	svc := NewPurchaseServiceWithDeps(&fakeSelector{adapter: adapter}, ledger, store, notifier, passthroughTx)
	_, err := svc.Purchase(context.Background(), airtimeInput(client, "100"))

	require.ErrorIs(t, err, ErrPurchaseFailed)
	assert.Empty(t, ledger.debits)
	assert.True(t, ledger.balance.Equal(decimal.NewFromInt(500)))

	require.Len(t, store.completions, 1)
	assert.Equal(t, model.UtilityTxStatusFail, store.completions[0].status)
	assert.Nil(t, store.completions[0].providerRef)

	require.Len(t, notifier.clientErrors, 1)
	assert.Equal(t, model.ErrorTypeProvider, notifier.clientErrors[0].kind)
}

func TestPurchaseTransportFailureDoesNotDebit(t *testing.T) {
	client := testClient()
	ledger := &fakeLedger{balance: decimal.NewFromInt(500)}
	store := &fakePurchaseStore{}
	notifier := &fakeNotifier{}
	adapter := &fakeAdapter{name: provider.NameNawec, err: errors.New("connection refused")}

	svc := NewPurchaseServiceWithDeps(&fakeSelector{adapter: adapter}, ledger, store, notifier, passthroughTx)
	_, err := svc.Purchase(context.Background(), &PurchaseInput{
		Client:      client,
		ApiKeyID:    uuid.NewString(),
		Type:        model.ServiceCashpower,
		MeterNumber: "01234567890",
		Amount:      decimal.NewFromInt(250),
	})

	require.ErrorIs(t, err, ErrPurchaseFailed)
	assert.Empty(t, ledger.debits)
	require.Len(t, store.completions, 1)
	assert.Equal(t, model.UtilityTxStatusFail, store.completions[0].status)
}

func TestPurchaseDebitFailureAfterProviderSuccessIsReconciliationGap(t *testing.T) {
	client := testClient()
	// Balance below the purchase amount: provider delivers, debit bounces.
	ledger := &fakeLedger{balance: decimal.NewFromInt(50)}
	store := &fakePurchaseStore{}
	notifier := &fakeNotifier{}
	adapter := &fakeAdapter{
		name:   provider.NameGamSwitch,
		result: &provider.PurchaseResult{Success: true, ProviderReference: "GS-999"},
	}

	svc := NewPurchaseServiceWithDeps(&fakeSelector{adapter: adapter}, ledger, store, notifier, passthroughTx)
	_, err := svc.Purchase(context.Background(), airtimeInput(client, "100"))

	require.ErrorIs(t, err, ErrPurchaseFailed)
	assert.True(t, ledger.balance.Equal(decimal.NewFromInt(50)), "no auto-reversal, balance untouched")

	require.Len(t, store.completions, 1)
	assert.Equal(t, model.UtilityTxStatusFail, store.completions[0].status)
	require.NotNil(t, store.completions[0].providerRef, "provider reference preserved for manual reconciliation")
	assert.Equal(t, "GS-999", *store.completions[0].providerRef)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, AlertReconciliation, notifier.alerts[0])
}

func TestPurchaseWritesExactlyOneRowPerAttempt(t *testing.T) {
	client := testClient()
	store := &fakePurchaseStore{}
	adapter := &fakeAdapter{
		name:   provider.NameGamSwitch,
		result: &provider.PurchaseResult{Success: false, ErrorType: model.ErrorTypeProvider},
	}
	svc := NewPurchaseServiceWithDeps(&fakeSelector{adapter: adapter},
		&fakeLedger{balance: decimal.NewFromInt(1000)}, store, &fakeNotifier{}, passthroughTx)

	for i := 0; i < 3; i++ {
		_, _ = svc.Purchase(context.Background(), airtimeInput(client, "10"))
	}

	require.Len(t, store.created, 3)
	refs := map[string]bool{}
	for _, txn := range store.created {
		refs[txn.TransactionReference] = true
	}
	assert.Len(t, refs, 3, "every attempt gets a fresh reference")
}

func TestConcurrentPurchasesNeverOverspend(t *testing.T) {
	client := testClient()
	// Balance covers three of the ten attempts.
	ledger := &fakeLedger{balance: decimal.NewFromInt(100)}
	store := &fakePurchaseStore{}
	adapter := &fakeAdapter{
		name:   provider.NameGamSwitch,
		result: &provider.PurchaseResult{Success: true, ProviderReference: "GS-1"},
	}
	svc := NewPurchaseServiceWithDeps(&fakeSelector{adapter: adapter}, ledger, store, &fakeNotifier{}, passthroughTx)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), airtimeInput(client, "30"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}

	assert.Equal(t, 3, successes)
	assert.Equal(t, 3, ledger.debitCount())
	assert.True(t, ledger.currentBalance().Equal(decimal.NewFromInt(10)))
	assert.False(t, ledger.currentBalance().IsNegative())

	counts := store.statusCounts()
	assert.Equal(t, 3, counts[model.UtilityTxStatusSuccess])
	assert.Equal(t, attempts-3, counts[model.UtilityTxStatusFail])
}

func TestPurchaseRejectsBadInput(t *testing.T) {
	svc := NewPurchaseServiceWithDeps(&fakeSelector{}, &fakeLedger{}, &fakePurchaseStore{}, &fakeNotifier{}, passthroughTx)

	_, err := svc.Purchase(context.Background(), &PurchaseInput{
		Client:      testClient(),
		Type:        model.ServiceAirtime,
		PhoneNumber: "+2207001122",
		Amount:      decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Purchase(context.Background(), &PurchaseInput{
		Client: testClient(),
		Type:   model.ServiceCashpower,
		Amount: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, ErrInvalidDestination)
}
