package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"iutility/internal/model"
	"iutility/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTopUpStore keeps requests in memory and enforces the same pending-only
// guard as the real repository. The mutex stands in for the atomicity of the
// conditional UPDATE.
type fakeTopUpStore struct {
	mu   sync.Mutex
	reqs map[string]*model.ClientTopUpRequest
}

func newFakeTopUpStore() *fakeTopUpStore {
	return &fakeTopUpStore{reqs: map[string]*model.ClientTopUpRequest{}}
}

func (f *fakeTopUpStore) Create(ctx context.Context, req *model.ClientTopUpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	stored := *req
	f.reqs[req.ID] = &stored
	return nil
}

func (f *fakeTopUpStore) GetByID(ctx context.Context, id string) (*model.ClientTopUpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil, repository.ErrTopUpNotFound
	}
	copied := *req
	return &copied, nil
}

func (f *fakeTopUpStore) MarkApproved(ctx context.Context, tx *gorm.DB, id, adminID string, approvedAmount decimal.Decimal, adminNotes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.Status != model.TopUpStatusPending {
		return repository.ErrTopUpNotPending
	}
	now := time.Now()
	req.Status = model.TopUpStatusApproved
	req.ApprovedAmount = &approvedAmount
	req.AdminNotes = adminNotes
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	return nil
}

func (f *fakeTopUpStore) MarkRejected(ctx context.Context, id, adminID, rejectionReason, adminNotes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.Status != model.TopUpStatusPending {
		return repository.ErrTopUpNotPending
	}
	now := time.Now()
	req.Status = model.TopUpStatusRejected
	req.RejectionReason = rejectionReason
	req.AdminNotes = adminNotes
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	return nil
}

func (f *fakeTopUpStore) DeletePending(ctx context.Context, id, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.ClientID != clientID || req.Status != model.TopUpStatusPending {
		return repository.ErrTopUpNotPending
	}
	delete(f.reqs, id)
	return nil
}

func (f *fakeTopUpStore) List(ctx context.Context, filter repository.TopUpFilter, page, pageSize int) ([]*model.ClientTopUpRequest, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ClientTopUpRequest
	for _, req := range f.reqs {
		if filter.ClientID != "" && req.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		copied := *req
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func testReceipt() *ReceiptFile {
	return &ReceiptFile{
		FileName: "deposit.jpg",
		FilePath: "/tmp/receipts/deposit.jpg",
		FileSize: 1024,
		MimeType: "image/jpeg",
	}
}

func newTopUpFixture() (*TopUpService, *fakeTopUpStore, *fakeLedger, *fakeNotifier) {
	store := newFakeTopUpStore()
	ledger := &fakeLedger{balance: decimal.Zero}
	notifier := &fakeNotifier{}
	svc := NewTopUpServiceWithDeps(store, ledger, notifier, passthroughTx)
	return svc, store, ledger, notifier
}

func TestTopUpCreateRequiresReceipt(t *testing.T) {
	svc, _, _, _ := newTopUpFixture()

	_, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", nil)
	assert.ErrorIs(t, err, ErrReceiptRequired)

	_, err = svc.Create(context.Background(), "client-1", decimal.NewFromInt(-5), "bank_transfer", "BT-1", "", testReceipt())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "first deposit", testReceipt())
	require.NoError(t, err)
	assert.Equal(t, model.TopUpStatusPending, req.Status)
	assert.NotEmpty(t, req.RequestNo)
}

func TestTopUpApproveCreditsWalletOnce(t *testing.T) {
	svc, _, ledger, notifier := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), req.ID, "admin-1", decimal.NewFromInt(500), "verified")
	require.NoError(t, err)

	assert.Equal(t, model.TopUpStatusApproved, result.Request.Status)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(500)))
	require.Len(t, ledger.credits, 1)
	assert.True(t, ledger.credits[0].Equal(decimal.NewFromInt(500)))

	require.Len(t, notifier.clientEvents, 1)
	assert.Equal(t, EventTopUpApproved, notifier.clientEvents[0].kind)
}

func TestTopUpApproveIsTerminal(t *testing.T) {
	svc, _, ledger, _ := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID, "admin-1", decimal.NewFromInt(500), "")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID, "admin-2", decimal.NewFromInt(500), "")
	assert.ErrorIs(t, err, ErrWorkflowConflict)
	assert.Len(t, ledger.credits, 1, "second approval must not credit again")

	_, err = svc.Reject(context.Background(), req.ID, "admin-2", "duplicate", "")
	assert.ErrorIs(t, err, ErrWorkflowConflict)
}

func TestTopUpApprovedAmountMayDifferFromRequested(t *testing.T) {
	svc, store, ledger, _ := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	// Bank slip showed 450, admin approves what was actually received.
	result, err := svc.Approve(context.Background(), req.ID, "admin-1", decimal.NewFromInt(450), "slip shows 450")
	require.NoError(t, err)

	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(450)))
	require.Len(t, ledger.credits, 1)
	assert.True(t, ledger.credits[0].Equal(decimal.NewFromInt(450)))

	stored, err := store.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ApprovedAmount)
	assert.True(t, stored.ApprovedAmount.Equal(decimal.NewFromInt(450)))
	assert.True(t, stored.RequestedAmount.Equal(decimal.NewFromInt(500)))
}

func TestTopUpRejectDoesNotCredit(t *testing.T) {
	svc, _, ledger, notifier := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), req.ID, "admin-1", "receipt unreadable", "")
	require.NoError(t, err)

	assert.Equal(t, model.TopUpStatusRejected, rejected.Status)
	assert.Equal(t, "receipt unreadable", rejected.RejectionReason)
	assert.Empty(t, ledger.credits)

	require.Len(t, notifier.clientEvents, 1)
	assert.Equal(t, EventTopUpRejected, notifier.clientEvents[0].kind)

	_, err = svc.Approve(context.Background(), req.ID, "admin-2", decimal.NewFromInt(500), "")
	assert.ErrorIs(t, err, ErrWorkflowConflict)
}

func TestTopUpDeleteOnlyPendingAndOnlyOwner(t *testing.T) {
	svc, _, _, _ := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	err = svc.Delete(context.Background(), req.ID, "client-2")
	assert.ErrorIs(t, err, ErrWorkflowConflict, "another client cannot withdraw the request")

	_, err = svc.Approve(context.Background(), req.ID, "admin-1", decimal.NewFromInt(500), "")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), req.ID, "client-1")
	assert.ErrorIs(t, err, ErrWorkflowConflict, "processed requests are immutable")
}

func TestTopUpConcurrentApprovalsCreditOnce(t *testing.T) {
	svc, _, ledger, _ := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), req.ID, "admin-1", decimal.NewFromInt(500), "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrWorkflowConflict)
		}
	}

	assert.Equal(t, 1, successes, "exactly one approval wins")
	assert.Equal(t, 1, ledger.creditCount())
	assert.True(t, ledger.currentBalance().Equal(decimal.NewFromInt(500)))
}

func TestTopUpApproveRejectsBadAmount(t *testing.T) {
	svc, _, _, _ := newTopUpFixture()

	req, err := svc.Create(context.Background(), "client-1", decimal.NewFromInt(500), "bank_transfer", "BT-1", "", testReceipt())
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID, "admin-1", decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
