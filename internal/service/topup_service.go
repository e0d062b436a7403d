package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"iutility/internal/infrastructure/lock"
	"iutility/internal/model"
	"iutility/internal/repository"
	"iutility/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrWorkflowConflict = errors.New("top-up request is no longer pending")
	ErrReceiptRequired  = errors.New("a payment receipt is required")
	ErrReceiptNotFound  = errors.New("receipt not found")
)

// topUpStore is the slice of the top-up repository the workflow needs.
type topUpStore interface {
	Create(ctx context.Context, req *model.ClientTopUpRequest) error
	GetByID(ctx context.Context, id string) (*model.ClientTopUpRequest, error)
	MarkApproved(ctx context.Context, tx *gorm.DB, id, adminID string, approvedAmount decimal.Decimal, adminNotes string) error
	MarkRejected(ctx context.Context, id, adminID, rejectionReason, adminNotes string) error
	DeletePending(ctx context.Context, id, clientID string) error
	List(ctx context.Context, filter repository.TopUpFilter, page, pageSize int) ([]*model.ClientTopUpRequest, int64, error)
}

// ReceiptFile is the stored receipt evidence attached to a request.
type ReceiptFile struct {
	FileName string
	FilePath string
	FileSize int64
	MimeType string
}

// ReceiptBlob is a receipt re-read from storage for transfer to an admin.
type ReceiptBlob struct {
	FileName string
	MimeType string
	Data     []byte
}

// ApprovalResult is returned to the approving admin.
type ApprovalResult struct {
	Request    *model.ClientTopUpRequest
	NewBalance decimal.Decimal
}

// TopUpService runs the top-up request state machine:
//
//	pending -> approved (credits the wallet) | rejected
//
// Both outcomes are terminal. A Redis lock serialises processing per request
// and the conditional status update in the repository enforces terminality
// even if the lock is lost.
type TopUpService struct {
	topups      topUpStore
	wallet      WalletLedger
	notifier    Notifier
	redisClient *redis.Client
	runTx       txRunner
}

func NewTopUpService(db *gorm.DB, redisClient *redis.Client, wallet WalletLedger, notifier Notifier) *TopUpService {
	return &TopUpService{
		topups:      repository.NewTopUpRepository(db),
		wallet:      wallet,
		notifier:    notifier,
		redisClient: redisClient,
		runTx:       gormTxRunner(db),
	}
}

// NewTopUpServiceWithDeps wires explicit collaborators for tests.
func NewTopUpServiceWithDeps(topups topUpStore, wallet WalletLedger, notifier Notifier, runTx txRunner) *TopUpService {
	return &TopUpService{
		topups:   topups,
		wallet:   wallet,
		notifier: notifier,
		runTx:    runTx,
	}
}

// Create submits a new funding request. The receipt is mandatory.
func (s *TopUpService) Create(ctx context.Context, clientID string, requestedAmount decimal.Decimal, paymentMethod, paymentReference, clientNotes string, receipt *ReceiptFile) (*model.ClientTopUpRequest, error) {
	if requestedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if receipt == nil || receipt.FilePath == "" {
		return nil, ErrReceiptRequired
	}

	req := &model.ClientTopUpRequest{
		RequestNo:        idgen.GenerateTopUpNo(),
		ClientID:         clientID,
		RequestedAmount:  requestedAmount,
		PaymentMethod:    paymentMethod,
		PaymentReference: paymentReference,
		ReceiptFileName:  receipt.FileName,
		ReceiptFilePath:  receipt.FilePath,
		ReceiptFileSize:  receipt.FileSize,
		ReceiptMimeType:  receipt.MimeType,
		Status:           model.TopUpStatusPending,
		ClientNotes:      clientNotes,
	}
	if err := s.topups.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create top-up request: %w", err)
	}
	return req, nil
}

// Approve moves a pending request to approved and credits the wallet with
// approvedAmount, which the admin may set below or above the requested
// amount. Wallet errors here surface directly: the caller is a trusted admin.
func (s *TopUpService) Approve(ctx context.Context, requestID, adminID string, approvedAmount decimal.Decimal, adminNotes string) (*ApprovalResult, error) {
	if approvedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	req, err := s.topups.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransitionTopUp(req.Status, model.TopUpStatusApproved) {
		return nil, ErrWorkflowConflict
	}

	unlock, err := s.acquireLock(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("top-up request is being processed: %w", err)
	}
	defer unlock()

	// Re-check under the lock; another admin may have won the race.
	req, err = s.topups.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransitionTopUp(req.Status, model.TopUpStatusApproved) {
		return nil, ErrWorkflowConflict
	}

	var newBalance decimal.Decimal
	err = s.runTx(func(tx *gorm.DB) error {
		if err := s.topups.MarkApproved(ctx, tx, requestID, adminID, approvedAmount, adminNotes); err != nil {
			if errors.Is(err, repository.ErrTopUpNotPending) {
				return ErrWorkflowConflict
			}
			return err
		}

		wallet, _, err := s.wallet.Credit(ctx, tx, req.ClientID, approvedAmount,
			fmt.Sprintf("top-up %s approved", req.RequestNo), req.RequestNo, &req.ID)
		if err != nil {
			return err
		}
		newBalance = wallet.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req.Status = model.TopUpStatusApproved
	req.ApprovedAmount = &approvedAmount
	req.AdminNotes = adminNotes
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now

	s.notifier.NotifyClientEvent(ctx, req.ClientID, EventTopUpApproved, map[string]interface{}{
		"request_no":      req.RequestNo,
		"approved_amount": approvedAmount.StringFixed(2),
		"new_balance":     newBalance.StringFixed(2),
	})

	log.Printf("[TopUp] approved: request=%s admin=%s amount=%s", req.RequestNo, adminID, approvedAmount.StringFixed(2))

	return &ApprovalResult{Request: req, NewBalance: newBalance}, nil
}

// Reject moves a pending request to rejected. No ledger mutation.
func (s *TopUpService) Reject(ctx context.Context, requestID, adminID, rejectionReason, adminNotes string) (*model.ClientTopUpRequest, error) {
	req, err := s.topups.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransitionTopUp(req.Status, model.TopUpStatusRejected) {
		return nil, ErrWorkflowConflict
	}

	unlock, err := s.acquireLock(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("top-up request is being processed: %w", err)
	}
	defer unlock()

	if err := s.topups.MarkRejected(ctx, requestID, adminID, rejectionReason, adminNotes); err != nil {
		if errors.Is(err, repository.ErrTopUpNotPending) {
			return nil, ErrWorkflowConflict
		}
		return nil, err
	}

	now := time.Now()
	req.Status = model.TopUpStatusRejected
	req.RejectionReason = rejectionReason
	req.AdminNotes = adminNotes
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now

	s.notifier.NotifyClientEvent(ctx, req.ClientID, EventTopUpRejected, map[string]interface{}{
		"request_no": req.RequestNo,
		"reason":     rejectionReason,
	})

	return req, nil
}

// Delete withdraws a pending request. Only the owning client may withdraw.
func (s *TopUpService) Delete(ctx context.Context, requestID, clientID string) error {
	req, err := s.topups.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.topups.DeletePending(ctx, requestID, clientID); err != nil {
		if errors.Is(err, repository.ErrTopUpNotPending) {
			return ErrWorkflowConflict
		}
		return err
	}

	// Receipt file cleanup is best-effort; the row is already gone.
	if req.ReceiptFilePath != "" {
		if err := os.Remove(req.ReceiptFilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("[TopUp] failed to remove receipt %s: %v", req.ReceiptFilePath, err)
		}
	}
	return nil
}

// Receipt re-reads the stored receipt for transfer to an admin.
func (s *TopUpService) Receipt(ctx context.Context, requestID string) (*ReceiptBlob, error) {
	req, err := s.topups.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiptFilePath == "" {
		return nil, ErrReceiptNotFound
	}

	data, err := os.ReadFile(req.ReceiptFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("read receipt: %w", err)
	}

	return &ReceiptBlob{
		FileName: req.ReceiptFileName,
		MimeType: req.ReceiptMimeType,
		Data:     data,
	}, nil
}

// Get returns one request.
func (s *TopUpService) Get(ctx context.Context, requestID string) (*model.ClientTopUpRequest, error) {
	return s.topups.GetByID(ctx, requestID)
}

// List returns filtered requests for admin or client views.
func (s *TopUpService) List(ctx context.Context, filter repository.TopUpFilter, page, pageSize int) ([]*model.ClientTopUpRequest, int64, error) {
	return s.topups.List(ctx, filter, page, pageSize)
}

// acquireLock takes the per-request Redis lock. Without a Redis client (unit
// tests) the database status guard alone enforces terminality.
func (s *TopUpService) acquireLock(ctx context.Context, requestID string) (func(), error) {
	if s.redisClient == nil {
		return func() {}, nil
	}

	topupLock := lock.NewTopUpLock(s.redisClient, requestID, uuid.NewString())
	if err := topupLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, err
	}
	return func() {
		if err := topupLock.Unlock(context.Background()); err != nil {
			log.Printf("[TopUp] unlock failed for request %s: %v", requestID, err)
		}
	}, nil
}
