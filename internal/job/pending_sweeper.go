package job

import (
	"context"
	"log"
	"time"

	"iutility/internal/model"
	"iutility/internal/repository"
	"iutility/internal/service"

	"gorm.io/gorm"
)

const sweeperBatchSize = 100

// PendingSweeper fails purchase rows stuck in pending longer than the
// timeout. A stale pending row means the process died between inserting the
// row and recording the provider outcome; the wallet was never debited, so
// failing the row is safe.
type PendingSweeper struct {
	txnRepo  *repository.UtilityTransactionRepository
	notifier service.Notifier
	timeout  time.Duration
	interval time.Duration
	stopCh   chan struct{}
}

func NewPendingSweeper(db *gorm.DB, notifier service.Notifier, timeout, interval time.Duration) *PendingSweeper {
	return &PendingSweeper{
		txnRepo:  repository.NewUtilityTransactionRepository(db),
		notifier: notifier,
		timeout:  timeout,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *PendingSweeper) Start() {
	go s.run()
	log.Printf("[PendingSweeper] started, timeout=%v interval=%v", s.timeout, s.interval)
}

func (s *PendingSweeper) Stop() {
	close(s.stopCh)
}

func (s *PendingSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			log.Println("[PendingSweeper] stopped")
			return
		}
	}
}

func (s *PendingSweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.timeout)
	stale, err := s.txnRepo.GetStalePending(ctx, cutoff, sweeperBatchSize)
	if err != nil {
		log.Printf("[PendingSweeper] load stale failed: %v", err)
		return
	}

	for _, txn := range stale {
		err := s.txnRepo.Complete(ctx, nil, txn.ID, model.UtilityTxStatusFail, nil,
			"timed out waiting for provider response", "")
		if err != nil {
			// Lost the race against a late completion; nothing to do.
			log.Printf("[PendingSweeper] skip %s: %v", txn.TransactionReference, err)
			continue
		}

		log.Printf("[PendingSweeper] failed stale purchase: ref=%s age=%v",
			txn.TransactionReference, time.Since(txn.CreatedAt).Round(time.Second))

		s.notifier.NotifyClientError(ctx, txn.ClientID, model.ErrorTypeService,
			"purchase timed out before completion", map[string]interface{}{
				"transaction_reference": txn.TransactionReference,
				"type":                  txn.Type,
				"amount":                txn.Amount.StringFixed(2),
			})
	}
}
