package job

import (
	"context"
	"log"
	"time"

	"iutility/internal/provider"
	"iutility/internal/repository"
	"iutility/internal/service"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const walletBatchSize = 200

// providerFloatFloor is the minimum float, in dalasi, we expect to hold with
// an upstream provider before purchases start bouncing.
var providerFloatFloor = decimal.NewFromInt(5000)

// BalanceMonitor periodically checks two things: client wallets that fell
// below their own low-balance threshold, and our float balance with each
// upstream provider.
type BalanceMonitor struct {
	walletRepo *repository.WalletRepository
	registry   *provider.Registry
	notifier   service.Notifier
	interval   time.Duration
	stopCh     chan struct{}
}

func NewBalanceMonitor(db *gorm.DB, registry *provider.Registry, notifier service.Notifier, interval time.Duration) *BalanceMonitor {
	return &BalanceMonitor{
		walletRepo: repository.NewWalletRepository(db),
		registry:   registry,
		notifier:   notifier,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

func (m *BalanceMonitor) Start() {
	go m.run()
	log.Printf("[BalanceMonitor] started, interval=%v", m.interval)
}

func (m *BalanceMonitor) Stop() {
	close(m.stopCh)
}

func (m *BalanceMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkWallets()
			m.checkProviders()
		case <-m.stopCh:
			log.Println("[BalanceMonitor] stopped")
			return
		}
	}
}

func (m *BalanceMonitor) checkWallets() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wallets, err := m.walletRepo.ListBelowThreshold(ctx, walletBatchSize)
	if err != nil {
		log.Printf("[BalanceMonitor] list wallets failed: %v", err)
		return
	}

	for _, wallet := range wallets {
		m.notifier.NotifyClientEvent(ctx, wallet.ClientID, service.EventLowBalance, map[string]interface{}{
			"balance":   wallet.Balance.StringFixed(2),
			"threshold": wallet.LowBalanceThreshold.StringFixed(2),
		})
	}
}

func (m *BalanceMonitor) checkProviders() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, adapter := range m.registry.All() {
		result, err := adapter.CheckBalance(ctx)
		if err != nil {
			m.notifier.NotifyOperators(ctx, service.AlertProviderBalance, map[string]interface{}{
				"provider": adapter.Name(),
				"error":    err.Error(),
			})
			continue
		}

		if result.Balance.LessThan(providerFloatFloor) {
			m.notifier.NotifyOperators(ctx, service.AlertProviderBalance, map[string]interface{}{
				"provider": adapter.Name(),
				"balance":  result.Balance.StringFixed(2),
				"currency": result.Currency,
			})
		}
	}
}
