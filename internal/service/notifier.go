package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"iutility/internal/config"
	"iutility/internal/model"
	"iutility/internal/repository"

	"gorm.io/gorm"
)

// Client-facing event and error notification types.
const (
	EventTopUpApproved   = "TOPUP_APPROVED"
	EventTopUpRejected   = "TOPUP_REJECTED"
	EventPurchaseFailed  = "PURCHASE_FAILED"
	EventLowBalance      = "LOW_BALANCE"
	AlertReconciliation  = "RECONCILIATION_GAP"
	AlertProviderBalance = "PROVIDER_BALANCE_LOW"
)

// Notifier is the notification sink. Every method is best-effort: failures
// are logged and swallowed, never returned, so notification problems cannot
// fail or slow the caller's response.
type Notifier interface {
	NotifyClientError(ctx context.Context, clientID, errorType, detail string, data map[string]interface{})
	NotifyClientEvent(ctx context.Context, clientID, eventType string, data map[string]interface{})
	NotifyOperators(ctx context.Context, alertType string, data map[string]interface{})
}

// OutboxNotifier hands notifications to the transactional outbox, from where
// the relay job moves them onto Kafka. The email worker consuming the topics
// lives outside this service.
type OutboxNotifier struct {
	outboxRepo *repository.OutboxRepository
	cfg        *config.KafkaTopicConfig
}

func NewOutboxNotifier(db *gorm.DB, cfg *config.KafkaTopicConfig) *OutboxNotifier {
	return &OutboxNotifier{
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
	}
}

func (n *OutboxNotifier) NotifyClientError(ctx context.Context, clientID, errorType, detail string, data map[string]interface{}) {
	payload := map[string]interface{}{
		"client_id":  clientID,
		"kind":       "error",
		"error_type": errorType,
		"detail":     detail,
		"data":       data,
		"at":         time.Now().Format(time.RFC3339),
	}
	n.enqueue(ctx, n.cfg.ClientNotifications, clientID, payload)
}

func (n *OutboxNotifier) NotifyClientEvent(ctx context.Context, clientID, eventType string, data map[string]interface{}) {
	payload := map[string]interface{}{
		"client_id":  clientID,
		"kind":       "event",
		"event_type": eventType,
		"data":       data,
		"at":         time.Now().Format(time.RFC3339),
	}
	n.enqueue(ctx, n.cfg.ClientNotifications, clientID, payload)
}

func (n *OutboxNotifier) NotifyOperators(ctx context.Context, alertType string, data map[string]interface{}) {
	payload := map[string]interface{}{
		"kind":       "alert",
		"alert_type": alertType,
		"data":       data,
		"at":         time.Now().Format(time.RFC3339),
	}
	n.enqueue(ctx, n.cfg.OperatorAlerts, alertType, payload)
}

func (n *OutboxNotifier) enqueue(ctx context.Context, topic, key string, payload map[string]interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Notifier] marshal payload failed: %v", err)
		return
	}

	msg := &model.NotificationOutbox{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(raw),
		Status:     model.OutboxStatusPending,
	}
	if err := n.outboxRepo.Create(ctx, nil, msg); err != nil {
		log.Printf("[Notifier] enqueue failed: topic=%s key=%s err=%v", topic, key, err)
	}
}
