package job

import (
	"context"
	"log"
	"time"

	"iutility/internal/infrastructure/mq"
	"iutility/internal/model"
	"iutility/internal/repository"

	"gorm.io/gorm"
)

const outboxBatchSize = 100

// OutboxSender drains the notification outbox onto Kafka. Messages are
// written to the outbox table in the same database as the state they
// describe, so a notification exists if and only if its triggering write
// committed; this job only moves them.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	interval   time.Duration
	maxRetry   int
	stopCh     chan struct{}
}

func NewOutboxSender(db *gorm.DB, interval time.Duration, maxRetry int) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		interval:   interval,
		maxRetry:   maxRetry,
		stopCh:     make(chan struct{}),
	}
}

func (s *OutboxSender) Start() {
	go s.run()
	log.Printf("[OutboxSender] started, interval=%v", s.interval)
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.drainOnce()
		case <-s.stopCh:
			log.Println("[OutboxSender] stopped")
			return
		}
	}
}

func (s *OutboxSender) drainOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages, err := s.outboxRepo.GetPendingMessages(ctx, outboxBatchSize)
	if err != nil {
		log.Printf("[OutboxSender] load pending failed: %v", err)
		return
	}

	for _, msg := range messages {
		if err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
			log.Printf("[OutboxSender] publish failed: id=%d topic=%s err=%v", msg.ID, msg.Topic, err)

			if msg.RetryCount+1 >= s.maxRetry {
				if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
					log.Printf("[OutboxSender] mark failed: id=%d err=%v", msg.ID, err)
				}
			} else if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
				log.Printf("[OutboxSender] bump retry failed: id=%d err=%v", msg.ID, err)
			}
			continue
		}

		if err := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); err != nil {
			// The message went out but the row still says pending; the next
			// tick will publish it again. Consumers must tolerate duplicates.
			log.Printf("[OutboxSender] mark sent failed: id=%d err=%v", msg.ID, err)
		}
	}
}
