package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iutility/internal/config"
	"iutility/internal/handler"
	"iutility/internal/infrastructure/cache"
	"iutility/internal/infrastructure/database"
	"iutility/internal/infrastructure/mq"
	"iutility/internal/job"
	"iutility/internal/provider"
	"iutility/internal/repository"
	"iutility/internal/service"
	"iutility/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	workerID := flag.Int64("worker-id", 1, "snowflake worker ID, unique per instance")
	flag.Parse()

	cfg := config.LoadConfig(*configPath)
	idgen.Init(*workerID)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	if err := os.MkdirAll(cfg.Business.ReceiptDir, 0o755); err != nil {
		log.Fatalf("failed to create receipt directory: %v", err)
	}

	registry := provider.NewRegistry(&cfg.Providers)
	notifier := service.NewOutboxNotifier(db, &cfg.Kafka.Topic)

	walletSvc := service.NewWalletService(db)
	clientSvc := service.NewClientService(db)
	purchaseSvc := service.NewPurchaseService(db, registry, walletSvc, notifier)
	topUpSvc := service.NewTopUpService(db, redisClient, walletSvc, notifier)
	apiKeySvc := service.NewApiKeyService(db)

	h := handler.NewHandler(
		clientSvc,
		walletSvc,
		purchaseSvc,
		topUpSvc,
		apiKeySvc,
		repository.NewUtilityTransactionRepository(db),
		registry,
		cfg.Business.ReceiptDir,
	)
	gate := handler.NewAccessGate(
		repository.NewApiKeyRepository(db),
		repository.NewClientRepository(db),
		repository.NewApiUsageRepository(db),
		notifier,
		redisClient,
		time.Duration(cfg.Business.APIKeyCacheSeconds)*time.Second,
		cfg.Business.EnforceIPAllowlist,
	)

	outboxSender := job.NewOutboxSender(db, 5*time.Second, cfg.Business.MaxRetryCount)
	outboxSender.Start()
	defer outboxSender.Stop()

	balanceMonitor := job.NewBalanceMonitor(db, registry, notifier,
		time.Duration(cfg.Business.BalanceCheckMinutes)*time.Minute)
	balanceMonitor.Start()
	defer balanceMonitor.Stop()

	pendingTimeout := time.Duration(cfg.Business.PendingTimeoutMinutes) * time.Minute
	pendingSweeper := job.NewPendingSweeper(db, notifier, pendingTimeout, time.Minute)
	pendingSweeper.Start()
	defer pendingSweeper.Stop()

	router := handler.SetupRouter(h, gate)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
