package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"donationpay/internal/handler"
	"donationpay/internal/infrastructure/cache"
	"donationpay/internal/infrastructure/lock"
	"donationpay/internal/infrastructure/mq"
	"donationpay/internal/job"
	"donationpay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the background jobs",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer publisher.Close()

	client, err := service.NewGatewayClient(cfg)
	if err != nil {
		return err
	}

	locker := lock.NewRedisLocker(
		redisClient,
		time.Duration(cfg.Business.LockTTLSeconds)*time.Second,
		time.Duration(cfg.Business.LockRetryIntervalMs)*time.Millisecond,
		cfg.Business.LockMaxRetries,
	)
	svc := service.NewServices(db, cfg, locker, client, service.DefaultWebhookSources(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	expiryJob := job.NewDonationExpiryJob(svc.Donation, cfg)
	go expiryJob.Start(ctx)

	auditJob := job.NewCampaignAuditJob(svc.Campaign, cfg)
	go auditJob.Start(ctx)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	checks := map[string]handler.ReadinessCheck{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	router := handler.SetupRouter(handler.NewHandler(svc, checks), cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[Server] listening on port %d, gateway=%s", cfg.Server.Port, cfg.Gateway.Provider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Println("[Server] shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] shutdown error: %v", err)
	}

	log.Println("[Server] stopped")
	return nil
}
