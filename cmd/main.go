package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pbazhenov/lockerdesk/internal/config"
	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/kafka"
	"github.com/pbazhenov/lockerdesk/internal/logger"
	"github.com/pbazhenov/lockerdesk/internal/repository/postgresql"
	"github.com/pbazhenov/lockerdesk/internal/server"
	"github.com/pbazhenov/lockerdesk/internal/session"
	"github.com/pbazhenov/lockerdesk/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New()
	defer func() { _ = log.Sync() }()

	database, err := db.NewDb(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.EnsureAdmin(ctx, database); err != nil {
		return err
	}

	catalog, err := storage.ParseZones(cfg.Zones)
	if err != nil {
		return err
	}

	lockerRepo := postgresql.NewLockerRepo(database)
	lockRepo := postgresql.NewLockRepo(database)
	historyRepo := postgresql.NewHistoryRepo(database)
	userRepo := postgresql.NewUserRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo(database)

	inventory := storage.NewInventoryService(lockerRepo, historyRepo, database, log)
	if err := inventory.Init(ctx, catalog); err != nil {
		return err
	}

	lockService := storage.NewLockService(lockRepo, lockerRepo, historyRepo, cfg.LeaseDuration, log)

	sessionStore := session.NewStore(cfg.SessionDuration, log)
	sessionService := session.NewService(sessionStore, userRepo, log)

	var producer kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewWriterProducer(cfg.KafkaBrokers)
	} else {
		log.Info("no kafka brokers configured, audit events go to the service log")
		producer = kafka.NewLogProducer(log)
	}

	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
	}, log)

	auditSink := server.NewOutboxSink(outboxRepo, cfg.KafkaAuditTopic)
	auditManager := server.NewAuditManager(2, 10, 500*time.Millisecond, auditSink, log)

	srv := server.New(inventory, lockService, sessionService, auditManager, log)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Run(groupCtx, cfg.HTTPPort)
	})
	group.Go(func() error {
		lockService.RunSweeper(groupCtx, cfg.CleanupInterval)
		return nil
	})
	group.Go(func() error {
		sessionStore.RunSweeper(groupCtx, cfg.CleanupInterval)
		return nil
	})
	group.Go(func() error {
		publisher.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		publisher.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("lockerdesk started", zap.String("port", cfg.HTTPPort))

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("lockerdesk stopped")
	return nil
}
