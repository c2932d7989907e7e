package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/Ishaan29/terpspark-backend/internal/api"
	"github.com/Ishaan29/terpspark-backend/internal/audit"
	"github.com/Ishaan29/terpspark-backend/internal/auth"
	"github.com/Ishaan29/terpspark-backend/internal/config"
	"github.com/Ishaan29/terpspark-backend/internal/database/migrations"
	"github.com/Ishaan29/terpspark-backend/internal/event"
	eventredis "github.com/Ishaan29/terpspark-backend/internal/event/redis"
	"github.com/Ishaan29/terpspark-backend/internal/kafka"
	"github.com/Ishaan29/terpspark-backend/internal/logger"
	"github.com/Ishaan29/terpspark-backend/internal/notification"
	"github.com/Ishaan29/terpspark-backend/internal/promotion"
	"github.com/Ishaan29/terpspark-backend/internal/registration"
	regdb "github.com/Ishaan29/terpspark-backend/internal/registration/db"
	"github.com/Ishaan29/terpspark-backend/internal/ticket"
	"github.com/Ishaan29/terpspark-backend/internal/users"
	"github.com/Ishaan29/terpspark-backend/internal/waitlist"
	wldb "github.com/Ishaan29/terpspark-backend/internal/waitlist/db"
)

func connectDatabase(cfg *config.Config) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("[Database] Failed to open Postgres: %v", err)
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("[Database] Failed to connect to Postgres: %v", err)
	}
	log.Println("[Database] Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	bunDB := connectDatabase(cfg)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.Up(); err != nil {
		appLogger.Fatal("DATABASE", "Migrations failed: "+err.Error())
	}

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("REDIS", "Failed to connect to Redis: "+err.Error())
	}
	eventLock := eventredis.NewLock(redisClient, cfg.Redis.LockTTL)

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.RegistrationEvents, cfg.Kafka.Topics.WaitlistEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			appLogger.Warn("KAFKA", "Topic bootstrap failed: "+err.Error())
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.RegistrationEvents, cfg.Kafka.Topics.WaitlistEvents)
		defer producer.Close()
	}

	registrationStore := &regdb.DB{Bun: bunDB}
	waitlistStore := &wldb.DB{Bun: bunDB}
	userDirectory := &users.DB{Bun: bunDB}
	ledger := event.NewLedger(bunDB)
	auditSink := audit.NewSink(bunDB)
	notifier := notification.NewEmailService(cfg.Email, appLogger)
	qrGenerator := ticket.NewQRGenerator(cfg.Registration.QRSecret)

	promotionEngine := &promotion.Engine{
		Registrations: registrationStore,
		Waitlist:      waitlistStore,
		Events:        ledger,
		Users:         userDirectory,
		Lock:          eventLock,
		Notifier:      notifier,
		Audit:         auditSink,
		QR:            qrGenerator,
		TicketPrefix:  cfg.Registration.TicketPrefix,
		Logger:        appLogger,
	}
	registrationService := &registration.Service{
		Store:    registrationStore,
		Events:   ledger,
		Users:    userDirectory,
		Lock:     eventLock,
		Notifier: notifier,
		Audit:    auditSink,
		Promoter: promotionEngine,
		QR:       qrGenerator,
		Policy:   cfg.Registration,
		Logger:   appLogger,
	}
	waitlistService := &waitlist.Service{
		Store:         waitlistStore,
		Registrations: registrationStore,
		Events:        ledger,
		Users:         userDirectory,
		Lock:          eventLock,
		Notifier:      notifier,
		Audit:         auditSink,
		Logger:        appLogger,
	}
	if producer != nil {
		promotionEngine.Publisher = producer
		registrationService.Publisher = producer
		waitlistService.Publisher = producer
	}

	handler := &api.Handler{
		Registrations: registrationService,
		Waitlist:      waitlistService,
		Promotions:    promotionEngine,
		Logger:        appLogger,
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		handler.Routes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", "Registration service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	appLogger.Info("SERVER", "Registration service shutdown complete")
}
