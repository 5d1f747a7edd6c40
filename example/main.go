package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/quillpost/outbox"
	"github.com/quillpost/outbox/handlers"
	"github.com/quillpost/outbox/storage/sqlstore"
)

const dbDSN = "root:password@tcp(localhost:3306)/outbox_db?parseTime=true"

// logMailer is a stand-in welcome email sender for the example run.
type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) Send(_ context.Context, payload handlers.MemberCreatedPayload) error {
	m.logger.Info("Sending welcome email",
		zap.String("email", payload.Email),
		zap.String("member_status", payload.Status))
	return nil
}

// memEmails is a stand-in automated email store for the example run.
type memEmails struct{}

func (memEmails) FindBySlug(_ context.Context, slug string) (string, error) {
	return "automated-email-" + slug, nil
}

func (memEmails) AddRecipient(_ context.Context, _, _ string) error {
	return nil
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := sql.Open("mysql", dbDSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	store := sqlstore.NewSQLStore(db, logger)
	if err := store.EnsureTable(context.Background()); err != nil {
		logger.Fatal("Failed to ensure outbox table", zap.Error(err))
	}

	// Registry: welcome email for new members, plus a Kafka fan-out of the
	// same payloads for downstream consumers.
	registry := outbox.NewRegistry()
	registry.Register(handlers.EventTypeMemberCreated,
		handlers.NewMemberCreated(&logMailer{logger: logger}, memEmails{}, logger))

	forward, err := handlers.NewKafkaForward(logger, handlers.KafkaForwardConfig{Topic: "member-events"})
	if err != nil {
		logger.Warn("Kafka unavailable, skipping forward handler", zap.Error(err))
	} else {
		defer forward.Close()
		registry.Register("MemberEventForward", forward)
	}

	dispatcher := outbox.NewDispatcher(store, registry,
		outbox.WithDispatcherLogger(logger),
		outbox.WithBatchSize(25),
		outbox.WithMaxRetries(5))

	coordinator := outbox.NewCoordinator(dispatcher,
		outbox.WithCoordinatorLogger(logger))

	// Push trigger: every enqueue raises the signal the coordinator
	// subscribes to.
	bus := outbox.NewSignalBus()
	coordinator.Init(bus)
	enqueuer := outbox.NewEnqueuer(store,
		outbox.WithEnqueuerLogger(logger),
		outbox.WithSignalBus(bus))

	// Pull trigger: a periodic tick as a safety net, plus a sweep for
	// entries stuck in processing after a crash.
	sweeper := outbox.NewStuckSweeper(store,
		outbox.WithSweeperLogger(logger),
		outbox.WithStuckTimeout(10*time.Minute))

	pollWorker := outbox.NewTickWorker("outbox_poll", 30*time.Second, logger, func(ctx context.Context) error {
		coordinator.StartProcessing(ctx)
		return nil
	})
	sweepWorker := outbox.NewTickWorker("outbox_sweep", 5*time.Minute, logger, sweeper.Sweep)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pollWorker.Start(ctx)
	go sweepWorker.Start(ctx)

	go createSampleMembers(ctx, db, enqueuer, logger)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	pollWorker.Stop()
	sweepWorker.Stop()
	logger.Info("Workers stopped")
}

// createSampleMembers periodically records a member creation and its outbox
// entry in one transaction.
func createSampleMembers(ctx context.Context, db *sql.DB, enqueuer *outbox.Enqueuer, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				logger.Error("Failed to begin transaction", zap.Error(err))
				continue
			}

			// The real application would insert the member row here with
			// the same tx.
			id, err := enqueuer.Enqueue(ctx, tx, handlers.EventTypeMemberCreated, handlers.MemberCreatedPayload{
				MemberID: "member-" + t.Format("150405"),
				Email:    "member@example.com",
				Name:     "Sample Member",
				Status:   "free",
			})
			if err != nil {
				logger.Error("Failed to enqueue entry", zap.Error(err))
				tx.Rollback()
				continue
			}

			if err := tx.Commit(); err != nil {
				logger.Error("Failed to commit transaction", zap.Error(err))
				continue
			}
			logger.Info("Enqueued member created entry", zap.String("entry_id", id))
		}
	}
}
