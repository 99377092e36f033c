package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/veritasapp/qna-router-service/internal/config"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository/postgres"
	"github.com/veritasapp/qna-router-service/internal/service"
	myhttp "github.com/veritasapp/qna-router-service/internal/transport/http"

	"github.com/veritasapp/qna-router-service/pkg/logger/slogpretty"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.MustLoad()
	log := slogpretty.SetupLogger(cfg.Env)

	log.Info("starting qna-router-service", slog.String("env", cfg.Env))

	errChan := make(chan error, 1)

	pg, err := postgres.NewDB(cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to init db: %v", err)
	}
	defer func() {
		err = pg.DB().Close()
		if err != nil {
			errChan <- fmt.Errorf("db close failed: %v", err)
		}
	}()

	db := pg.DB()

	questionRepo := postgres.NewQuestionRepository(db, log)
	assignmentRepo := postgres.NewAssignmentRepository(db, log)
	expertiseRepo := postgres.NewExpertiseRepository(db, log)
	reputationRepo := postgres.NewReputationRepository(db, log)
	reportRepo := postgres.NewReportRepository(db, log)
	messageRepo := postgres.NewMessageRepository(db, log)
	timerRepo := postgres.NewTimerRepository(db, log)

	directory := external.NewHTTPDirectory(cfg.External, log)
	contentStore := external.NewHTTPContentStore(cfg.External, log)
	notifier := external.NewHTTPNotifier(cfg.External, log)

	index := service.NewExpertiseIndex(log, expertiseRepo, directory)
	ledger := service.NewReputationLedger(db, db, log, reputationRepo, directory, cfg.Engine.RetryBackoff)
	engine := service.NewAssignmentEngine(db, db, log, cfg.Engine,
		questionRepo, assignmentRepo, timerRepo, index, expertiseRepo, directory, notifier)
	thread := service.NewConversationThread(db, db, log, cfg.Engine,
		messageRepo, questionRepo, assignmentRepo, timerRepo, notifier)
	moderation := service.NewModerationQueue(db, db, log,
		reportRepo, ledger, contentStore, directory, notifier)

	worker := service.NewWorker(db, log, cfg.Engine,
		timerRepo, messageRepo, questionRepo, engine, ledger, notifier)
	go worker.Run(ctx)

	srv := myhttp.NewServer(log, engine, thread, moderation)
	httpServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Routes(),
	}

	go startServer(log, httpServer, errChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("http server error: %v", err)

	case <-ctx.Done():
		log.Info("stopping server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shuting down http server: %v", err)
	}

	return nil
}

func startServer(log *slog.Logger, httpServer *http.Server, errChan chan error) {
	defer close(errChan)

	log.Info("service started", slog.String("addr", httpServer.Addr))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("error listening and serving: %v", err)
	}
}
