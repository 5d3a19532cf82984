// Package server initializes and runs the clipboard application server:
// it opens the database, runs migrations, wires the service, relay and
// HTTP API together, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aryabasu21/OnlineClipboard/internal/logging"
	"github.com/aryabasu21/OnlineClipboard/internal/server/config"
	"github.com/aryabasu21/OnlineClipboard/internal/server/httpapi"
	"github.com/aryabasu21/OnlineClipboard/internal/server/relay"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/repomanager"
	"github.com/aryabasu21/OnlineClipboard/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	clipboard := services.NewClipboardService(db, repos, logger, cfg.SessionTTL)
	offloader := services.NewOffloadService(cfg)

	hub := relay.NewHub(logger)
	relayHandler := relay.NewHandler(hub, []byte(cfg.SecretKey), logger)

	httpServer := httpapi.NewServer(cfg.EndpointAddrHTTP, clipboard, offloader, relayHandler,
		cfg.SecretKey, cfg.TicketValidityDuration, logger)

	return &App{config: cfg, logger: logger, db: db, http: httpServer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
