// Package server initializes and runs the application server: database,
// migrations, session store, external ICD clients and the HTTP endpoint,
// with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/dmitrijs2005/medcert/internal/server/config"
	"github.com/dmitrijs2005/medcert/internal/server/httpapi"
	"github.com/dmitrijs2005/medcert/internal/server/icd"
	"github.com/dmitrijs2005/medcert/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/medcert/internal/server/services"
	"github.com/dmitrijs2005/medcert/internal/server/sessions"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store := sessions.New(ctx, cfg.RedisURL, logger)
	authService := services.NewAuthService(rm.Users(db), store, cfg, logger)

	directory := icd.NewDirectoryClient(cfg.DirectoryBaseURL, logger)
	who := icd.NewWhoClient(cfg.WhoBaseURL, cfg.WhoTokenURL, cfg.WhoClientID, cfg.WhoClientSecret, logger)
	resolver := icd.NewResolver(directory, who, rm.IcdCodes(db), cfg, logger)

	srv := httpapi.NewServer(cfg, logger, authService, resolver, rm.Users(db), store)

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	httpServer := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
