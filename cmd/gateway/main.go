package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	"github.com/mind-engage/mindengage-exams/internal/seed"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	lgr := logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lgr); err != nil {
		lgr.Fatal().Err(err).Msg("gateway stopped")
	}
}

func run(ctx context.Context, cfg config.Config, lgr zerolog.Logger) error {
	// --- Store ---
	var (
		store exam.Store
		dbh   *sql.DB
	)
	svcOpts := []exam.ServiceOption{
		exam.WithLogger(lgr.With().Str("component", "exam").Logger()),
		exam.WithGrader(grading.NewDefaultGrader(grading.WithStrictTrueFalse(cfg.StrictTrueFalse))),
	}
	if cfg.DBDriver == "memory" {
		store = exam.NewInMemoryStore()
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var err error
		dbh, err = db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			return err
		}
		defer dbh.Close()
		store = exam.NewSQLStore(dbh, cfg.DBDriver)
		svcOpts = append(svcOpts, exam.WithEvents(syncx.NewEventRepo(dbh, string(cfg.Mode))))
	}

	if cfg.SeedDevUsers {
		if err := seed.Users(ctx, store, cfg.DevPassword, lgr); err != nil {
			return err
		}
	}

	svc := exam.NewService(store, svcOpts...)

	// --- Auth (local JWT) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)

	// --- Router ---
	var ready func(context.Context) error
	if dbh != nil {
		ready = dbh.PingContext
	}
	handler := api.NewRouter(api.Deps{
		Service:         svc,
		Users:           store,
		Auth:            authSvc,
		Log:             lgr,
		CORSOrigins:     cfg.CORSOrigins,
		EnableLocalAuth: cfg.EnableLocalAuth,
		Ready:           ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lgr.Info().Str("addr", cfg.HTTPAddr).Str("mode", string(cfg.Mode)).Str("db", cfg.DBDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		lgr.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
