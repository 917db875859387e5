package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/view-ledger/internal/config"
	"github.com/vadimbarashkov/view-ledger/internal/database/postgres"
	"github.com/vadimbarashkov/view-ledger/internal/pubsub"
	"github.com/vadimbarashkov/view-ledger/internal/service"
	"golang.org/x/sync/errgroup"

	myhttp "github.com/vadimbarashkov/view-ledger/internal/api/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		return db.Close()
	})

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return err
	}

	var store service.VisitStore
	switch cfg.Ledger.Variant {
	case config.VariantCounter:
		store = postgres.NewCounterRepository(db)
	case config.VariantVisitLog:
		store = postgres.NewVisitLogRepository(db)
	default:
		return fmt.Errorf("unknown ledger variant: %q", cfg.Ledger.Variant)
	}

	ps, err := pubsub.NewPostgres(ctx, cfg.Postgres.DSN(), db)
	if err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		return ps.Close()
	})

	ledgerSvc := service.NewLedgerService(store)

	r := myhttp.NewRouter(httplog.NewLogger("view-ledger"), ledgerSvc, ps)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        r,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}
