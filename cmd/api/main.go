package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"librario.org/internal/circ"
	"librario.org/internal/httpapi"
	"librario.org/internal/obs"
	"librario.org/internal/store/pg"
	"librario.org/internal/store/sqlite"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.SetupSlog()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	policy := circ.DefaultPolicy()
	if raw := os.Getenv("LIBRARIO_FINE_PER_DAY"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			slog.Error("invalid LIBRARIO_FINE_PER_DAY", "value", raw)
			os.Exit(1)
		}
		policy.FinePerDayMinor = v
	}

	// Store selection: PostgreSQL, then SQLite, then in-memory.
	var (
		svc     circ.Service
		probeDB *sql.DB
		cleanup func()
	)
	switch {
	case os.Getenv("LIBRARIO_PG_DSN") != "":
		store, err := pg.Open(os.Getenv("LIBRARIO_PG_DSN"), policy, nil)
		if err != nil {
			slog.Error("open postgres store", "err", err)
			os.Exit(1)
		}
		svc = store
		probeDB = store.DB()
		cleanup = func() { _ = store.Close() }
		slog.Info("using postgres store")
	case os.Getenv("LIBRARIO_SQLITE_PATH") != "":
		store, err := sqlite.Open(os.Getenv("LIBRARIO_SQLITE_PATH"), policy, nil)
		if err != nil {
			slog.Error("open sqlite store", "err", err)
			os.Exit(1)
		}
		svc = store
		probeDB = store.DB()
		cleanup = func() { _ = store.Close() }
		slog.Info("using sqlite store", "path", os.Getenv("LIBRARIO_SQLITE_PATH"))
	default:
		svc = circ.NewInMemory(policy, nil)
		cleanup = func() {}
		slog.Warn("no store configured, loans will not survive restarts")
	}

	addr := os.Getenv("LIBRARIO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: probeDB}, version, svc)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("starting librario-api", "version", version, "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen", "err", err)
			os.Exit(1)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	slog.Info("shutting down")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	cleanup()
	slog.Info("stopped")
}
