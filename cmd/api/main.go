package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/assembly/internal/api"
	"example.com/assembly/internal/auth"
	"example.com/assembly/internal/config"
	"example.com/assembly/internal/domain"
	"example.com/assembly/internal/events"
	persistence "example.com/assembly/internal/persistence/postgres"
	"example.com/assembly/internal/registry"
	"example.com/assembly/internal/scheduler"
	httptransport "example.com/assembly/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	ledger := persistence.NewRepository(pool)
	catalog := registry.New(registry.DefaultUnits(), registry.DefaultRoster())

	producer := events.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	sink := events.NewPublisher(producer)

	deadlines := scheduler.New(ledger, scheduler.WithSweepInterval(cfg.SweepInterval))

	service := domain.NewService(catalog, catalog, ledger,
		domain.WithDeadlineScheduler(deadlines),
		domain.WithEventSink(sink),
		domain.WithCompletedLinger(cfg.CompletedLinger),
	)

	// Reconciles overdue entries left over from a previous process, then sweeps.
	go deadlines.Run(ctx, service)

	authCfg := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TokenTTL: cfg.TokenTTL}

	handler := api.NewHandler(service, catalog, authCfg)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	skipper := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/metrics", "/v1/login":
			return true
		}
		return false
	}
	authMiddleware := auth.NewMiddleware(authCfg, skipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("assembly-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	deadlines.Wait()
}
