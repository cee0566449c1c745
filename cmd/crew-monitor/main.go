package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bbqstall/crew-monitor/internal/auth"
	"bbqstall/crew-monitor/internal/config"
	"bbqstall/crew-monitor/internal/httpapi"
	"bbqstall/crew-monitor/internal/hub"
	"bbqstall/crew-monitor/internal/migrations"
	"bbqstall/crew-monitor/internal/monitor"
	"bbqstall/crew-monitor/internal/outbox"
	"bbqstall/crew-monitor/internal/realtime"
	"bbqstall/crew-monitor/internal/store/postgres"
	"bbqstall/crew-monitor/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "crew-monitor"

var version = "dev"

func main() {
	root := &cli.Command{
		Name:  serviceName,
		Usage: "crew presence and session tracking service",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "migrate", Usage: "apply database migrations before serving"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.Load()
			if c.Bool("migrate") {
				cfg.MigrateOnStart = true
			}
			return serve(ctx, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply database migrations and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := config.Load()
					pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
					if err != nil {
						return fmt.Errorf("db connect: %w", err)
					}
					defer pool.Close()
					return migrations.Up(ctx, pool)
				},
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for admin_users.password_hash",
				ArgsUsage: "<password>",
				Action: func(ctx context.Context, c *cli.Command) error {
					password := c.Args().First()
					if password == "" {
						return errors.New("password argument is required")
					}
					hash, err := auth.HashPassword(password)
					if err != nil {
						return err
					}
					fmt.Println(hash)
					return nil
				},
			},
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%s: %v", serviceName, err)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	shutdownTelemetry := telemetry.Setup(serviceName, version)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := migrations.Up(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	store := postgres.NewStore(pool)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	h := hub.New()

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	poller := outbox.New(store, h, outbox.Config{BatchSize: cfg.BatchSize, Retention: cfg.OutboxRetention})
	go outbox.Start(runCtx, cfg.PollInterval, poller)

	crewMonitor := monitor.New(store, httpapi.ContextUsers{}, realtime.NewHubFeed(h), monitor.Options{
		SessionLimit:  cfg.SessionListLimit,
		ActivityLimit: cfg.ActivityListLimit,
	})
	if err := crewMonitor.Connect(runCtx); err != nil {
		log.Printf("crew monitor connect error: %v", err)
	}
	defer func() {
		if err := crewMonitor.Close(); err != nil {
			log.Printf("crew monitor close error: %v", err)
		}
	}()

	handler := httpapi.NewHandler(store, tokens, crewMonitor, httpapi.Options{TrustProxy: cfg.TrustProxyHeaders})
	mux := handler.Routes()
	mux.Handle("/realtime/", httpapi.RealtimeHandler("/realtime", h, tokens))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute:  cfg.RateLimitPerMinute,
		Burst:      cfg.RateLimitBurst,
		TrustProxy: cfg.TrustProxyHeaders,
	})
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	chain := httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(tokens, mux)))
	otelHandler := otelhttp.NewHandler(corsHandler.Handler(chain), serviceName)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelHandler,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: realtime streams stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", serviceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}
