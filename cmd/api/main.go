package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-emailaddress/internal/config"
	"github.com/go-emailaddress/internal/infrastructure/awscfg"
	"github.com/go-emailaddress/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-emailaddress/internal/infrastructure/jwt"
	"github.com/go-emailaddress/internal/infrastructure/memory"
	redisinfra "github.com/go-emailaddress/internal/infrastructure/redis"
	s3infra "github.com/go-emailaddress/internal/infrastructure/s3"
	"github.com/go-emailaddress/internal/infrastructure/smtp"
	"github.com/go-emailaddress/internal/infrastructure/sns"
	"github.com/go-emailaddress/internal/metrics"
	"github.com/go-emailaddress/internal/pkg/lock"
	transporthttp "github.com/go-emailaddress/internal/transport/http"
	"github.com/go-emailaddress/internal/transport/http/handler"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	if err := run(cfg); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.AppEnv == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// adminVerifier loads the public key that guards the admin routes. Signing
// happens in emailctl, so the private key is never read here. Outside
// production a missing key leaves the admin routes open.
func adminVerifier(cfg *config.Config) (*jwtinfra.Provider, error) {
	verifyCfg := *cfg
	verifyCfg.JWTPrivateKeyPath = ""
	p, err := jwtinfra.NewProvider(&verifyCfg)
	if err == nil {
		return p, nil
	}
	if cfg.AppEnv == "production" {
		return nil, fmt.Errorf("admin JWT public key required in production: %w", err)
	}
	slog.Warn("JWT provider not available; admin routes are unauthenticated", "err", err)
	return nil, nil
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	deps := &transporthttp.Deps{}

	// AWS clients are only built when something needs them.
	needsAWS := cfg.StoreBackend == "dynamo" || cfg.LockBackend == "dynamo" ||
		cfg.S3TemplateBucket != "" || cfg.SNSTopicARN != ""
	var dynamoClient *dynamodb.Client
	if needsAWS {
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.AWSRegion)
		if err != nil {
			return err
		}
		if cfg.StoreBackend == "dynamo" || cfg.LockBackend == "dynamo" {
			dynamoClient = dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
			// Creates tables and GSIs that don't exist yet.
			dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
			table := cfg.DynamoTables.EmailAddresses
			deps.HealthChecks = append(deps.HealthChecks, handler.Check{
				Name: "dynamodb",
				Fn:   func(ctx context.Context) error { return dynamo.Ping(ctx, dynamoClient, table) },
			})
		}
		if cfg.S3TemplateBucket != "" {
			deps.Templates = s3infra.NewTemplateStore(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.S3TemplateBucket)
		}
		if cfg.SNSTopicARN != "" {
			snsCfg := awsCfg.Copy()
			snsCfg.Region = cfg.SNSRegion
			deps.Events = sns.NewPublisher(sns.NewClient(snsCfg, cfg.AWSEndpointURL), cfg.SNSTopicARN)
		}
	}

	switch cfg.StoreBackend {
	case "dynamo":
		tables := cfg.DynamoTables
		counters := dynamo.NewCounterRepo(dynamoClient, tables.Counters)
		deps.EmailAddressRepo = dynamo.NewEmailAddressRepo(dynamoClient, tables.EmailAddresses, counters)
		deps.VerifiableDataRepo = dynamo.NewVerifiableDataRepo(dynamoClient, tables.VerifiableData)
		deps.VerificationRequestRepo = dynamo.NewVerificationRequestRepo(dynamoClient, tables.VerificationRequests)
		deps.TokenRepo = dynamo.NewTokenRepo(dynamoClient, tables.VerificationTokens)
	case "memory":
		slog.Warn("using in-memory stores; data is lost on restart")
		deps.EmailAddressRepo = memory.NewEmailAddressRepo()
		deps.VerifiableDataRepo = memory.NewVerifiableDataRepo()
		deps.VerificationRequestRepo = memory.NewVerificationRequestRepo()
		deps.TokenRepo = memory.NewTokenRepo()
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	var lockBackend lock.Backend
	switch cfg.LockBackend {
	case "dynamo":
		lockBackend = dynamo.NewLockRepo(dynamoClient, cfg.DynamoTables.Locks)
	case "redis":
		client := redisinfra.NewClient(cfg.RedisAddr, cfg.RedisDB)
		defer client.Close()
		lockBackend = redisinfra.NewLockBackend(client)
		deps.HealthChecks = append(deps.HealthChecks, handler.Check{
			Name: "redis",
			Fn:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	case "memory":
		lockBackend = memory.NewLockBackend()
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}
	deps.Locker = lock.NewManager(lockBackend, lock.Options{
		TTL:          cfg.LockTTL,
		Wait:         cfg.LockWait,
		PollInterval: cfg.LockPollInterval,
	})

	mailer, err := smtp.NewMailer(cfg)
	if err != nil {
		return err
	}
	deps.Mailer = mailer

	if deps.JWTProvider, err = adminVerifier(cfg); err != nil {
		return err
	}

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"store", cfg.StoreBackend, "lock", cfg.LockBackend, "trust_proxy_headers", cfg.TrustProxyHeaders,
			"origins", strings.Join(cfg.AllowedOrigins, ","))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
