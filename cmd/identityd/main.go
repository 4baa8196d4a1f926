package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/lock/redislock"
	"github.com/goliatone/go-identity/logging"
	"github.com/goliatone/go-identity/notify"
	"github.com/goliatone/go-identity/repository"
	"github.com/goliatone/go-identity/transport/rest"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	dump := flag.Bool("dump-config", false, "print the redacted configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.New(os.Stderr, "error", logging.FormatJSON, "identityd").
			Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if *dump {
		cfg.Dump()
		return
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, logging.Format(cfg.LogFormat), "identityd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("identityd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	db, err := repository.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DBDebug {
		repository.EnableQueryDebug(db, true)
	}

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db, logger.Named("migrations")); err != nil {
			return err
		}
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	opts := []identity.ServiceOption{
		identity.WithLogger(logger.Named("identity")),
		identity.WithNotifier(notifier),
		identity.WithActivitySink(activitymap.LogSink(logger.Named("activity"))),
	}

	if cfg.RedisEnabled() {
		rdb, err := redislock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)

		opts = append(opts, identity.WithLocker(redislock.New(rdb,
			redislock.WithTTL(cfg.LockTTL),
			redislock.WithPrefix("identity:lock:"),
			redislock.WithLogger(logger.Named("lock")),
		)))
		logger.Info("using redis account locks", "addr", cfg.RedisAddr)
	}

	svc := identity.NewServiceFromConfig(cfg, repository.NewStore(db), opts...)
	defer svc.Close()

	srv := rest.NewServer(rest.NewController(svc, rest.WithLogger(logger.Named("http"))))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identityd listening", "addr", cfg.HTTPAddr)
		errCh <- srv.Serve(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.WrappedRouter().ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("forced shutdown", "error", err)
	}
	return nil
}

func buildNotifier(cfg *config.Config, logger *logging.Logger) (identity.Notifier, error) {
	if !cfg.SMTPEnabled() {
		if !cfg.IsDevelopment() {
			return nil, errors.New("smtp must be configured outside development")
		}
		return notify.NewLogNotifier(logger.Named("notify")).RevealCodes(), nil
	}

	renderer, err := notify.NewRenderer(cfg.GetOTPTTL())
	if err != nil {
		return nil, err
	}

	mailer := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, renderer).WithLogger(logger.Named("smtp"))

	if cfg.IsDevelopment() {
		return notify.Multi{mailer, notify.NewLogNotifier(logger.Named("notify")).RevealCodes()}, nil
	}
	return mailer, nil
}
