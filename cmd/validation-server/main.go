package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/config"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/database"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/gateway"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/identity"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/lock"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/logger"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/replay"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/rules"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/server"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/session"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/storage"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/sync"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/token"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/validation"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/version"
)

func main() {
	cmd := &cobra.Command{
		Use:   "validation-server",
		Short: "digital credential validation service",
		Long:  `validation-server validates encrypted digital credentials on behalf of airlines and other service providers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("SERVICE_URL", cfg.ServiceURL),
		slog.String("GATEWAY_URL", cfg.GatewayURL),
		slog.Bool("REDIS_PROFILE", cfg.RedisURL != ""),
	)

	keyStore, err := crypto.LoadKeyStore(
		cfg.EncKeyFile, cfg.SignKeyFile,
		cfg.EncKeyAlias, cfg.SignKeyAlias, cfg.ActiveSignKeyAlias,
	)
	if err != nil {
		appLogger.Error("failed to load key material", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer dbCancel()

	pool, err := database.NewPool(dbCtx, cfg.DatabaseURL, database.PoolConfig{
		MaxConns:        cfg.DBMaxConnections,
		MinConns:        cfg.DBMinConnections,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
		ConnectTimeout:  cfg.DBConnectTimeout,
	})
	if err != nil {
		appLogger.Error("unable to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(dbCtx, pool); err != nil {
		appLogger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appLogger.Info("connected to PostgreSQL, schema up to date")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// profile selection: REDIS_URL set means the distributed profile, the
	// in-memory profile otherwise
	var (
		guard    replay.Guard
		sessions session.Store
		locker   lock.Locker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			appLogger.Error("failed to parse REDIS_URL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			appLogger.Error("failed to ping redis", slog.String("error", err.Error()))
			os.Exit(1)
		}

		_, signKey, err := keyStore.ActiveSigningKey()
		if err != nil {
			appLogger.Error("no active signing key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sessions, err = session.NewRedisStore(client, signKey.D.Bytes())
		if err != nil {
			appLogger.Error("failed to create session store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		guard = replay.NewRedisGuard(client)
		locker = lock.NewRedisLocker(client, cfg.SyncLockMinHold)
		appLogger.Info("connected to redis")
	} else {
		sessions = session.NewMemoryStore()
		guard = replay.NewMemoryGuard()
		locker = lock.NewMemoryLocker()
		appLogger.Info("running single-instance in-memory profile")
	}

	// access-token keys resolve from the static keystore first, then from
	// the configured identity document and/or JWKS endpoint
	resolvers := token.ChainResolver{token.NewStaticResolver(keyStore)}
	if cfg.IdentityDocumentURL != "" {
		resolvers = append(resolvers, token.NewDocumentResolver(
			cfg.IdentityDocumentURL,
			cfg.IdentityFetchTimeout,
			cfg.IdentityCacheMinRefresh,
			cfg.IdentityCacheMaxRefresh,
			appLogger,
		))
	}
	if cfg.TokenIssuerJWKSURL != "" {
		jwksResolver, err := token.NewJWKSResolver(ctx,
			cfg.TokenIssuerJWKSURL,
			cfg.IdentityCacheMinRefresh,
			cfg.IdentityCacheMaxRefresh,
		)
		if err != nil {
			appLogger.Error("failed to set up JWKS resolver", slog.String("error", err.Error()))
			os.Exit(1)
		}
		resolvers = append(resolvers, jwksResolver)
	}

	codec := token.NewCodec(keyStore, resolvers, cfg.ServiceURL, cfg.AccessTokenLeeway)

	gatewayClient := gateway.NewClient(cfg.GatewayURL, cfg.GatewayTimeout)
	trustRepo := storage.NewTrustListRepo(pool)
	ruleRepo := storage.NewRuleRepo(pool)
	valueSetRepo := storage.NewValueSetRepo(pool)

	ruleCache := rules.NewRuleCache(ruleRepo, cfg.RuleCacheTTL)
	valueSetCache := rules.NewValueSetCache(valueSetRepo, cfg.ValueSetCacheTTL)

	scheduler := sync.NewScheduler(locker, appLogger)
	scheduler.Register(sync.NewTrustSync(gatewayClient, trustRepo, appLogger),
		cfg.TrustSyncInterval, cfg.TrustSyncLockLimit)
	scheduler.Register(sync.NewRuleSync(gatewayClient, ruleRepo, ruleCache, appLogger),
		cfg.RuleSyncInterval, cfg.RuleSyncLockLimit)
	scheduler.Register(sync.NewValueSetSync(gatewayClient, valueSetRepo, valueSetCache, appLogger),
		cfg.ValueSetSyncInterval, cfg.ValueSetSyncLockLimit)
	scheduler.Start(ctx)

	notifier := validation.NewCallbackNotifier(
		cfg.CallbackWorkers, cfg.CallbackQueueSize, cfg.CallbackTimeout, appLogger)

	service := validation.NewService(validation.Config{
		Sessions:      sessions,
		Guard:         guard,
		Codec:         codec,
		Keys:          keyStore,
		EncKeyAlias:   cfg.EncKeyAlias,
		RuleCache:     ruleCache,
		ValueSetCache: valueSetCache,
		Engine:        validation.NewBaselineEngine(),
		Notifier:      notifier,
		Expire:        cfg.ValidationExpire,
		Logger:        appLogger,
	})

	appLogger.Info("starting server", slog.String("version", version.Get().Version))

	srv := server.NewServer(cfg, service, identity.NewProvider(cfg.ServiceURL, keyStore), appLogger)

	serveErr := srv.Start(ctx)

	scheduler.Wait()
	notifier.Shutdown(cfg.CallbackDrainTimeout)

	if serveErr != nil {
		appLogger.Error("server error", slog.String("error", serveErr.Error()))
		return serveErr
	}

	appLogger.Info("server shutdown complete")
	return nil
}
