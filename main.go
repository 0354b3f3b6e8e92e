package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/certverify/internal/auth"
	"github.com/example/certverify/internal/cache"
	"github.com/example/certverify/internal/codereader"
	"github.com/example/certverify/internal/config"
	"github.com/example/certverify/internal/events"
	"github.com/example/certverify/internal/gateway"
	"github.com/example/certverify/internal/grpcclient"
	"github.com/example/certverify/internal/handlers"
	"github.com/example/certverify/internal/logging"
	"github.com/example/certverify/internal/matcher"
	"github.com/example/certverify/internal/metrics"
	"github.com/example/certverify/internal/registry"
	"github.com/example/certverify/internal/repository"
	"github.com/example/certverify/internal/tracing"
	"github.com/example/certverify/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db := initDatabase(ctx, cfg.Database, logger)
	repo := repository.NewVerificationRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.Redis.Addr, logger)
	defer redisClient.Close()

	lookup, err := initRegistry(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("registry init failed", zap.Error(err))
	}
	cachedLookup := registry.NewCachedLookup(lookup, cache.NewRedis(redisClient, "registry:"), cfg.Redis.RegistryCacheTTL, logger)

	signals, closeSignals, err := initSignals(cfg, logger)
	if err != nil {
		logger.Fatal("gateway init failed", zap.Error(err))
	}
	defer closeSignals()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	analyzer := usecase.NewAnalyzer(usecase.AnalyzerParams{
		Signals:   signals,
		Codes:     codereader.New(),
		Local:     matcher.New(cachedLookup, logger),
		Threshold: cfg.Detector.FakeConfidenceThreshold,
		Metrics:   metrics.New(promRegistry),
		Logger:    logger,
	})

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		producer := events.NewProducer(events.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.VerificationTopic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
		})
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka producer close failed", zap.Error(err))
			}
		}()
		publisher = producer
	}

	uc := usecase.NewVerificationUseCase(repo, cache.NewRedis(redisClient, ""), analyzer, publisher, logger).
		WithResultTTL(cfg.Redis.ResultCacheTTL)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.HTTP.MaxUploadBytes

	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)

	handlers.RegisterRoutes(r, uc, authMiddleware,
		handlers.WithMaxUploadSize(cfg.HTTP.MaxUploadBytes),
		handlers.WithMetricsHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})),
	)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	logger.Info("certificate verification API listening", zap.String("addr", cfg.HTTP.Addr))
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// initRegistry builds the local record set the offline matcher consults.
func initRegistry(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (registry.Lookup, error) {
	switch cfg.Registry.Source {
	case "file":
		records, err := registry.LoadFile(cfg.Registry.File)
		if err != nil {
			return nil, err
		}
		logger.Info("registry loaded from file", zap.String("path", cfg.Registry.File), zap.Int("records", len(records)))
		return registry.NewMemoryStore(records), nil
	case "postgres":
		store := registry.NewGormStore(db)
		if err := store.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate registry: %w", err)
		}
		if err := store.Seed(ctx, registry.SeedRecords()); err != nil {
			return nil, fmt.Errorf("seed registry: %w", err)
		}
		logger.Info("registry backed by postgres")
		return store, nil
	default:
		store := registry.NewMemoryStore(registry.SeedRecords())
		logger.Info("registry using built-in records", zap.Int("records", store.Len()))
		return store, nil
	}
}

// initSignals assembles the remote evidence sources. The returned func
// releases any connections they hold.
func initSignals(cfg *config.Config, logger *zap.Logger) (usecase.Signals, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	timeouts := gateway.Timeouts{
		Upload: cfg.Gateway.UploadTimeout,
		OCR:    cfg.Gateway.OCRTimeout,
		Detect: cfg.Gateway.DetectTimeout,
		Verify: cfg.Gateway.VerifyTimeout,
	}
	client := gateway.NewHTTPClient(gateway.HTTPClientConfig{
		BaseURL:  cfg.Gateway.BaseURL,
		APIKey:   cfg.Gateway.APIKey,
		Timeouts: timeouts,
	}, logger)

	signals := usecase.Signals{
		Uploader: client,
		OCR:      client,
		Detector: client,
		Verifier: client,
	}

	if cfg.Gateway.UploadBackend == "minio" {
		store, err := gateway.NewMinioStore(gateway.ObjectStoreConfig{
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return usecase.Signals{}, closeAll, err
		}
		signals.Uploader = gateway.NewObjectStoreUploader(store, timeouts.Upload)
	}

	if cfg.Detector.Transport == "grpc" {
		detector, conn, err := grpcclient.DialForgeryDetector(cfg.Detector.GRPCAddr, timeouts.Detect, logger)
		if err != nil {
			return usecase.Signals{}, closeAll, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		signals.Detector = detector
	}

	return signals, closeAll, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
