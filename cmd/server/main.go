package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-compare/internal/auth"
	"github.com/example/face-compare/internal/cli"
	"github.com/example/face-compare/internal/compare"
	"github.com/example/face-compare/internal/config"
	"github.com/example/face-compare/internal/handlers"
	"github.com/example/face-compare/internal/logging"
	"github.com/example/face-compare/internal/repository"
	"github.com/example/face-compare/internal/usecase"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	repo := repository.NewComparisonRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
	defer redisClient.Close()

	verifier, closeVerifier, err := cli.NewVerifier(ctx, cfg.Verifier, logger)
	if err != nil {
		logger.Fatal("failed to set up face verifier", zap.Error(err))
	}
	defer closeVerifier()

	cache := usecase.NewRedisCache(redisClient)
	uc := usecase.NewComparisonUseCase(repo, cache, compare.NewInvoker(verifier, logger), logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, uc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face compare API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("verifier_backend", cfg.Verifier.Backend),
		zap.String("verifier_addr", cfg.Verifier.Addr),
		zap.Bool("auth_enabled", cfg.JWTSecret != ""),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(cfg config.Server, svc handlers.ComparisonService, logger *zap.Logger) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxFileSize

	handlers.RegisterRoutes(r, svc, handlers.Options{
		MaxUploadSize:     cfg.MaxFileSize,
		AllowedExtensions: cfg.AllowedExtensions,
		Logger:            logger,
	}, auth.Middlewares(cfg.JWTSecret, cfg.JWTAudience, logger)...)
	return r
}

func initDatabase(ctx context.Context, cfg config.Server, zapLogger *zap.Logger) *gorm.DB {
	db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, gormlogger.Warn)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.String("addr", addr), zap.Error(err))
	}
	return client
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
