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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/id-bridge/internal/acuant"
	"github.com/example/id-bridge/internal/auth"
	"github.com/example/id-bridge/internal/biometrics"
	"github.com/example/id-bridge/internal/cache"
	"github.com/example/id-bridge/internal/capture"
	"github.com/example/id-bridge/internal/config"
	"github.com/example/id-bridge/internal/document"
	"github.com/example/id-bridge/internal/grpcclient"
	"github.com/example/id-bridge/internal/handlers"
	"github.com/example/id-bridge/internal/imageprocessor"
	"github.com/example/id-bridge/internal/logging"
	"github.com/example/id-bridge/internal/repository"
	"github.com/example/id-bridge/internal/session"
	"github.com/example/id-bridge/internal/usecase"
)

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var (
		db          *gorm.DB
		redisClient *redis.Client
		evaluator   imageprocessor.Client
		conn        *grpc.ClientConn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		db, err = initDatabase(gctx, cfg.DatabaseDSN)
		return err
	})
	g.Go(func() error {
		var err error
		redisClient, err = initRedis(gctx, cfg.RedisAddr)
		return err
	})
	g.Go(func() error {
		var err error
		evaluator, conn, err = grpcclient.DialImageProcessor(gctx, cfg.ImagePrepAddr, logger)
		if err != nil {
			return fmt.Errorf("connect image preparation service: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer conn.Close()
	defer redisClient.Close()

	repo := repository.NewOperationRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	vendor := acuant.NewClient(&http.Client{Timeout: cfg.VendorTimeout}, logger)
	initializer := session.NewInitializer(vendor, cache.NewRedisCache(redisClient), logger)
	hub := capture.NewHub(cfg.DeviceKey, logger)
	workflow := document.NewWorkflow(vendor, evaluator, logger)
	uc := usecase.NewBridgeUseCase(repo, initializer, hub, biometrics.NewService(vendor, logger), workflow, logger)

	r := gin.Default()
	authMiddleware := auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	handlers.RegisterRoutes(r, uc, hub, authMiddleware, cfg.MaxUploadBytes)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	server.RegisterOnShutdown(hub.Close)

	logger.Info("id-bridge listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	workflow.Wait()
}

func initDatabase(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
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
