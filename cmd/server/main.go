// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nycdb-insight/internal/common/config"
	"nycdb-insight/internal/common/database"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/common/observability"
	"nycdb-insight/internal/genai"
	"nycdb-insight/internal/pipeline"
	"nycdb-insight/internal/pipeline/analyzer"
	"nycdb-insight/internal/pipeline/assembler"
	"nycdb-insight/internal/pipeline/compiler"
	"nycdb-insight/internal/pipeline/conversation"
	"nycdb-insight/internal/pipeline/dataaccess"
	"nycdb-insight/internal/pipeline/interpreter"
	"nycdb-insight/internal/pipeline/narrative"
	"nycdb-insight/internal/pipeline/patterns"
	"nycdb-insight/internal/server"
	"nycdb-insight/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting insight server",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Dataset store ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	health := map[string]server.Pinger{
		"postgres": pg,
	}

	// --- Redis (optional) ---
	var redisClient *database.RedisClient
	if cfg.Database.Redis.Enabled {
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			zapLog.Fatal("redis init failed", zap.Error(err))
		}
		defer redisClient.Close()
		if err := redisClient.Ping(ctx); err != nil {
			zapLog.Fatal("redis unavailable", zap.Error(err))
		}
		health["redis"] = redisClient
	}

	// --- Dataset registry ---
	reg, err := registry.LoadRegistry(cfg.Registry.DatasetsPath)
	if err != nil {
		zapLog.Fatal("dataset registry load failed",
			zap.String("path", cfg.Registry.DatasetsPath),
			zap.Error(err),
		)
	}
	zapLog.Info("dataset registry loaded", zap.Int("datasets", len(reg.Datasets)))

	// --- Completion service client ---
	completer := genai.NewClient(&genai.Config{
		BaseURL:     cfg.APIs.Completion.BaseURL,
		APIKey:      cfg.APIs.Completion.APIKey,
		Model:       cfg.APIs.Completion.Model,
		MaxTokens:   cfg.APIs.Completion.MaxTokens,
		Temperature: cfg.APIs.Completion.Temperature,
		Timeout:     time.Duration(cfg.APIs.Completion.Timeout) * time.Millisecond,
		MaxRetries:  cfg.APIs.Completion.MaxRetries,
	}, log)

	// --- Conversation store ---
	convOpts := conversation.Options{
		SessionTTL:      cfg.Pipeline.Conversation.TTL(),
		MaxPerOwner:     cfg.Pipeline.Conversation.MaxPerOwner,
		MaxHistoryTurns: cfg.Pipeline.Conversation.MaxHistoryTurns,
	}
	var store conversation.Store
	if cfg.Pipeline.Conversation.Backend == "redis" && redisClient != nil {
		store = conversation.NewRedisStore(redisClient.GetClient(), convOpts, log)
	} else {
		store = conversation.NewMemoryStore(convOpts, log)
	}

	// --- Result cache ---
	var executor *dataaccess.Executor
	execOpts := dataaccess.Options{
		QueryTimeout: time.Duration(cfg.Pipeline.DataAccess.QueryTimeout) * time.Millisecond,
		CacheTTL:     time.Duration(cfg.Pipeline.DataAccess.CacheTTL) * time.Second,
	}
	if cfg.Pipeline.DataAccess.CacheEnabled && redisClient != nil {
		executor = dataaccess.NewExecutor(pg.GetDB(), redisClient.GetClient(), execOpts, log)
	} else {
		executor = dataaccess.NewExecutor(pg.GetDB(), nil, execOpts, log)
	}

	svc := pipeline.NewService(pipeline.Deps{
		Interpreter:   interpreter.New(completer, log),
		Compiler:      compiler.New(reg, log),
		Executor:      executor,
		Analyzer:      analyzer.New(log),
		Detector:      patterns.New(log),
		Narrator:      narrative.New(completer, cfg.Pipeline.Narrative.PromptCharBudget, log),
		Assembler:     assembler.New(log),
		Store:         store,
		Observability: obs,
	}, log)

	srv := server.New(cfg.Server, svc, health, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		zapLog.Fatal("http server failed", zap.Error(err))
	case sig := <-stop:
		zapLog.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Millisecond
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("server stopped")
}
