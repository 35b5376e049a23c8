package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"llmTraderBot/config"
	"llmTraderBot/internal/adapters/binanceclient"
	"llmTraderBot/internal/adapters/llm"
	"llmTraderBot/internal/adapters/logger"
	"llmTraderBot/internal/adapters/okx"
	"llmTraderBot/internal/adapters/sqlite"
	"llmTraderBot/internal/app"
	"llmTraderBot/internal/executor"
	"llmTraderBot/internal/metrics"
	"llmTraderBot/internal/ports"
	"llmTraderBot/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LogLevel)
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client
	var exchange ports.ExchangeClient
	switch cfg.Exchange {
	case config.ExchangeBinance:
		exchange, err = binanceclient.New(binanceclient.Config{
			APIKey:               cfg.BinanceAPIKey,
			SecretKey:            cfg.BinanceSecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               appLogger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
	default:
		exchange, err = okx.NewClient(okx.Config{
			APIKey:     cfg.OKXAPIKey,
			SecretKey:  cfg.OKXSecretKey,
			Passphrase: cfg.OKXPassphrase,
			BaseURL:    cfg.OKXBaseURL,
			IsTestnet:  cfg.IsTestnet,
			Logger:     appLogger,
		})
	}
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}
	appLogger.Info(context.Background(), "Exchange client initialized", map[string]interface{}{"exchange": cfg.Exchange})

	// 5. Initialize Decision Provider
	provider, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize decision provider")
		log.Fatalf("FATAL: Failed to initialize decision provider: %v", err)
	}

	// 6. Risk stage table (built-in brackets unless a file overrides them)
	stages := risk.DefaultStages()
	if cfg.RiskStagesPath != "" {
		stages, err = risk.LoadStages(cfg.RiskStagesPath)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to load risk stage table")
			log.Fatalf("FATAL: Failed to load risk stage table: %v", err)
		}
		appLogger.Info(context.Background(), "Risk stage table loaded", map[string]interface{}{"path": cfg.RiskStagesPath})
	}

	// 7. Initialize Executor
	exec, err := executor.NewExecutor(exchange, appLogger, cfg.ShrinkFactor, cfg.MarginRetryLimit)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order executor")
		log.Fatalf("FATAL: Failed to initialize order executor: %v", err)
	}

	// 8. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, exchange, repo, provider, exec, stages)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 9. Metrics listener (optional)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, appLogger); err != nil {
				appLogger.Error(ctx, err, "Metrics listener exited with error")
			}
		}()
	}

	// 10. Start the Service
	if err := tradingService.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
