package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/stock-dashboard/internal/api"
	"github.com/trogers1052/stock-dashboard/internal/cache"
	"github.com/trogers1052/stock-dashboard/internal/config"
	"github.com/trogers1052/stock-dashboard/internal/database"
	"github.com/trogers1052/stock-dashboard/internal/documents"
	"github.com/trogers1052/stock-dashboard/internal/kafka"
	"github.com/trogers1052/stock-dashboard/internal/logging"
	"github.com/trogers1052/stock-dashboard/internal/marketdata"
	"github.com/trogers1052/stock-dashboard/internal/notice"
	"github.com/trogers1052/stock-dashboard/internal/scheduler"
	"github.com/trogers1052/stock-dashboard/internal/upsert"
)

func main() {
	cfgPath := "configs/dashboard.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid config")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}
	logger.WithField("config", cfgPath).Info("Stock dashboard starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	quotesTable := database.Table{Schema: cfg.Database.Schema, Name: cfg.Database.QuotesTable}
	historyTable := database.Table{Schema: cfg.Database.Schema, Name: cfg.Database.HistoryTable, Adjusted: true}

	if cfg.Database.Migrate {
		if database.Migrates(quotesTable) || database.Migrates(historyTable) {
			if err := db.Migrate(); err != nil {
				logger.WithError(err).Fatal("Failed to run migrations")
			}
			logger.Info("Migrations applied")
		}
		for _, t := range []database.Table{quotesTable, historyTable} {
			if !database.Migrates(t) {
				logger.WithField("table", t.String()).Info("Table not covered by migrations, created on first use")
			}
		}
	}

	quotesMode, err := upsert.ParseMode(cfg.Dedup.Quotes)
	if err != nil {
		logger.WithError(err).Fatal("Invalid dedup mode")
	}
	historyMode, err := upsert.ParseMode(cfg.Dedup.History)
	if err != nil {
		logger.WithError(err).Fatal("Invalid dedup mode")
	}
	quotesEngine := upsert.NewEngine(db, quotesMode, logger.WithField("table", quotesTable.String()))
	historyEngine := upsert.NewEngine(db, historyMode, logger.WithField("table", historyTable.String()))

	fetcher := marketdata.NewYahooFetcher(cfg.Provider.BaseURL, cfg.Provider.Timeout, cfg.Provider.Proxy)
	notices := notice.NewBoard(notice.DefaultCapacity)

	sched := scheduler.New(cfg.Watchlist.Symbols(), fetcher, quotesEngine, quotesTable,
		cfg.Scheduler.Interval, notices, logger.WithField("component", "scheduler"))
	sched.SetHistory(historyEngine, historyTable)

	deps := api.Dependencies{
		Watchlist:    cfg.Watchlist,
		Fetcher:      fetcher,
		Store:        db,
		QuotesTable:  quotesTable,
		History:      historyEngine,
		HistoryTable: historyTable,
		Documents:    documents.Scoped{Config: cfg.Mongo},
		CSVPath:      cfg.Export.CSVPath,
		Notices:      notices,
		Logger:       logger.WithField("component", "api"),
	}

	var quoteCache *cache.QuoteCache
	if cfg.Redis.Address != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Warn("Quote cache disabled")
		} else {
			defer client.Close()
			quoteCache = cache.NewQuoteCache(client, cfg.Redis.TTL)
			deps.Cache = quoteCache
			logger.WithField("address", cfg.Redis.Address).Info("Quote cache enabled")
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		sched.SetPublisher(producer)

		if quoteCache != nil {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID,
				quoteCache, logger.WithField("component", "consumer"))
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
					logger.WithError(err).Error("Quote event consumer stopped")
				}
			}()
		}
		logger.WithField("topic", cfg.Kafka.Topic).Info("Quote events enabled")
	} else if quoteCache != nil {
		sched.SetCache(quoteCache)
	}

	if cfg.Scheduler.HistoryCron != "" {
		if err := sched.ScheduleHistory(ctx, cfg.Scheduler.HistoryCron, cfg.Scheduler.HistoryDays); err != nil {
			logger.WithError(err).Fatal("Failed to schedule history backfill")
		}
		sched.Start()
		defer sched.Stop()
	}
	if cfg.Scheduler.RunOnStartup {
		go func() {
			if _, err := sched.BackfillHistory(ctx, cfg.Scheduler.HistoryDays); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Startup history backfill failed")
			}
		}()
	}

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.SetupRoutes(api.NewHandler(deps)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-schedDone:
		if err != nil {
			logger.WithError(err).Error("Scheduler stopped with a storage error")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	logger.Info("Stock dashboard stopped")
}
