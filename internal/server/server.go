// Package server wires configuration, storage, services and the HTTP API together.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fadedpez/spinz/internal/api"
	"github.com/fadedpez/spinz/internal/config"
	"github.com/fadedpez/spinz/internal/discord"
	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/analytics"
	"github.com/fadedpez/spinz/pkg/db/migrations"
	"github.com/fadedpez/spinz/pkg/repositories/catalog"
	"github.com/fadedpez/spinz/pkg/repositories/ledger"
	"github.com/fadedpez/spinz/pkg/repositories/receipts"
	"github.com/fadedpez/spinz/pkg/repositories/stats"
	"github.com/fadedpez/spinz/pkg/rng"
	"github.com/fadedpez/spinz/pkg/scheduler"
	"github.com/fadedpez/spinz/pkg/services/achievement"
	"github.com/fadedpez/spinz/pkg/services/settlement"
	"github.com/fadedpez/spinz/pkg/services/statistics"
	"github.com/fadedpez/spinz/pkg/services/wallet"
	"github.com/redis/go-redis/v9"
)

// Server represents the settlement service and its dependencies
type Server struct {
	config *config.Config
	logger *logging.Logger

	Wallets      *wallet.Service
	Engine       *settlement.Engine
	Games        catalog.Catalog
	Stats        *statistics.Service
	Achievements *achievement.Evaluator

	analytics   *analytics.ElasticsearchSink
	reconciler  *scheduler.ReconcileScheduler
	maintenance *scheduler.ElasticsearchMaintenanceScheduler
	httpServer  *http.Server
	closers     []func() error
	shutdownWg  sync.WaitGroup
}

// New builds every component named by the configuration. Nothing is started.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Default
	}
	s := &Server{config: cfg, logger: logger}

	ledgerRepo, statsRepo, err := s.openStores(ctx)
	if err != nil {
		s.close()
		return nil, err
	}

	if cfg.CatalogPath != "" {
		s.Games, err = catalog.LoadFile(cfg.CatalogPath)
	} else {
		s.Games, err = catalog.NewMemoryCatalog(catalog.DefaultGames()...)
	}
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to load game catalog: %w", err)
	}

	s.Wallets = wallet.NewService(ledgerRepo, cfg.MaxConflictRetries, logger)
	s.Stats = statistics.NewService(statsRepo)
	s.Achievements = achievement.NewEvaluator(statsRepo, logger)

	opts := []settlement.Option{settlement.WithAchievements(s.Achievements)}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			s.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		opts = append(opts, settlement.WithReceiptCache(receipts.NewRedisCache(client, cfg.ReceiptTTL)))
		logger.Info("Receipt cache enabled at %s", cfg.RedisAddr)
	}

	if cfg.ElasticsearchURL != "" {
		s.analytics, err = analytics.NewElasticsearchSink(&analytics.ElasticsearchConfig{
			URL:             cfg.ElasticsearchURL,
			Username:        cfg.ElasticsearchUsername,
			Password:        cfg.ElasticsearchPassword,
			IndexPrefix:     cfg.ElasticsearchIndexPrefix,
			RetentionPeriod: cfg.ElasticsearchRetention,
		}, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		opts = append(opts, settlement.WithSinks(s.analytics))
		logger.Info("Analytics sink enabled at %s", cfg.ElasticsearchURL)
	}

	if cfg.DiscordWebhookID != "" {
		session, err := discord.NewSession()
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		notifier := discord.NewBigWinNotifier(session, cfg.DiscordWebhookID, cfg.DiscordWebhookToken, cfg.BigWinMultiplier)
		opts = append(opts, settlement.WithSinks(notifier))
		logger.Info("Big-win notifications enabled at %dx", cfg.BigWinMultiplier)
	}

	settlementCfg := settlement.DefaultConfig()
	settlementCfg.StepTimeout = cfg.StepTimeout
	settlementCfg.AchievementTimeout = cfg.AchievementTimeout
	settlementCfg.OrphanDebitAge = cfg.OrphanDebitAge
	s.Engine = settlement.NewEngine(s.Wallets, s.Games, rng.NewCryptoGenerator(), settlementCfg, logger, opts...)

	var apiOpts []api.Option
	if cfg.OperatorToken != "" {
		apiOpts = append(apiOpts, api.WithOperatorToken(cfg.OperatorToken))
	}
	handler := api.NewHandler(s.Engine, s.Wallets, s.Games, s.Stats, s.Achievements, logger, apiOpts...)
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	s.reconciler = scheduler.NewReconcileScheduler(s.Engine, cfg.ReconcileInterval, cfg.AutoCompensate, logger)
	if s.analytics != nil {
		s.maintenance = scheduler.NewElasticsearchMaintenanceScheduler(s.analytics, 24*time.Hour, logger)
	}

	return s, nil
}

// openStores opens the ledger and statistics stores for the configured driver
func (s *Server) openStores(ctx context.Context) (ledger.Repository, stats.Repository, error) {
	switch s.config.StorageDriver {
	case config.DriverSQLite:
		s.logger.Info("Opening SQLite store at %s", s.config.SQLitePath)
		db, err := migrations.OpenSQLite(s.config.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, db.Close)
		return ledger.NewSQLiteRepository(db), stats.NewSQLRepository(db, migrations.DialectSQLite), nil

	case config.DriverPostgres:
		s.logger.Info("Opening Postgres store")
		pool, db, err := migrations.OpenPostgres(ctx, s.config.DBSource)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, db.Close, func() error {
			pool.Close()
			return nil
		})
		return ledger.NewPostgresRepository(pool), stats.NewSQLRepository(db, migrations.DialectPostgres), nil

	default:
		s.logger.Warn("Using in-memory store, data will be lost on restart")
		return ledger.NewMemoryRepository(), stats.NewMemoryRepository(), nil
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the background schedulers and begins serving HTTP
func (s *Server) Start(ctx context.Context) error {
	s.reconciler.Start(ctx)
	if s.maintenance != nil {
		s.maintenance.Start(ctx)
	}

	s.shutdownWg.Add(1)
	go func() {
		defer s.shutdownWg.Done()
		s.logger.Info("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests, lets in-flight settlements finish and
// closes the stores
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.shutdownWg.Wait()

	s.reconciler.Stop()
	if s.maintenance != nil {
		s.maintenance.Stop()
	}
	s.Engine.Wait()

	if closeErr := s.close(); err == nil {
		err = closeErr
	}
	return err
}

// Close releases the stores without serving. It is for one-shot tools.
func (s *Server) Close() error {
	s.Engine.Wait()
	return s.close()
}

func (s *Server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
