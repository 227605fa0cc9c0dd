package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fadedpez/spinz/internal/config"
	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/services/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(driver string, dir string) *config.Config {
	return &config.Config{
		Environment:        "development",
		ServerPort:         "0",
		StorageDriver:      driver,
		DataDir:            dir,
		SQLitePath:         filepath.Join(dir, "spinz.db"),
		ReceiptTTL:         time.Hour,
		BigWinMultiplier:   20,
		MaxConflictRetries: 5,
		StepTimeout:        time.Second,
		AchievementTimeout: 100 * time.Millisecond,
		ReconcileInterval:  time.Hour,
		OrphanDebitAge:     time.Minute,
	}
}

func TestNewServesHealth(t *testing.T) {
	// Setup
	logger := logging.NewLoggerWithWriter(io.Discard, logging.DEBUG, false)
	s, err := New(context.Background(), testConfig(config.DriverMemory, t.TempDir()), logger)
	require.NoError(t, err)
	defer s.Close()

	// Execute
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.maintenance)
}

func TestSQLiteStoreSettlesBets(t *testing.T) {
	// Setup
	ctx := context.Background()
	logger := logging.NewLoggerWithWriter(io.Discard, logging.DEBUG, false)
	s, err := New(ctx, testConfig(config.DriverSQLite, t.TempDir()), logger)
	require.NoError(t, err)
	defer s.Close()

	deposit, _, err := s.Wallets.Deposit(ctx, &wallet.TransferRequest{
		AccountID:      "acc-1",
		Currency:       "USD",
		Amount:         1000,
		IdempotencyKey: "seed",
	})
	require.NoError(t, err)

	// Execute
	receipt, err := s.Engine.PlaceBet(ctx, &entities.BetRequest{
		AccountID:      "acc-1",
		WalletID:       deposit.WalletID,
		GameID:         "classic",
		Amount:         10,
		Currency:       "USD",
		IdempotencyKey: "spin-1",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 990+receipt.Payout, receipt.NewBalance)

	report, err := s.Wallets.Reconcile(ctx, deposit.WalletID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestNewRejectsMissingCatalog(t *testing.T) {
	// Setup
	cfg := testConfig(config.DriverMemory, t.TempDir())
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

	// Execute
	_, err := New(context.Background(), cfg, logging.NewLoggerWithWriter(io.Discard, logging.DEBUG, false))

	// Assert
	assert.Error(t, err)
}
