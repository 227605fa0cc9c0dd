package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STEP_TIMEOUT", "")
	t.Setenv("AUTO_COMPENSATE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 2*time.Second, cfg.StepTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ReceiptTTL)
	assert.Equal(t, int64(20), cfg.BigWinMultiplier)
	assert.False(t, cfg.AutoCompensate)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverSQLite)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("STEP_TIMEOUT", "750ms")
	t.Setenv("MAX_CONFLICT_RETRIES", "9")
	t.Setenv("AUTO_COMPENSATE", "true")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.StepTimeout)
	assert.Equal(t, 9, cfg.MaxConflictRetries)
	assert.True(t, cfg.AutoCompensate)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "STORAGE_DRIVER", "mongo"},
		{"bad duration", "STEP_TIMEOUT", "soon"},
		{"bad int", "REDIS_DB", "zero"},
		{"bad bool", "AUTO_COMPENSATE", "maybe"},
		{"orphan age within step timeouts", "ORPHAN_DEBIT_AGE", "8s"},
		{"orphan age zero", "ORPHAN_DEBIT_AGE", "0s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidatePostgresNeedsSource(t *testing.T) {
	cfg := &Config{StorageDriver: DriverPostgres, StepTimeout: time.Second, OrphanDebitAge: time.Minute, BigWinMultiplier: 1}
	assert.Error(t, cfg.validate())

	cfg.DBSource = "postgres://localhost/spinz"
	assert.NoError(t, cfg.validate())
}

func TestValidateWebhookPair(t *testing.T) {
	cfg := &Config{StorageDriver: DriverMemory, StepTimeout: time.Second, OrphanDebitAge: time.Minute, BigWinMultiplier: 1, DiscordWebhookID: "123"}
	assert.Error(t, cfg.validate())
}

func TestValidateOrphanDebitAge(t *testing.T) {
	testCases := []struct {
		name      string
		orphanAge time.Duration
		valid     bool
	}{
		{"zero", 0, false},
		{"twice the step timeout", 4 * time.Second, false},
		{"exactly four step timeouts", 8 * time.Second, false},
		{"beyond four step timeouts", 9 * time.Second, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{StorageDriver: DriverMemory, StepTimeout: 2 * time.Second, OrphanDebitAge: tc.orphanAge, BigWinMultiplier: 1}

			err := cfg.validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, "ORPHAN_DEBIT_AGE")
			}
		})
	}
}
