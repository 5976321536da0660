package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodbank/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, ":9001", cfg.GRPCAddr())
	assert.False(t, cfg.Purchase.ReserveStock)
	assert.True(t, cfg.Catalog.Seed)
	assert.Equal(t, 30*time.Second, cfg.Catalog.RefreshInterval)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Admin.Password)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BLOODBANK_HTTP_PORT", "8088")
	t.Setenv("BLOODBANK_PURCHASE_RESERVE_STOCK", "true")
	t.Setenv("BLOODBANK_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BLOODBANK_AUDIT_TIMEOUT", "750ms")
	t.Setenv("BLOODBANK_ADMIN_PASSWORD", "s3cret-ops")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8088", cfg.Addr())
	assert.True(t, cfg.Purchase.ReserveStock)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Audit.Timeout)
	assert.Equal(t, "s3cret-ops", cfg.Admin.Password)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloodbank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  dsn: postgres://localhost/bloodbank
admin:
  username: ops
kafka:
  brokers: [broker:9092]
`), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/bloodbank", cfg.DB.DSN)
	assert.Equal(t, "ops", cfg.Admin.Username)
	assert.Empty(t, cfg.Admin.Password)
	assert.Equal(t, []string{"broker:9092"}, cfg.Kafka.Brokers)

	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
