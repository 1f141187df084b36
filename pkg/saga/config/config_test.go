package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdean-oss/sagaorch/pkg/saga/config"
)

func TestConfigAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"timeout": "30s",
		"retries": 3,
		"enabled": true,
		"kafka": map[string]any{
			"brokers":        []any{"broker-1:9092", "broker-2:9092"},
			"consumer_group": "order-saga",
		},
	})

	assert.Equal(t, 30*time.Second, cfg.Duration("timeout", time.Second))
	assert.Equal(t, 3, cfg.Int("retries", 0))
	assert.True(t, cfg.Bool("enabled", false))
	assert.Equal(t, "default", cfg.String("missing", "default"))

	kafkaCfg := cfg.Kafka("default-group", "3.6.0")
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, kafkaCfg.Brokers)
	assert.Equal(t, "order-saga", kafkaCfg.ConsumerGroup)
	assert.Equal(t, "3.6.0", kafkaCfg.Version, "falls back to the default version when absent")
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
sqlite:
  path: /var/lib/sagaorch/state.db
shutdown_timeout: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sagaorch/state.db", cfg.SQLite("state.db").Path)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout(time.Second))
}
