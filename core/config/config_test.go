package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.AutomaticEnv()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.Interval)
	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 2*time.Hour, cfg.Reaper.Interval)
	assert.Equal(t, 48*time.Hour, cfg.Reaper.Threshold)
	assert.Equal(t, "America/Sao_Paulo", cfg.Governor.Timezone)
	assert.Equal(t, BackendWhatsmeow, cfg.Messaging.Backend)
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	viper.AutomaticEnv()
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/leads")
	t.Setenv("WAHA_API_URL", "http://waha:3000/")
	t.Setenv("PROSPECTOR_MODE", "Lojaky")
	t.Setenv("MESSAGE_DELAY_MIN", "3")
	t.Setenv("MESSAGE_DELAY_MAX", "2m")
	t.Setenv("DISPATCH_BATCH_SIZE", "50")
	t.Setenv("SCRAPE_CITIES", "Recife, Olinda ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, BackendWAHA, cfg.Messaging.Backend)
	assert.Equal(t, "http://waha:3000", cfg.Messaging.WAHA.URL)
	assert.Equal(t, "lojaky", cfg.Governor.Mode)
	assert.Equal(t, 3*time.Second, cfg.Governor.MinDelay)
	assert.Equal(t, 2*time.Minute, cfg.Governor.MaxDelay)
	assert.Equal(t, 10, cfg.Dispatch.BatchSize, "batch size is capped")
	assert.Equal(t, []string{"Recife", "Olinda"}, cfg.Governor.Cities)
}

func TestLoadConfig_RejectsUnknownMode(t *testing.T) {
	viper.AutomaticEnv()
	t.Setenv("PROSPECTOR_MODE", "crm")

	_, err := LoadConfig()
	assert.Error(t, err)
}
