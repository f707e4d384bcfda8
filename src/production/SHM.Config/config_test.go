package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("AUTH_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "deepseek-reasoner", cfg.LLM.DeepSeekModel)
	assert.Equal(t, "qwen-max-longcontext", cfg.LLM.QwenModel)
	assert.False(t, cfg.Auth.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadReportsEveryBadValue(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "five")
	t.Setenv("LLM_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_PORT")
	assert.Contains(t, err.Error(), "LLM_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = "http" }, wantErr: "invalid PORT"},
		{name: "auth without secret", mutate: func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.Admin.PasswordHash = "$2a$10$x"
		}, wantErr: "JWT_SECRET_KEY"},
		{name: "auth without admin hash", mutate: func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.JWTSecretKey = "s3cret"
		}, wantErr: "ADMIN_PASSWORD_HASH"},
		{name: "zero timeout", mutate: func(c *Config) { c.LLM.Timeout = 0 }, wantErr: "LLM_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{Port: "8000"},
				Database: DatabaseConfig{DBName: "smart_home"},
				LLM:      LLMConfig{Timeout: time.Minute},
				NLP:      NLPConfig{RatePerMinute: 30, Burst: 5},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIngestorConfig(t *testing.T) {
	t.Setenv("INTERNAL_API_SECRET", "")
	_, err := LoadIngestorConfig()
	require.Error(t, err)

	t.Setenv("INTERNAL_API_SECRET", "shh")
	t.Setenv("BROKER_TLS", "true")
	t.Setenv("BROKER_HOST", "broker.local")
	t.Setenv("BROKER_PORT", "8883")
	cfg, err := LoadIngestorConfig()
	require.NoError(t, err)
	assert.Equal(t, "tcps://broker.local:8883", cfg.GetMQTTBrokerURL())
	assert.Equal(t, "smarthome/#", cfg.MQTT.Topic)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", DBName: "smart_home", SSLMode: "disable",
	}}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=smart_home sslmode=disable", cfg.GetDatabaseDSN())
}
