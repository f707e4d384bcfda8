package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all API service configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	LLM      LLMConfig      `json:"llm"`
	NLP      NLPConfig      `json:"nlp"`
	Auth     AuthConfig     `json:"auth"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
	Mongo    MongoConfig    `json:"mongo"`
	Metrics  MetricsConfig  `json:"metrics"`

	// Shared secret for the ingestor's internal routes. Empty disables them.
	InternalAPISecret string `json:"-"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"-"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConns       int           `json:"max_conns"`
	MinConns       int           `json:"min_conns"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// LLMConfig holds the chat-completion provider settings
type LLMConfig struct {
	DeepSeekAPIKey  string        `json:"-"`
	DeepSeekURL     string        `json:"deepseek_url"`
	DeepSeekModel   string        `json:"deepseek_model"`
	QwenAPIKey      string        `json:"-"`
	QwenURL         string        `json:"qwen_url"`
	QwenModel       string        `json:"qwen_model"`
	DefaultProvider string        `json:"default_provider"`
	Timeout         time.Duration `json:"timeout"`
	BreakerFailures int           `json:"breaker_failures"`
	BreakerTimeout  time.Duration `json:"breaker_timeout"`
}

// NLPConfig holds assistant endpoint settings
type NLPConfig struct {
	RatePerMinute float64 `json:"rate_per_minute"`
	Burst         int     `json:"burst"`
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecretKey        string        `json:"-"`
	JWTIssuer           string        `json:"jwt_issuer"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	Admin               AdminConfig   `json:"admin"`
}

// AdminConfig holds the single operator account allowed to mint tokens
type AdminConfig struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// MongoConfig configures the optional assistant transcript store.
type MongoConfig struct {
	URI        string        `json:"-"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// Enabled reports whether a transcript store should be opened.
func (m MongoConfig) Enabled() bool { return m.URI != "" }

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"-"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	Topic       string        `json:"topic"`
	ClientID    string        `json:"client_id"`
	SharedGroup string        `json:"shared_group"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// BatchConfig holds batch processing configuration
type BatchConfig struct {
	Size   int           `json:"size"`
	Window time.Duration `json:"window"`
}

// IngestorConfig holds configuration for the MQTT telemetry ingestor
type IngestorConfig struct {
	MQTT              MQTTConfig    `json:"mqtt"`
	Batch             BatchConfig   `json:"batch"`
	Logging           LoggingConfig `json:"logging"`
	ApiServiceURL     string        `json:"api_service_url"`
	InternalAPISecret string        `json:"-"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	HealthPort        string        `json:"health_port"`
}

// Load reads the API service configuration from the environment.
// A .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Server: ServerConfig{
			Port:            env.getEnv("PORT", "8000"),
			ReadTimeout:     env.getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.getDuration("WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:     env.getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: env.getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:           env.getEnv("POSTGRES_HOST", "localhost"),
			Port:           env.getInt("POSTGRES_PORT", 5432),
			User:           env.getEnv("POSTGRES_USER", "postgres"),
			Password:       env.getEnv("POSTGRES_PASSWORD", ""),
			DBName:         env.getEnv("POSTGRES_DB", "smart_home"),
			SSLMode:        env.getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:       env.getInt("POSTGRES_MAX_CONNS", 25),
			MinConns:       env.getInt("POSTGRES_MIN_CONNS", 5),
			ConnectTimeout: env.getDuration("POSTGRES_CONNECT_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			DeepSeekAPIKey:  env.getEnv("DEEPSEEK_API_KEY", ""),
			DeepSeekURL:     env.getEnv("DEEPSEEK_API_URL", "https://api.deepseek.com/chat/completions"),
			DeepSeekModel:   env.getEnv("DEEPSEEK_MODEL", "deepseek-reasoner"),
			QwenAPIKey:      env.getEnv("QWEN_API_KEY", ""),
			QwenURL:         env.getEnv("QWEN_API_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"),
			QwenModel:       env.getEnv("QWEN_MODEL", "qwen-max-longcontext"),
			DefaultProvider: env.getEnv("LLM_DEFAULT_PROVIDER", "deepseek"),
			Timeout:         env.getDuration("LLM_TIMEOUT", 60*time.Second),
			BreakerFailures: env.getInt("LLM_BREAKER_FAILURES", 5),
			BreakerTimeout:  env.getDuration("LLM_BREAKER_TIMEOUT", 30*time.Second),
		},
		NLP: NLPConfig{
			RatePerMinute: env.getFloat("NLP_RATE_PER_MINUTE", 30),
			Burst:         env.getInt("NLP_RATE_BURST", 5),
		},
		Auth: AuthConfig{
			Enabled:             env.getBool("AUTH_ENABLED", false),
			JWTSecretKey:        env.getEnv("JWT_SECRET_KEY", ""),
			JWTIssuer:           env.getEnv("JWT_ISSUER", "shm-api-service"),
			AccessTokenDuration: env.getDuration("JWT_ACCESS_TOKEN_DURATION", time.Hour),
			Admin: AdminConfig{
				Username:     env.getEnv("ADMIN_USERNAME", "admin"),
				PasswordHash: env.getEnv("ADMIN_PASSWORD_HASH", ""),
			},
		},
		Logging: loadLogging(env),
		CORS: CORSConfig{
			AllowedOrigins:   env.getStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   env.getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   env.getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			ExposedHeaders:   env.getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length", "X-Request-ID"}),
			AllowCredentials: env.getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           env.getInt("CORS_MAX_AGE", 43200),
		},
		Mongo: MongoConfig{
			URI:        env.getEnv("MONGODB_URI", ""),
			Database:   env.getEnv("MONGODB_DB", "smart_home"),
			Collection: env.getEnv("MONGODB_TRANSCRIPTS", "nlp_transcripts"),
			Timeout:    env.getDuration("MONGODB_TIMEOUT", 10*time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: env.getBool("METRICS_ENABLED", true),
			Path:    env.getEnv("METRICS_PATH", "/metrics"),
		},
		InternalAPISecret: env.getEnv("INTERNAL_API_SECRET", ""),
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadIngestorConfig reads the telemetry ingestor configuration from the environment
func LoadIngestorConfig() (*IngestorConfig, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &IngestorConfig{
		MQTT: MQTTConfig{
			BrokerHost:  env.getEnv("BROKER_HOST", "localhost"),
			BrokerPort:  env.getInt("BROKER_PORT", 1883),
			BrokerUser:  env.getEnv("BROKER_USER", ""),
			BrokerPass:  env.getEnv("BROKER_PASS", ""),
			UseTLS:      env.getBool("BROKER_TLS", false),
			CACertPath:  env.getEnv("BROKER_CA_FILE", ""),
			Topic:       env.getEnv("MQTT_TOPIC", "smarthome/#"),
			ClientID:    env.getEnv("MQTT_CLIENT_ID", "shm-ingestor"),
			SharedGroup: env.getEnv("MQTT_SHARED_GROUP", ""),
			KeepAlive:   env.getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: env.getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Batch: BatchConfig{
			Size:   env.getInt("BATCH_SIZE", 100),
			Window: env.getDuration("BATCH_WINDOW", time.Second),
		},
		Logging:           loadLogging(env),
		ApiServiceURL:     env.getEnv("API_SERVICE_URL", "http://localhost:8000"),
		InternalAPISecret: env.getEnv("INTERNAL_API_SECRET", ""),
		RequestTimeout:    env.getDuration("API_REQUEST_TIMEOUT", 10*time.Second),
		HealthPort:        env.getEnv("INGESTOR_HEALTH_PORT", "8081"),
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadLogging(env *envReader) LoggingConfig {
	return LoggingConfig{
		Level:        env.getEnv("LOG_LEVEL", "info"),
		Format:       env.getEnv("LOG_FORMAT", "text"),
		Output:       env.getEnv("LOG_OUTPUT", "stdout"),
		EnableCaller: env.getBool("LOG_ENABLE_CALLER", false),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid PORT %q", c.Server.Port)
	}
	if c.Database.DBName == "" {
		return errors.New("POSTGRES_DB is required")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("LLM_TIMEOUT must be positive")
	}
	if c.NLP.RatePerMinute <= 0 || c.NLP.Burst <= 0 {
		return errors.New("NLP_RATE_PER_MINUTE and NLP_RATE_BURST must be positive")
	}
	if c.Auth.Enabled {
		if c.Auth.JWTSecretKey == "" {
			return errors.New("JWT_SECRET_KEY is required when AUTH_ENABLED is set")
		}
		if c.Auth.Admin.PasswordHash == "" {
			return errors.New("ADMIN_PASSWORD_HASH is required when AUTH_ENABLED is set")
		}
	}
	return nil
}

// Validate validates the ingestor configuration
func (c *IngestorConfig) Validate() error {
	if c.ApiServiceURL == "" {
		return errors.New("API_SERVICE_URL is required")
	}
	if c.InternalAPISecret == "" {
		return errors.New("INTERNAL_API_SECRET is required")
	}
	if c.Batch.Size <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.Batch.Window <= 0 {
		return errors.New("BATCH_WINDOW must be positive")
	}
	return nil
}

// GetDatabaseDSN returns the lib/pq connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *IngestorConfig) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// envReader collects parse failures so Load can report all of them at once.
type envReader struct {
	errs []error
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return intValue
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return f
}

func (e *envReader) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %q (expected true/false or 1/0)", key, value))
	return defaultValue
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return duration
}

func (e *envReader) getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
