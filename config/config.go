package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/joho/godotenv"
)

var (
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type IMAPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Username     string        `json:"username"`
	Password     string        `json:"-"`
	Encryption   string        `json:"encryption"`
	Mailbox      string        `json:"mailbox"`
	PollInterval time.Duration `json:"poll_interval"`
}

func (c IMAPConfig) Enabled() bool { return c.Host != "" }

type OpenAIConfig struct {
	APIKey     string `json:"-"`
	BaseURL    string `json:"base_url"`
	APIVersion string `json:"api_version"`
	Model      string `json:"model"`
	Azure      bool   `json:"azure"`
}

func (c OpenAIConfig) Enabled() bool { return c.APIKey != "" }

type SMTPConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"-"`
	FromEmail      string `json:"from_email"`
	AlertRecipient string `json:"alert_recipient"`
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.AlertRecipient != "" }

type Config struct {
	Environment        string   `json:"environment"`
	ServerPort         string   `json:"server_port"`
	StaticDir          string   `json:"static_dir"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
	LogLevel           string   `json:"log_level"`
	LogFormat          string   `json:"log_format"`
	SentryDSN          string   `json:"-"`

	DBDriver       string `json:"db_driver"`
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`
	SQLitePath     string `json:"sqlite_path"`

	Redis                  RedisConfig `json:"redis"`
	RateLimitWordMutations int         `json:"rate_limit_word_mutations"`
	RelaySendBuffer        int         `json:"relay_send_buffer"`
	RelayURL               string      `json:"relay_url"`

	IMAP   IMAPConfig   `json:"imap"`
	OpenAI OpenAIConfig `json:"openai"`
	SMTP   SMTPConfig   `json:"smtp"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	AppConfig = cfg
	logConfig()
	return nil
}

// Load reads the configuration from the environment without touching
// AppConfig.
func Load() (Config, error) {
	port := getEnv("PORT", "3000")
	cfg := Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         port,
		StaticDir:          getEnv("STATIC_DIR", "./public"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),

		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", DriverMemory)),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "mailwatch"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		SQLitePath:     getEnv("SQLITE_PATH", "mailwatch.db"),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimitWordMutations: getEnvAsInt("RATE_LIMIT_WORD_MUTATIONS", 30),
		RelaySendBuffer:        getEnvAsInt("RELAY_SEND_BUFFER", 1024),
		RelayURL:               getEnv("RELAY_URL", "ws://localhost:"+port+"/ws"),

		IMAP: IMAPConfig{
			Host:         getEnv("IMAP_HOST", ""),
			Port:         getEnvAsInt("IMAP_PORT", 993),
			Username:     getEnv("IMAP_USERNAME", ""),
			Password:     getEnv("IMAP_PASSWORD", ""),
			Encryption:   strings.ToUpper(getEnv("IMAP_ENCRYPTION", "TLS")),
			Mailbox:      getEnv("IMAP_MAILBOX", "INBOX"),
			PollInterval: getEnvAsDuration("INBOX_POLL_INTERVAL", time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", ""),
			APIVersion: getEnv("OPENAI_API_VERSION", "2024-06-01"),
			Model:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Azure:      getEnvAsBool("OPENAI_AZURE", false),
		},
		SMTP: SMTPConfig{
			Host:           getEnv("SMTP_HOST", ""),
			Port:           getEnvAsInt("SMTP_PORT", 587),
			Username:       getEnv("SMTP_USERNAME", ""),
			Password:       getEnv("SMTP_PASSWORD", ""),
			FromEmail:      getEnv("FROM_EMAIL", ""),
			AlertRecipient: getEnv("ALERT_RECIPIENT", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.ServerPort)
	}
	if c.IMAP.Enabled() && c.IMAP.PollInterval <= 0 {
		return fmt.Errorf("INBOX_POLL_INTERVAL must be positive")
	}
	if c.SMTP.AlertRecipient != "" {
		if err := checkmail.ValidateFormat(c.SMTP.AlertRecipient); err != nil {
			return fmt.Errorf("ALERT_RECIPIENT is not a valid address: %w", err)
		}
	}
	if c.OpenAI.Azure && c.OpenAI.Enabled() && c.OpenAI.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL is required when OPENAI_AZURE is set")
	}
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Store: %s", AppConfig.DBDriver)
	log.Printf("Relay URL: %s", AppConfig.RelayURL)
	log.Printf("Inbox monitor(%t), LLM(%t), Alert mail(%t), Redis limiter(%t)",
		AppConfig.IMAP.Enabled(),
		AppConfig.OpenAI.Enabled(),
		AppConfig.SMTP.Enabled(),
		AppConfig.Redis.Enabled)
}
