package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Telegram  TelegramConfig
	Portal    PortalConfig
	Vault     VaultConfig
	Scheduler SchedulerConfig
	Timetable TimetableConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// TelegramConfig holds Bot API delivery settings.
type TelegramConfig struct {
	Token   string
	APIURL  string
	Timeout time.Duration
}

// PortalConfig describes the Moodle instance attendance is marked against.
type PortalConfig struct {
	BaseURL string
	Timeout time.Duration
}

// VaultConfig carries the credential sealing secret.
type VaultConfig struct {
	EncryptionKey string
	KeySalt       string
}

// SchedulerConfig tunes the attendance poll loop.
type SchedulerConfig struct {
	PollInterval      time.Duration
	GraceBefore       time.Duration
	GraceAfter        time.Duration
	RetryInterval     time.Duration
	MaxRetries        int
	PortalTimeout     time.Duration
	WorkerConcurrency int
	AuthBackoff       time.Duration
}

// TimetableConfig controls where weekly schedules come from.
type TimetableConfig struct {
	FilePath string
	Timezone string
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Driver:       v.GetString("DB_DRIVER"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		Path:         v.GetString("DB_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Telegram = TelegramConfig{
		Token:   v.GetString("TELEGRAM_TOKEN"),
		APIURL:  v.GetString("TELEGRAM_API_URL"),
		Timeout: parseDuration(v.GetString("TELEGRAM_TIMEOUT"), 10*time.Second),
	}

	cfg.Portal = PortalConfig{
		BaseURL: v.GetString("MOODLE_BASE_URL"),
		Timeout: parseDuration(v.GetString("PORTAL_TIMEOUT"), 30*time.Second),
	}

	cfg.Vault = VaultConfig{
		EncryptionKey: v.GetString("ENCRYPTION_KEY"),
		KeySalt:       v.GetString("ENCRYPTION_KEY_SALT"),
	}

	cfg.Scheduler = SchedulerConfig{
		PollInterval:      parseDuration(v.GetString("POLL_INTERVAL"), 5*time.Minute),
		GraceBefore:       parseDuration(v.GetString("GRACE_BEFORE"), 5*time.Minute),
		GraceAfter:        parseDuration(v.GetString("GRACE_AFTER"), 10*time.Minute),
		RetryInterval:     parseDuration(v.GetString("RETRY_INTERVAL"), 2*time.Minute),
		MaxRetries:        v.GetInt("MAX_RETRIES"),
		PortalTimeout:     parseDuration(v.GetString("PORTAL_TIMEOUT"), 30*time.Second),
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
		AuthBackoff:       parseDuration(v.GetString("AUTH_BACKOFF"), time.Hour),
	}

	cfg.Timetable = TimetableConfig{
		FilePath: v.GetString("TIMETABLE_FILE"),
		Timezone: v.GetString("TIMEZONE"),
		CacheTTL: parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), 30*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_DRIVER", "sqlite3")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_PATH", "bot_database.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")

	v.SetDefault("MOODLE_BASE_URL", "https://dl.nure.ua")

	v.SetDefault("POLL_INTERVAL", "5m")
	v.SetDefault("GRACE_BEFORE", "5m")
	v.SetDefault("GRACE_AFTER", "10m")
	v.SetDefault("RETRY_INTERVAL", "2m")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("PORTAL_TIMEOUT", "30s")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("AUTH_BACKOFF", "1h")

	v.SetDefault("TIMETABLE_FILE", "TimeTable.csv")
	v.SetDefault("TIMEZONE", "Europe/Kiev")
	v.SetDefault("TIMETABLE_CACHE_TTL", "30m")
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
