package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Env      string
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Booking  BookingConfig
	Match    MatchConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RequestsPerMinute int
	AllowedOrigins    []string
}

// StoreConfig selects the persistence and lock backends.
type StoreConfig struct {
	Driver     string // memory | postgres
	LockDriver string // local | redis
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// KafkaConfig holds the outbound event stream configuration.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// BookingConfig holds seat reservation and fare settings.
type BookingConfig struct {
	FarePerSeat     int64
	ReserveAttempts int
	RetryBaseDelay  time.Duration
	SeatLockTTL     time.Duration
}

// MatchConfig holds timetable suggestion settings.
type MatchConfig struct {
	Campus  string
	MinLead time.Duration
	MaxLead time.Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_REQUESTS_PER_MIN", 120)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "*")

	v.SetDefault("STORE_DRIVER", "memory")
	v.SetDefault("LOCK_DRIVER", "local")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campusride")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("NEW_RELIC_APP_NAME", "campusride")
	v.SetDefault("NEW_RELIC_LICENSE_KEY", "")
	v.SetDefault("NEW_RELIC_ENABLED", false)

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "campusride.events")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", 24*time.Hour)

	v.SetDefault("BOOKING_FARE_PER_SEAT", 15)
	v.SetDefault("BOOKING_RESERVE_ATTEMPTS", 5)
	v.SetDefault("BOOKING_RETRY_BASE_DELAY", 10*time.Millisecond)
	v.SetDefault("BOOKING_SEAT_LOCK_TTL", 5*time.Second)

	v.SetDefault("MATCH_CAMPUS", "IIT Campus")
	v.SetDefault("MATCH_MIN_LEAD", 15*time.Minute)
	v.SetDefault("MATCH_MAX_LEAD", 60*time.Minute)
}

// Load reads configuration from an optional config.yaml and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env: v.GetString("ENV"),
		Server: ServerConfig{
			Port:              v.GetString("SERVER_PORT"),
			ReadTimeout:       v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:      v.GetDuration("SERVER_WRITE_TIMEOUT"),
			RequestsPerMinute: v.GetInt("SERVER_REQUESTS_PER_MIN"),
			AllowedOrigins:    splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
			LockDriver: strings.ToLower(v.GetString("LOCK_DRIVER")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("NEW_RELIC_APP_NAME"),
			LicenseKey: v.GetString("NEW_RELIC_LICENSE_KEY"),
			Enabled:    v.GetBool("NEW_RELIC_ENABLED"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("KAFKA_ENABLED"),
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  v.GetDuration("JWT_TTL"),
		},
		Booking: BookingConfig{
			FarePerSeat:     v.GetInt64("BOOKING_FARE_PER_SEAT"),
			ReserveAttempts: v.GetInt("BOOKING_RESERVE_ATTEMPTS"),
			RetryBaseDelay:  v.GetDuration("BOOKING_RETRY_BASE_DELAY"),
			SeatLockTTL:     v.GetDuration("BOOKING_SEAT_LOCK_TTL"),
		},
		Match: MatchConfig{
			Campus:  v.GetString("MATCH_CAMPUS"),
			MinLead: v.GetDuration("MATCH_MIN_LEAD"),
			MaxLead: v.GetDuration("MATCH_MAX_LEAD"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be memory or postgres, got %q", c.Store.Driver))
	}
	switch c.Store.LockDriver {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("LOCK_DRIVER=redis requires REDIS_ENABLED=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("LOCK_DRIVER must be local or redis, got %q", c.Store.LockDriver))
	}
	if c.Booking.FarePerSeat <= 0 {
		errs = append(errs, errors.New("BOOKING_FARE_PER_SEAT must be positive"))
	}
	if c.Booking.ReserveAttempts < 1 {
		errs = append(errs, errors.New("BOOKING_RESERVE_ATTEMPTS must be at least 1"))
	}
	if c.Match.MinLead < 0 || c.Match.MaxLead < c.Match.MinLead {
		errs = append(errs, errors.New("MATCH_MAX_LEAD must not be shorter than MATCH_MIN_LEAD"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("SERVER_ALLOWED_ORIGINS entry %q must be * or start with http:// or https://", origin))
		}
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
