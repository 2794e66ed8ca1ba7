package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session store drivers.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Sessions   SessionConfig
	Backend    BackendConfig
	GradeSheet GradeSheetConfig
	Exports    ExportsConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret  string
	Enabled bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionConfig selects where editing sessions live and for how long.
type SessionConfig struct {
	Store         string
	TTL           time.Duration
	PurgeInterval time.Duration
}

// BackendConfig points at the grade persistence endpoints.
type BackendConfig struct {
	BaseURL        string
	SavePath       string
	AttendancePath string
	Timeout        time.Duration
}

// GradeSheetConfig holds the deployment-wide grade sheet behaviour switches.
type GradeSheetConfig struct {
	EmptyAverage  string
	ColumnFloor   int
	ClampOnCommit bool
	DecimalComma  bool
}

// ExportsConfig configures generated table downloads.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	CSVSeparator    string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:  v.GetString("JWT_SECRET"),
		Enabled: v.GetBool("AUTH_ENABLED"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sessions = SessionConfig{
		Store:         strings.ToLower(v.GetString("SESSION_STORE")),
		TTL:           parseDuration(v.GetString("SESSION_TTL"), 8*time.Hour),
		PurgeInterval: parseDuration(v.GetString("SESSION_PURGE_INTERVAL"), 10*time.Minute),
	}

	cfg.Backend = BackendConfig{
		BaseURL:        strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/"),
		SavePath:       v.GetString("BACKEND_SAVE_PATH"),
		AttendancePath: v.GetString("BACKEND_ATTENDANCE_PATH"),
		Timeout:        parseDuration(v.GetString("BACKEND_TIMEOUT"), 0),
	}

	cfg.GradeSheet = GradeSheetConfig{
		EmptyAverage:  strings.ToLower(v.GetString("GRADESHEET_EMPTY_AVERAGE")),
		ColumnFloor:   v.GetInt("GRADESHEET_COLUMN_FLOOR"),
		ClampOnCommit: v.GetBool("GRADESHEET_CLAMP_ON_COMMIT"),
		DecimalComma:  v.GetBool("GRADESHEET_DECIMAL_COMMA"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 30*time.Minute),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		CSVSeparator:    v.GetString("EXPORTS_CSV_SEPARATOR"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Sessions.Store {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.Sessions.Store)
	}
	switch c.GradeSheet.EmptyAverage {
	case "zero", "na":
	default:
		return fmt.Errorf("GRADESHEET_EMPTY_AVERAGE must be \"zero\" or \"na\", got %q", c.GradeSheet.EmptyAverage)
	}
	if c.GradeSheet.ColumnFloor != 0 && c.GradeSheet.ColumnFloor != 1 {
		return fmt.Errorf("GRADESHEET_COLUMN_FLOOR must be 0 or 1, got %d", c.GradeSheet.ColumnFloor)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if c.Env == EnvProduction && c.JWT.Enabled && c.JWT.Secret == "dev_secret" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("AUTH_ENABLED", true)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSION_STORE", SessionStoreMemory)
	v.SetDefault("SESSION_TTL", "8h")
	v.SetDefault("SESSION_PURGE_INTERVAL", "10m")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:8000")
	v.SetDefault("BACKEND_SAVE_PATH", "/calificaciones/guardar/")
	v.SetDefault("BACKEND_ATTENDANCE_PATH", "/calificaciones/inasistencias/")
	v.SetDefault("BACKEND_TIMEOUT", "")

	v.SetDefault("GRADESHEET_EMPTY_AVERAGE", "zero")
	v.SetDefault("GRADESHEET_COLUMN_FLOOR", 1)
	v.SetDefault("GRADESHEET_CLAMP_ON_COMMIT", false)
	v.SetDefault("GRADESHEET_DECIMAL_COMMA", false)

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_CSV_SEPARATOR", ",")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
