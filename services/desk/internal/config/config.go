package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"murojaat/internal/util"
	"murojaat/pkg/auth"
)

// ConfigPath is read when neither the caller nor DESK_CONFIG names a file.
// A missing default file is not an error.
var ConfigPath = "config.yaml"

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionJWT    = "jwt"
)

// DefaultFaculties is the faculty list offered at registration.
var DefaultFaculties = []string{
	"Axborot texnologiyalari",
	"Iqtisodiyot",
	"Huquqshunoslik",
	"Filologiya",
	"Tibbiyot",
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	DatabaseURL                string   `yaml:"databaseURL"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	StoreBackend               string   `yaml:"storeBackend"`
	SessionBackend             string   `yaml:"sessionBackend"`
	SessionTTL                 string   `yaml:"sessionTTL"`
	JWTSecret                  string   `yaml:"jwtSecret"`
	RevokedTokenPrefix         string   `yaml:"revokedTokenPrefix"`
	CredentialMode             string   `yaml:"credentialMode"`
	Faculties                  []string `yaml:"faculties"`
	SeedDemoData               bool     `yaml:"seedDemoData"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	LoginFailureAlertThreshold int      `yaml:"loginFailureAlertThreshold"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCIDRs"`
	CORSAllowedOrigins         []string `yaml:"corsAllowedOrigins"`
	ShutdownTimeout            string   `yaml:"shutdownTimeout"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:                       "8080",
		LogLevel:                   "info",
		StoreBackend:               StoreMemory,
		SessionBackend:             SessionMemory,
		SessionTTL:                 "24h",
		CredentialMode:             string(auth.ModeBcrypt),
		Faculties:                  append([]string(nil), DefaultFaculties...),
		SeedDemoData:               true,
		LoginFailureAlertThreshold: 5,
		ShutdownTimeout:            "10s",
	}
}

// Load reads config from path, then .env and environment overrides, then
// validates. An empty path falls back to DESK_CONFIG and then ConfigPath.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	optional := false
	if path == "" {
		path = os.Getenv("DESK_CONFIG")
	}
	if path == "" {
		path = ConfigPath
		optional = true
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("DESK_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DESK_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("DESK_SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = v
	}
	if v := os.Getenv("DESK_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("DESK_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("DESK_REVOKED_TOKEN_PREFIX"); v != "" {
		cfg.RevokedTokenPrefix = v
	}
	if v := os.Getenv("DESK_CREDENTIAL_MODE"); v != "" {
		cfg.CredentialMode = v
	}
	if v := os.Getenv("DESK_FACULTIES"); v != "" {
		cfg.Faculties = SplitList(v)
	}
	if v := os.Getenv("DESK_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = SplitList(v)
	}
	if v := os.Getenv("DESK_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = SplitList(v)
	}
	if v := os.Getenv("DESK_SEED_DEMO_DATA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SeedDemoData = b
		}
	}
	if v := os.Getenv("DESK_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("DESK_REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("DESK_LOGIN_FAILURE_ALERT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginFailureAlertThreshold = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	switch cfg.StoreBackend {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store (set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown storeBackend %q", cfg.StoreBackend)
	}
	switch cfg.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for redis sessions (set REDIS_ADDR)")
		}
	case SessionJWT:
		if len(strings.TrimSpace(cfg.JWTSecret)) < 16 {
			return errors.New("config: jwtSecret of at least 16 characters is required for jwt sessions (set DESK_JWT_SECRET)")
		}
	default:
		return fmt.Errorf("config: unknown sessionBackend %q", cfg.SessionBackend)
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseShutdownTimeout(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := auth.NewHasher(cfg.CredentialMode); err != nil {
		return fmt.Errorf("config: credentialMode: %w", err)
	}
	if len(cfg.Faculties) == 0 {
		return errors.New("config: at least one faculty is required")
	}
	seen := make(map[string]bool, len(cfg.Faculties))
	for _, f := range cfg.Faculties {
		if strings.TrimSpace(f) == "" {
			return errors.New("config: faculty names must not be blank")
		}
		if seen[f] {
			return fmt.Errorf("config: duplicate faculty %q", f)
		}
		seen[f] = true
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginFailureAlertThreshold < 0 {
		return errors.New("config: rate limits and alert thresholds must be >= 0")
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		return fmt.Errorf("config: trustedProxyCIDRs: %w", err)
	}
	return nil
}

// ParseSessionTTL parses optional session TTL duration string. Zero keeps
// memory sessions until logout.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("sessionTTL must not be negative")
	}
	return dur, nil
}

// ParseShutdownTimeout parses the graceful shutdown budget, default 10s.
func ParseShutdownTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 10 * time.Second, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout duration: %w", err)
	}
	return dur, nil
}

// SplitList splits a comma separated env value, dropping blanks.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
