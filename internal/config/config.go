package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Scan     ScanConfig     `yaml:"scan"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// CORSOrigins lists the dashboard origins allowed to call the API; empty allows all.
	CORSOrigins []string `yaml:"cors_origins"`
	// ScanRateLimit is scan starts per second allowed per user.
	ScanRateLimit float64 `yaml:"scan_rate_limit"`
	ScanRateBurst int     `yaml:"scan_rate_burst"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite, mysql, postgres
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// LogLevel is the SQL logger level: silent, error, warn or info.
	LogLevel string `yaml:"log_level"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
	// Password given to the admin account created on first start.
	AdminPassword string `yaml:"admin_password"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	// RetentionDays bounds the audit log; a negative value keeps logs forever.
	RetentionDays int `yaml:"retention_days"`
}

// AnalysisConfig points at the static-analysis backend.
type AnalysisConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	// AssignDialect selects the assign endpoint: "path" uses PUT /issues/assign/{id},
	// "query" uses PUT /issues/{id}/assign?userId=.
	AssignDialect string `yaml:"assign_dialect"`
	// StatusDialect selects the status endpoint: "assign" uses PUT /assign/update/{userId}/{issueId},
	// "issue" uses PUT /issues/{id}/status.
	StatusDialect string `yaml:"status_dialect"`
}

// ScanConfig tunes the client-side progress estimator and the stale-scan sweep.
type ScanConfig struct {
	ProgressStep     int           `yaml:"progress_step"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	ReconcileCron    string        `yaml:"reconcile_cron"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.applyDefaults()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          "8080",
			Mode:          "debug",
			ScanRateLimit: 0.2,
			ScanRateBurst: 3,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "scanboard.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			LogLevel:        "warn",
		},
		JWT: JWTConfig{
			Secret:        "scanboard-secret-key-change-in-production",
			ExpireHour:    24,
			AdminPassword: "admin",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 30,
		},
		Analysis: AnalysisConfig{
			BaseURL:       "http://localhost:9000/api",
			Timeout:       30 * time.Second,
			AssignDialect: "path",
			StatusDialect: "assign",
		},
		Scan: ScanConfig{
			ProgressStep:     20,
			ProgressInterval: 500 * time.Millisecond,
			StaleAfter:       30 * time.Minute,
			ReconcileCron:    "*/5 * * * *",
		},
	}
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = def.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = def.Database.MaxIdleConns
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = def.Database.ConnMaxLifetime
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = def.Database.LogLevel
	}
	if c.Analysis.Timeout <= 0 {
		c.Analysis.Timeout = def.Analysis.Timeout
	}
	if c.Analysis.AssignDialect == "" {
		c.Analysis.AssignDialect = def.Analysis.AssignDialect
	}
	if c.Analysis.StatusDialect == "" {
		c.Analysis.StatusDialect = def.Analysis.StatusDialect
	}
	if c.Scan.ProgressStep <= 0 {
		c.Scan.ProgressStep = def.Scan.ProgressStep
	}
	if c.Scan.ProgressInterval <= 0 {
		c.Scan.ProgressInterval = def.Scan.ProgressInterval
	}
	if c.Scan.StaleAfter <= 0 {
		c.Scan.StaleAfter = def.Scan.StaleAfter
	}
	if c.Scan.ReconcileCron == "" {
		c.Scan.ReconcileCron = def.Scan.ReconcileCron
	}
	if c.Log.RetentionDays == 0 {
		c.Log.RetentionDays = def.Log.RetentionDays
	}
	if c.JWT.AdminPassword == "" {
		c.JWT.AdminPassword = def.JWT.AdminPassword
	}
	if c.JWT.ExpireHour <= 0 {
		c.JWT.ExpireHour = def.JWT.ExpireHour
	}
	if c.Server.ScanRateLimit <= 0 {
		c.Server.ScanRateLimit = def.Server.ScanRateLimit
	}
	if c.Server.ScanRateBurst <= 0 {
		c.Server.ScanRateBurst = def.Server.ScanRateBurst
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if origins := os.Getenv("SERVER_CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, o)
			}
		}
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if pw := os.Getenv("ADMIN_PASSWORD"); pw != "" {
		c.JWT.AdminPassword = pw
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if baseURL := os.Getenv("ANALYSIS_BASE_URL"); baseURL != "" {
		c.Analysis.BaseURL = baseURL
	}
	if token := os.Getenv("ANALYSIS_TOKEN"); token != "" {
		c.Analysis.Token = token
	}
	if timeout := os.Getenv("ANALYSIS_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Analysis.Timeout = d
		}
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
