package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jengzang/gpx-loop-cutter/internal/loops"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Loops    LoopsConfig    `mapstructure:"loops"`
	Simplify SimplifyConfig `mapstructure:"simplify"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	RateLimit       int           `mapstructure:"rate_limit"` // requests per window on mutating routes, 0 = off
	RateWindow      time.Duration `mapstructure:"rate_window"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig: an empty secret disables bearer auth on mutating routes
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LoopsConfig struct {
	ClosureThresholdM float64       `mapstructure:"closure_threshold_m"`
	MinLoopLengthM    float64       `mapstructure:"min_loop_length_m"`
	MaxLoopLengthM    float64       `mapstructure:"max_loop_length_m"`
	Policy            string        `mapstructure:"policy"`
	Workers           int           `mapstructure:"workers"` // 0 = GOMAXPROCS
	CandidateTTL      time.Duration `mapstructure:"candidate_ttl"`
	CacheSize         int           `mapstructure:"cache_size"`
}

// Thresholds returns the detection thresholds
func (c LoopsConfig) Thresholds() loops.Thresholds {
	return loops.Thresholds{
		ClosureThresholdM: c.ClosureThresholdM,
		MinLoopLengthM:    c.MinLoopLengthM,
		MaxLoopLengthM:    c.MaxLoopLengthM,
	}
}

type SimplifyConfig struct {
	MinDistanceM      float64 `mapstructure:"min_distance_m"`
	PreserveKeyPoints bool    `mapstructure:"preserve_key_points"`
}

// Load 加载配置: defaults, then the optional config file, then environment.
// configFile may be empty, in which case config.yaml is looked up in . and
// ./configs.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // OK if missing
	}

	// LOOPCUT_LOOPS_CLOSURE_THRESHOLD_M → loops.closure_threshold_m
	v.SetEnvPrefix("LOOPCUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// plain names kept from the original deployment
	_ = v.BindEnv("server.port", "LOOPCUT_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.path", "LOOPCUT_DATABASE_PATH", "DB_PATH")
	_ = v.BindEnv("auth.jwt_secret", "LOOPCUT_AUTH_JWT_SECRET", "JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Server.Port != "" && !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := loops.DefaultThresholds()

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("database.path", "./data/tracks/tracks.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("loops.closure_threshold_m", def.ClosureThresholdM)
	v.SetDefault("loops.min_loop_length_m", def.MinLoopLengthM)
	v.SetDefault("loops.max_loop_length_m", def.MaxLoopLengthM)
	v.SetDefault("loops.policy", loops.PolicyLeftmostEarliest)
	v.SetDefault("loops.workers", 0)
	v.SetDefault("loops.candidate_ttl", 30*time.Minute)
	v.SetDefault("loops.cache_size", 256)
	v.SetDefault("simplify.min_distance_m", 10.0)
	v.SetDefault("simplify.preserve_key_points", true)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port == "" {
		errs = append(errs, "server.port is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, "server.max_upload_bytes must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		errs = append(errs, "server.rate_window must be positive when server.rate_limit is set")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	errs = append(errs, c.Loops.validate()...)

	if c.Simplify.MinDistanceM < 0 {
		errs = append(errs, fmt.Sprintf("simplify.min_distance_m must not be negative, got %g", c.Simplify.MinDistanceM))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c LoopsConfig) validate() []string {
	errs := thresholdErrors(c.Thresholds(), c.Policy)

	if c.Workers < 0 {
		errs = append(errs, "loops.workers must not be negative")
	}
	if c.CandidateTTL <= 0 {
		errs = append(errs, "loops.candidate_ttl must be positive")
	}
	if c.CacheSize <= 0 {
		errs = append(errs, "loops.cache_size must be positive")
	}
	return errs
}

func thresholdErrors(th loops.Thresholds, policy string) []string {
	var errs []string

	if th.ClosureThresholdM <= 0 {
		errs = append(errs, fmt.Sprintf("loops.closure_threshold_m must be positive, got %g", th.ClosureThresholdM))
	}
	if th.MinLoopLengthM <= 0 {
		errs = append(errs, fmt.Sprintf("loops.min_loop_length_m must be positive, got %g", th.MinLoopLengthM))
	}
	if th.MaxLoopLengthM < th.MinLoopLengthM {
		errs = append(errs, fmt.Sprintf("loops.max_loop_length_m (%g) must not be below loops.min_loop_length_m (%g)",
			th.MaxLoopLengthM, th.MinLoopLengthM))
	}
	if _, err := loops.PolicyByName(policy); err != nil {
		errs = append(errs, fmt.Sprintf("loops.policy: %v", err))
	}
	return errs
}

// ValidateThresholds applies the loops.* checks to thresholds that arrive
// per request instead of from the config file.
func ValidateThresholds(th loops.Thresholds, policy string) error {
	if errs := thresholdErrors(th, policy); len(errs) > 0 {
		return fmt.Errorf("invalid detection parameters: %s", strings.Join(errs, "; "))
	}
	return nil
}
