package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"securesend/internal/auth"

	"github.com/spf13/viper"
)

type Config struct {
	AppHost   string          `mapstructure:"host"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	DB        DBConfig        `mapstructure:"db"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Cookie    CookieConfig    `mapstructure:"cookie"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Password  PasswordConfig  `mapstructure:"password"`
	Tiers     TiersConfig     `mapstructure:"tiers"`
	Links     LinksConfig     `mapstructure:"links"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DBConfig struct {
	Source string `mapstructure:"source"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type CookieConfig struct {
	Secure bool `mapstructure:"secure"`
}

type StorageConfig struct {
	Backend string   `mapstructure:"backend"`
	Path    string   `mapstructure:"path"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type CryptoConfig struct {
	FileKey string `mapstructure:"file_key"`
}

type AuthConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`
	OTPTTL          time.Duration `mapstructure:"otp_ttl"`
}

type PasswordConfig struct {
	MinLength     int `mapstructure:"min_length"`
	MaxLength     int `mapstructure:"max_length"`
	MinScore      int `mapstructure:"min_score"`
	HistoryWindow int `mapstructure:"history_window"`
	HistoryCap    int `mapstructure:"history_cap"`
}

type TiersConfig struct {
	UserLimitBytes  int64         `mapstructure:"user_limit_bytes"`
	ProLimitBytes   int64         `mapstructure:"pro_limit_bytes"`
	AdminLimitBytes int64         `mapstructure:"admin_limit_bytes"`
	ProDuration     time.Duration `mapstructure:"pro_duration"`
}

type LinksConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	AuthLimit  int           `mapstructure:"auth_limit"`
	AuthWindow time.Duration `mapstructure:"auth_window"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type ScannerConfig struct {
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Disabled bool          `mapstructure:"disabled"`
}

type PaymentsConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("jwt.expiry", 30*time.Minute)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.path", "./secure_uploads")
	v.SetDefault("auth.max_attempts", 3)
	v.SetDefault("auth.lockout_duration", 2*time.Minute)
	v.SetDefault("auth.otp_ttl", 10*time.Minute)
	v.SetDefault("password.min_length", 12)
	v.SetDefault("password.max_length", 72)
	v.SetDefault("password.min_score", 3)
	v.SetDefault("password.history_window", 5)
	v.SetDefault("password.history_cap", 20)
	v.SetDefault("tiers.user_limit_bytes", 2_500_000)
	v.SetDefault("tiers.pro_limit_bytes", 5_000_000)
	v.SetDefault("tiers.admin_limit_bytes", 50_000_000)
	v.SetDefault("tiers.pro_duration", 30*24*time.Hour)
	v.SetDefault("links.ttl", 24*time.Hour)
	v.SetDefault("ratelimit.auth_limit", 10)
	v.SetDefault("ratelimit.auth_window", 15*time.Minute)
	v.SetDefault("scanner.url", "")
	v.SetDefault("scanner.timeout", 30*time.Second)
	v.SetDefault("scanner.disabled", false)
	v.SetDefault("log.level", "info")
}

func Load() (*Config, error) {
	return load(viper.New(), []string{"./configs", "/configs"})
}

func load(v *viper.Viper, paths []string) (*Config, error) {
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("settings")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt.secret is required")
	}
	if _, err := c.FileKey(); err != nil {
		return err
	}
	if c.Auth.MaxAttempts <= 0 {
		return errors.New("auth.max_attempts must be positive")
	}
	if c.Password.MaxLength > auth.MaxPasswordBytes {
		return fmt.Errorf("password.max_length must not exceed %d", auth.MaxPasswordBytes)
	}
	if c.Password.HistoryCap < c.Password.HistoryWindow {
		return errors.New("password.history_cap must not be smaller than password.history_window")
	}
	if strings.TrimSpace(c.Scanner.URL) == "" && !c.Scanner.Disabled {
		return errors.New("scanner.url is required unless scanner.disabled is true")
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// FileKey decodes crypto.file_key, accepting base64 or hex. The result is always 32 bytes.
func (c *Config) FileKey() ([]byte, error) {
	raw := strings.TrimSpace(c.Crypto.FileKey)
	if raw == "" {
		return nil, errors.New("crypto.file_key is required")
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, errors.New("crypto.file_key must encode exactly 32 bytes (hex or base64)")
}
