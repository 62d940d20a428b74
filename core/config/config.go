package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig sets the minimum interval between two updates of one user.
// ExcludeUpdates accepts "callback" and "message".
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// RedisConfig holds Redis settings. An empty Addr keeps conversation state in memory.
type RedisConfig struct {
	Addr           string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password       string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB             int    `yaml:"db" envconfig:"REDIS_DB"`
	TimeoutMS      int    `yaml:"timeout_ms" envconfig:"REDIS_TIMEOUT_MS"`
	LockExpiryMS   int    `yaml:"lock_expiry_ms" envconfig:"REDIS_LOCK_EXPIRY_MS"`
	DisableLocking bool   `yaml:"disable_locking" envconfig:"REDIS_DISABLE_LOCKING"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
	Path   string `yaml:"path" envconfig:"METRICS_PATH"`
}

// CampaignConfig carries the quota, cooldown and review rules of the campaign.
type CampaignConfig struct {
	MaxDailyUses      int      `yaml:"max_daily_uses" envconfig:"CAMPAIGN_MAX_DAILY_USES"`
	NewUserFree       int      `yaml:"new_user_free" envconfig:"CAMPAIGN_NEW_USER_FREE"`
	ReturningUserFree int      `yaml:"returning_user_free" envconfig:"CAMPAIGN_RETURNING_USER_FREE"`
	Cooldowns         []string `yaml:"cooldowns" envconfig:"CAMPAIGN_COOLDOWNS"`
	UTCOffsetHours    *int     `yaml:"utc_offset_hours" envconfig:"CAMPAIGN_UTC_OFFSET_HOURS"`
	StateTTL          string   `yaml:"state_ttl" envconfig:"CAMPAIGN_STATE_TTL"`
	VIPInviteLink     string   `yaml:"vip_invite_link" envconfig:"CAMPAIGN_VIP_INVITE_LINK"`
	OrderPattern      string   `yaml:"order_pattern" envconfig:"CAMPAIGN_ORDER_PATTERN"`
	MaxOrderAttempts  int      `yaml:"max_order_attempts" envconfig:"CAMPAIGN_MAX_ORDER_ATTEMPTS"`
	RejectThreshold   int      `yaml:"reject_threshold" envconfig:"CAMPAIGN_REJECT_THRESHOLD"`
	DeliveryPageSize  int      `yaml:"delivery_page_size" envconfig:"CAMPAIGN_DELIVERY_PAGE_SIZE"`
	DeliveryDelayMS   int      `yaml:"delivery_delay_ms" envconfig:"CAMPAIGN_DELIVERY_DELAY_MS"`
}

// Config aggregates the whole application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Campaign  CampaignConfig  `yaml:"campaign"`
}

// Campaign defaults.
const (
	DefaultMaxDailyUses      = 10
	DefaultNewUserFree       = 3
	DefaultReturningUserFree = 2
	DefaultUTCOffsetHours    = 8
	DefaultStateTTL          = time.Hour
	DefaultOrderPattern      = `^\d{18,20}$`
	DefaultMaxOrderAttempts  = 2
	DefaultRejectThreshold   = 3
	DefaultDeliveryPageSize  = 10
	DefaultDeliveryDelayMS   = 300
)

// DefaultCooldowns is the escalation sequence used when none is configured.
var DefaultCooldowns = []string{"5m", "10m", "30m", "40m", "50m"}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		switch key {
		case "", UpdateCallback, UpdateMessage:
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "migrations"
	}
	if cfg.Redis.TimeoutMS <= 0 {
		cfg.Redis.TimeoutMS = 2000
	}
	if cfg.Redis.LockExpiryMS <= 0 {
		cfg.Redis.LockExpiryMS = 5000
	}
	if cfg.Metrics.Listen != "" && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return normalizeCampaign(&cfg.Campaign)
}

func normalizeCampaign(c *CampaignConfig) error {
	if c.MaxDailyUses == 0 {
		c.MaxDailyUses = DefaultMaxDailyUses
	}
	if c.NewUserFree == 0 && c.ReturningUserFree == 0 {
		c.NewUserFree = DefaultNewUserFree
		c.ReturningUserFree = DefaultReturningUserFree
	}
	if c.UTCOffsetHours == nil {
		offset := DefaultUTCOffsetHours
		c.UTCOffsetHours = &offset
	}
	if c.OrderPattern == "" {
		c.OrderPattern = DefaultOrderPattern
	}
	if c.MaxOrderAttempts <= 0 {
		c.MaxOrderAttempts = DefaultMaxOrderAttempts
	}
	if c.RejectThreshold <= 0 {
		c.RejectThreshold = DefaultRejectThreshold
	}
	if c.DeliveryPageSize <= 0 {
		c.DeliveryPageSize = DefaultDeliveryPageSize
	}
	if c.DeliveryDelayMS < 0 {
		return fmt.Errorf("campaign.delivery_delay_ms must be >= 0")
	}
	if c.DeliveryDelayMS == 0 {
		c.DeliveryDelayMS = DefaultDeliveryDelayMS
	}
	if len(c.Cooldowns) == 0 {
		c.Cooldowns = append([]string(nil), DefaultCooldowns...)
	}

	if c.MaxDailyUses < 0 {
		return fmt.Errorf("campaign.max_daily_uses must be > 0")
	}
	if c.ReturningUserFree < 0 || c.NewUserFree < c.ReturningUserFree {
		return fmt.Errorf("campaign.new_user_free (%d) must be >= returning_user_free (%d) >= 0", c.NewUserFree, c.ReturningUserFree)
	}
	if *c.UTCOffsetHours < -12 || *c.UTCOffsetHours > 14 {
		return fmt.Errorf("campaign.utc_offset_hours out of range: %d", *c.UTCOffsetHours)
	}
	if _, err := c.CooldownSequence(); err != nil {
		return err
	}
	if _, err := c.StateTTLDuration(); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.OrderPattern); err != nil {
		return fmt.Errorf("campaign.order_pattern: %w", err)
	}
	return nil
}

// CooldownSequence parses the escalation sequence. It must be non-empty and non-decreasing.
func (c CampaignConfig) CooldownSequence() ([]time.Duration, error) {
	if len(c.Cooldowns) == 0 {
		return nil, fmt.Errorf("campaign.cooldowns must not be empty")
	}
	seq := make([]time.Duration, 0, len(c.Cooldowns))
	for i, raw := range c.Cooldowns {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("campaign.cooldowns[%d]: %w", i, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("campaign.cooldowns[%d] must be > 0", i)
		}
		if i > 0 && d < seq[i-1] {
			return nil, fmt.Errorf("campaign.cooldowns must be non-decreasing (index %d)", i)
		}
		seq = append(seq, d)
	}
	return seq, nil
}

// StateTTLDuration returns the conversation idle TTL.
func (c CampaignConfig) StateTTLDuration() (time.Duration, error) {
	if strings.TrimSpace(c.StateTTL) == "" {
		return DefaultStateTTL, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.StateTTL))
	if err != nil {
		return 0, fmt.Errorf("campaign.state_ttl: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("campaign.state_ttl must be > 0")
	}
	return d, nil
}

// Location returns the fixed reference zone used for day boundaries.
func (c CampaignConfig) Location() *time.Location {
	offset := DefaultUTCOffsetHours
	if c.UTCOffsetHours != nil {
		offset = *c.UTCOffsetHours
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*3600)
}

// CoreConfig returns c. It lets *Config serve as the runner's config carrier.
func (c *Config) CoreConfig() *Config { return c }
