package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Duration decodes either a Go duration string ("15s") or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type QdrantConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	UseTLS bool   `json:"use_tls"`
}

type ChromemConfig struct {
	// Path enables on-disk persistence. Empty keeps the collection in memory.
	Path     string `json:"path"`
	Compress bool   `json:"compress"`
}

type MemoryConfig struct {
	Backend     string        `json:"backend"` // "chromem" or "qdrant"
	Collection  string        `json:"collection"`
	CallTimeout Duration      `json:"call_timeout"`
	ScanPage    int           `json:"scan_page_size"`
	Qdrant      QdrantConfig  `json:"qdrant"`
	Chromem     ChromemConfig `json:"chromem"`
}

type EmbeddingConfig struct {
	Provider   string `json:"provider"` // "openai", "gemini" or "hash"
	URL        string `json:"url"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	Dimensions int    `json:"dimensions"`
	Cache      struct {
		Enabled bool  `json:"enabled"`
		MaxCost int64 `json:"max_cost"`
	} `json:"cache"`
}

type LLMConfig struct {
	Provider  string   `json:"provider"` // "openai", "anthropic" or "gemini"
	URL       string   `json:"url"`
	Model     string   `json:"model"`
	APIKey    string   `json:"api_key"`
	MaxTokens int      `json:"max_tokens"`
	Timeout   Duration `json:"timeout"`
	Queue     struct {
		MaxConcurrent       int      `json:"max_concurrent"`
		CriticalQueueSize   int      `json:"critical_queue_size"`
		BackgroundQueueSize int      `json:"background_queue_size"`
		BreakerThreshold    int      `json:"breaker_threshold"`
		BreakerCooldown     Duration `json:"breaker_cooldown"`
	} `json:"queue"`
}

type GmailConfig struct {
	CredentialsFile string `json:"credentials_file"`
	TokenFile       string `json:"token_file"`
}

type NotificationConfig struct {
	LogFile           string `json:"log_file"`
	WebhookURL        string `json:"webhook_url"`
	DiscordWebhookURL string `json:"discord_webhook_url"`
	SlackWebhookURL   string `json:"slack_webhook_url"`
	Pushover          struct {
		Token   string `json:"token"`
		UserKey string `json:"user_key"`
	} `json:"pushover"`
	PushbulletAPIKey string `json:"pushbullet_api_key"`
	Twilio           struct {
		AccountSID string `json:"account_sid"`
		AuthToken  string `json:"auth_token"`
		From       string `json:"from"`
		To         string `json:"to"`
	} `json:"twilio"`
	GmailSMS struct {
		Phone   string `json:"phone"`
		Carrier string `json:"carrier"`
	} `json:"gmail_sms"`
	WebSocket bool `json:"websocket"`
}

type WatcherConfig struct {
	SenderDomains    []string `json:"sender_domains"`
	ProductKeywords  []string `json:"product_keywords"`
	PurchaseKeywords []string `json:"purchase_keywords"`
	LookbackHours    int      `json:"lookback_hours"`
	MaxResults       int      `json:"max_results"`
	DedupTTL         Duration `json:"dedup_ttl"`
	AlertChannels    []string `json:"alert_channels"`
}

type SchedulerConfig struct {
	Enabled         bool `json:"enabled"`
	WatcherInterval int  `json:"watcher_interval_minutes"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Logging struct {
		Level string `json:"level"`
	} `json:"logging"`
	Database struct {
		Driver string `json:"driver"` // "sqlite" or "postgres"
		DSN    string `json:"dsn"`
	} `json:"database"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Memory        MemoryConfig       `json:"memory"`
	Embedding     EmbeddingConfig    `json:"embedding"`
	LLM           LLMConfig          `json:"llm"`
	Gmail         GmailConfig        `json:"gmail"`
	Notifications NotificationConfig `json:"notifications"`
	Watcher       WatcherConfig      `json:"watcher"`
	Scheduler     SchedulerConfig    `json:"scheduler"`
}

// Load reads a JSON config file, fills defaults, applies environment
// overrides and validates the result. A missing file is only an error
// when the path was given explicitly.
func Load(path string) (*Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("invalid config format: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c.ApplyDefaults()
	c.applyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

const DefaultPath = "config.json"

// ApplyDefaults fills zero values. It is safe to call more than once.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "autoagent.db"
	}

	m := &c.Memory
	if m.Backend == "" {
		m.Backend = "chromem"
	}
	if m.Collection == "" {
		m.Collection = "agent_memory"
	}
	if m.CallTimeout == 0 {
		m.CallTimeout = Duration(30 * time.Second)
	}
	if m.ScanPage <= 0 {
		m.ScanPage = 256
	}
	if m.Qdrant.URL == "" {
		m.Qdrant.URL = "localhost:6334"
	}

	e := &c.Embedding
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.URL == "" {
		e.URL = "https://api.openai.com/v1/embeddings"
	}
	if e.Model == "" {
		switch e.Provider {
		case "gemini":
			e.Model = "gemini-embedding-001"
		default:
			e.Model = "text-embedding-3-small"
		}
	}
	if e.Dimensions == 0 {
		switch e.Provider {
		case "gemini":
			e.Dimensions = 3072
		case "hash":
			e.Dimensions = 384
		default:
			e.Dimensions = 1536
		}
	}
	if e.Cache.MaxCost == 0 {
		e.Cache.MaxCost = 1 << 26
	}

	l := &c.LLM
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.URL == "" && l.Provider == "openai" {
		l.URL = "https://api.openai.com/v1/chat/completions"
	}
	if l.Model == "" {
		switch l.Provider {
		case "anthropic":
			l.Model = "claude-sonnet-4-5"
		case "gemini":
			l.Model = "gemini-2.5-flash"
		default:
			l.Model = "gpt-4o-mini"
		}
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 1024
	}
	if l.Timeout == 0 {
		l.Timeout = Duration(120 * time.Second)
	}
	if l.Queue.MaxConcurrent == 0 {
		l.Queue.MaxConcurrent = 2
	}
	if l.Queue.CriticalQueueSize == 0 {
		l.Queue.CriticalQueueSize = 20
	}
	if l.Queue.BackgroundQueueSize == 0 {
		l.Queue.BackgroundQueueSize = 100
	}
	if l.Queue.BreakerThreshold == 0 {
		l.Queue.BreakerThreshold = 5
	}
	if l.Queue.BreakerCooldown == 0 {
		l.Queue.BreakerCooldown = Duration(time.Minute)
	}

	if c.Gmail.CredentialsFile == "" {
		c.Gmail.CredentialsFile = "credentials.json"
	}
	if c.Gmail.TokenFile == "" {
		c.Gmail.TokenFile = "token.json"
	}
	if c.Notifications.LogFile == "" {
		c.Notifications.LogFile = "alerts.log"
	}

	w := &c.Watcher
	if len(w.SenderDomains) == 0 {
		w.SenderDomains = []string{"nintendo.com", "nintendo.co.jp", "nintendo-europe.com", "mynintendo.com", "nintendo.net"}
	}
	if len(w.ProductKeywords) == 0 {
		w.ProductKeywords = []string{"switch 2", "nintendo switch 2", "switch successor", "new nintendo switch", "next nintendo switch", "switch pro", "nintendo nx"}
	}
	if len(w.PurchaseKeywords) == 0 {
		w.PurchaseKeywords = []string{"pre-order", "preorder", "available now", "purchase", "buy now", "order", "sale", "release", "launch"}
	}
	if w.LookbackHours == 0 {
		w.LookbackHours = 24
	}
	if w.MaxResults == 0 {
		w.MaxResults = 50
	}
	if w.DedupTTL == 0 {
		w.DedupTTL = Duration(30 * 24 * time.Hour)
	}

	if c.Scheduler.WatcherInterval == 0 {
		c.Scheduler.WatcherInterval = 15
	}
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Server.JWTSecret, "AUTOAGENT_JWT_SECRET")
	set(&c.Database.DSN, "AUTOAGENT_DATABASE_DSN")
	set(&c.Redis.Addr, "AUTOAGENT_REDIS_ADDR")
	set(&c.Memory.Qdrant.APIKey, "QDRANT_API_KEY")

	switch c.Embedding.Provider {
	case "openai":
		set(&c.Embedding.APIKey, "OPENAI_API_KEY")
	case "gemini":
		set(&c.Embedding.APIKey, "GEMINI_API_KEY")
	}
	switch c.LLM.Provider {
	case "openai":
		set(&c.LLM.APIKey, "OPENAI_API_KEY")
	case "anthropic":
		set(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "gemini":
		set(&c.LLM.APIKey, "GEMINI_API_KEY")
	}

	n := &c.Notifications
	set(&n.WebhookURL, "WEBHOOK_URL")
	set(&n.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")
	set(&n.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	set(&n.Pushover.Token, "PUSHOVER_TOKEN")
	set(&n.Pushover.UserKey, "PUSHOVER_USER_KEY")
	set(&n.PushbulletAPIKey, "PUSHBULLET_API_KEY")
	set(&n.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	set(&n.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	set(&n.Twilio.From, "TWILIO_FROM_NUMBER")
	set(&n.Twilio.To, "TWILIO_TO_NUMBER")
	set(&n.GmailSMS.Phone, "GMAIL_SMS_PHONE")
	set(&n.GmailSMS.Carrier, "GMAIL_SMS_CARRIER")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Memory.Backend {
	case "chromem", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("memory.backend must be chromem or qdrant, got %q", c.Memory.Backend))
	}
	switch c.Embedding.Provider {
	case "openai", "gemini", "hash":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be openai, gemini or hash, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai, anthropic or gemini, got %q", c.LLM.Provider))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Server.Subpath != "" && !strings.HasPrefix(c.Server.Subpath, "/") {
		errs = append(errs, errors.New("server.subpath must start with '/'"))
	}
	if c.Scheduler.WatcherInterval < 1 {
		errs = append(errs, errors.New("scheduler.watcher_interval_minutes must be at least 1"))
	}
	return errors.Join(errs...)
}
