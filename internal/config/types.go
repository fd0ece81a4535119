package config

// Config is the whole service configuration, loaded from one JSON or YAML file.
//
// All durations are Go duration strings ("500ms", "10s", "1m"). Empty or
// omitted durations fall back to the documented defaults.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Cache   CacheConfig   `json:"cache,omitempty"`
	Notify  NotifyConfig  `json:"notify"`
	Channel ChannelConfig `json:"channel"`
	Server  ServerConfig  `json:"server"`
	Ingest  IngestConfig  `json:"ingest,omitempty"`
	Summary SummaryConfig `json:"summary,omitempty"`
	Tracing TracingConfig `json:"tracing,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the relational store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/artebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // default 5s
}

// CacheConfig enables the Redis read-through cache for tenant settings.
type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr,omitempty"` // default 127.0.0.1:6379
	Password    string `json:"password,omitempty"`
	DB          int    `json:"db,omitempty"`
	TTL         string `json:"ttl,omitempty"`          // default 1m
	NegativeTTL string `json:"negative_ttl,omitempty"` // default 15s
}

// NotifyConfig tunes the dispatcher and the decorators around its channel.
type NotifyConfig struct {
	ProductName string `json:"product_name,omitempty"` // footer name, default "Arte AI Bot"
	Timezone    string `json:"timezone,omitempty"`     // footer time zone, default America/Sao_Paulo

	RatePerSec  float64       `json:"rate_per_sec,omitempty"` // outbound sends, default 20; <0 disables
	Burst       int           `json:"burst,omitempty"`
	SendTimeout string        `json:"send_timeout,omitempty"` // default 15s
	Breaker     BreakerConfig `json:"breaker,omitempty"`
}

type BreakerConfig struct {
	Disabled         bool   `json:"disabled,omitempty"`
	FailureThreshold uint32 `json:"failure_threshold,omitempty"` // consecutive failures, default 5
	OpenTimeout      string `json:"open_timeout,omitempty"`      // default 30s
	HalfOpenRequests uint32 `json:"half_open_requests,omitempty"`
}

// ChannelConfig selects the delivery channel: "whatsapp" (default),
// "telegram" or "log".
type ChannelConfig struct {
	Kind     string          `json:"kind"`
	WhatsApp WhatsAppConfig  `json:"whatsapp,omitempty"`
	Telegram TelegramChannel `json:"telegram,omitempty"`
}

type WhatsAppConfig struct {
	APIURL  string `json:"api_url,omitempty"` // default https://graph.facebook.com/v18.0
	Timeout string `json:"timeout,omitempty"` // HTTP client timeout, default 10s
}

type TelegramChannel struct {
	Token string `json:"token"`
}

type ServerConfig struct {
	Addr            string `json:"addr"` // default 127.0.0.1:8080
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	// RequestsPerMinute limits API calls per client IP; 0 disables.
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	// Pprof mounts the runtime profiler under /debug. Keep the listener on
	// loopback when enabled.
	Pprof bool `json:"pprof,omitempty"`
}

// IngestConfig enables the Kafka consumer of post lifecycle events.
type IngestConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`    // default artebot.post-events
	GroupID string   `json:"group_id,omitempty"` // default artebot-notify
}

// SummaryConfig schedules the daily summary.
type SummaryConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "0 20 * * *"
	Timezone string `json:"timezone,omitempty"` // default notify.timezone
}

type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint,omitempty"` // OTLP/HTTP host:port
	Insecure    bool    `json:"insecure,omitempty"`
	ServiceName string  `json:"service_name,omitempty"`
	SampleRatio float64 `json:"sample_ratio,omitempty"` // default 1
}
