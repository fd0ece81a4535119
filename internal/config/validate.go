package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

const DefaultTimezone = "America/Sao_Paulo"

// Validate checks a parsed config without touching the network or disk.
// Every problem is reported, joined into one error.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3":
	case "", "none", "disabled":
		add(errors.New("storage.driver: a store is required (sqlite)"))
	default:
		add(fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}
	dur("storage.busy_timeout", c.Storage.BusyTimeout)

	if c.Cache.Enabled {
		dur("cache.ttl", c.Cache.TTL)
		dur("cache.negative_ttl", c.Cache.NegativeTTL)
	}

	_, err := ParseLocation("notify.timezone", c.Notify.Timezone, DefaultTimezone)
	add(err)
	dur("notify.send_timeout", c.Notify.SendTimeout)
	dur("notify.breaker.open_timeout", c.Notify.Breaker.OpenTimeout)
	if c.Notify.Burst < 0 {
		add(errors.New("notify.burst must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Channel.Kind)) {
	case "", "whatsapp":
		dur("channel.whatsapp.timeout", c.Channel.WhatsApp.Timeout)
	case "telegram":
		if strings.TrimSpace(c.Channel.Telegram.Token) == "" {
			add(errors.New("channel.telegram.token is required"))
		}
	case "log":
	default:
		add(fmt.Errorf("channel.kind: unsupported %q", c.Channel.Kind))
	}

	dur("server.read_timeout", c.Server.ReadTimeout)
	dur("server.write_timeout", c.Server.WriteTimeout)
	dur("server.shutdown_timeout", c.Server.ShutdownTimeout)
	if c.Server.RequestsPerMinute < 0 {
		add(errors.New("server.requests_per_minute must be >= 0"))
	}

	if c.Ingest.Enabled && len(c.Ingest.Brokers) == 0 {
		add(errors.New("ingest.brokers: at least one broker is required"))
	}

	if c.Summary.Enabled {
		if _, err := cron.ParseStandard(SummarySchedule(c.Summary)); err != nil {
			add(fmt.Errorf("summary.schedule: %w", err))
		}
		if strings.TrimSpace(c.Summary.Timezone) != "" {
			_, err := ParseLocation("summary.timezone", c.Summary.Timezone, DefaultTimezone)
			add(err)
		}
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		add(errors.New("tracing.sample_ratio must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// SummarySchedule returns the configured cron spec or the 20:00 default.
func SummarySchedule(s SummaryConfig) string {
	if v := strings.TrimSpace(s.Schedule); v != "" {
		return v
	}
	return "0 20 * * *"
}
