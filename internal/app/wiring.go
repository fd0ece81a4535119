package app

import (
	"fmt"
	"strings"
	"time"

	"artebot/internal/config"
	"artebot/internal/ingest"
	"artebot/internal/server"
	"artebot/internal/storage"
	"artebot/internal/storage/rediscache"
	"artebot/internal/summary"
	"artebot/internal/tracing"
	"artebot/internal/transport"
	logx "artebot/pkg/logx"
)

// Defaults applied when the config leaves a value empty.
const (
	defaultRatePerSec  = 20
	defaultSendTimeout = 15 * time.Second
	defaultShutdown    = 5 * time.Second
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if (driver == "sqlite" || driver == "sqlite3") && path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapCache(cfg *config.Config) (rediscache.Config, error) {
	cc := cfg.Cache
	ttl, err := config.ParseDurationField("cache.ttl", cc.TTL)
	if err != nil {
		return rediscache.Config{}, err
	}
	neg, err := config.ParseDurationField("cache.negative_ttl", cc.NegativeTTL)
	if err != nil {
		return rediscache.Config{}, err
	}
	return rediscache.Config{Addr: cc.Addr, Password: cc.Password, DB: cc.DB, TTL: ttl, NegativeTTL: neg}, nil
}

// channelSettings is the decorator setup around the delivery channel.
type channelSettings struct {
	ratePerSec  float64
	burst       int
	sendTimeout time.Duration
	breakerOff  bool
	breaker     transport.BreakerSettings
}

func mapChannelSettings(cfg *config.Config) (channelSettings, error) {
	nc := cfg.Notify
	timeout, err := config.ParseDurationOrDefault("notify.send_timeout", nc.SendTimeout, defaultSendTimeout)
	if err != nil {
		return channelSettings{}, err
	}
	open, err := config.ParseDurationField("notify.breaker.open_timeout", nc.Breaker.OpenTimeout)
	if err != nil {
		return channelSettings{}, err
	}
	rate := nc.RatePerSec
	if rate == 0 {
		rate = defaultRatePerSec
	}
	return channelSettings{
		ratePerSec:  rate,
		burst:       nc.Burst,
		sendTimeout: timeout,
		breakerOff:  nc.Breaker.Disabled,
		breaker: transport.BreakerSettings{
			FailureThreshold: nc.Breaker.FailureThreshold,
			OpenTimeout:      open,
			HalfOpenRequests: nc.Breaker.HalfOpenRequests,
		},
	}, nil
}

func mapServer(cfg *config.Config) (server.Config, time.Duration, error) {
	sc := cfg.Server
	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 15*time.Second)
	if err != nil {
		return server.Config{}, 0, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, 30*time.Second)
	if err != nil {
		return server.Config{}, 0, err
	}
	grace, err := config.ParseDurationOrDefault("server.shutdown_timeout", sc.ShutdownTimeout, defaultShutdown)
	if err != nil {
		return server.Config{}, 0, err
	}
	return server.Config{
		Addr:              sc.Addr,
		ReadTimeout:       read,
		WriteTimeout:      write,
		RequestsPerMinute: sc.RequestsPerMinute,
		Pprof:             sc.Pprof,
	}, grace, nil
}

func mapIngest(cfg *config.Config, loc *time.Location) ingest.Config {
	return ingest.Config{
		Brokers:  cfg.Ingest.Brokers,
		Topic:    cfg.Ingest.Topic,
		GroupID:  cfg.Ingest.GroupID,
		Location: loc,
	}
}

func mapSummary(cfg *config.Config, notifyLoc *time.Location) (summary.Config, error) {
	loc := notifyLoc
	if tz := strings.TrimSpace(cfg.Summary.Timezone); tz != "" {
		l, err := config.ParseLocation("summary.timezone", tz, config.DefaultTimezone)
		if err != nil {
			return summary.Config{}, err
		}
		loc = l
	}
	return summary.Config{Schedule: cfg.Summary.Schedule, Location: loc}, nil
}

func mapTracing(cfg *config.Config) tracing.Config {
	tc := cfg.Tracing
	return tracing.Config{
		Enabled:     tc.Enabled,
		Endpoint:    tc.Endpoint,
		Insecure:    tc.Insecure,
		ServiceName: tc.ServiceName,
		SampleRatio: tc.SampleRatio,
	}
}
