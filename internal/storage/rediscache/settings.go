// Package rediscache keeps tenant notification settings in Redis in front of
// the relational store.
package rediscache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

const keyPrefix = "notify:settings:"

type Config struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration // default 1m
	NegativeTTL time.Duration // default 15s
}

// NewClient builds a client with the short timeouts a read-through cache
// needs; it does not dial.
func NewClient(cfg Config) *redis.Client {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

// Settings is a notify.SettingsSource that answers from Redis and falls back
// to src on a miss or any cache error.
type Settings struct {
	rdb         *redis.Client
	src         notify.SettingsSource
	ttl         time.Duration
	negativeTTL time.Duration
	log         logx.Logger
}

var _ notify.SettingsSource = (*Settings)(nil)

func NewSettings(rdb *redis.Client, src notify.SettingsSource, cfg Config, log logx.Logger) *Settings {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Settings{rdb: rdb, src: src, ttl: cfg.TTL, negativeTTL: cfg.NegativeTTL, log: log}
}

func Key(tenantID int64) string { return keyPrefix + strconv.FormatInt(tenantID, 10) }

// entry is the cached value; Missing records that the tenant has no settings.
type entry struct {
	Missing  bool             `json:"missing,omitempty"`
	Settings *notify.Settings `json:"settings,omitempty"`
}

func (c *Settings) GetNotificationSettings(ctx context.Context, tenantID int64) (*notify.Settings, error) {
	key := Key(tenantID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e entry
		if jerr := json.Unmarshal(raw, &e); jerr == nil {
			if e.Missing {
				return nil, nil
			}
			if e.Settings != nil {
				return e.Settings, nil
			}
		}
		c.log.Warn("dropping undecodable cache entry", logx.Int64("tenant_id", tenantID))
		_ = c.rdb.Del(ctx, key).Err()
	case errors.Is(err, redis.Nil):
	default:
		c.log.Debug("settings cache unavailable", logx.Int64("tenant_id", tenantID), logx.Err(err))
	}

	s, err := c.src.GetNotificationSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, s)
	return s, nil
}

func (c *Settings) store(ctx context.Context, key string, s *notify.Settings) {
	e, ttl := entry{Settings: s}, c.ttl
	if s == nil {
		e, ttl = entry{Missing: true}, c.negativeTTL
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		c.log.Debug("settings cache write failed", logx.String("key", key), logx.Err(err))
	}
}

// Invalidate drops the cached settings of a tenant after an update.
func (c *Settings) Invalidate(ctx context.Context, tenantID int64) error {
	return c.rdb.Del(ctx, Key(tenantID)).Err()
}

func (c *Settings) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Settings) Close() error { return c.rdb.Close() }
