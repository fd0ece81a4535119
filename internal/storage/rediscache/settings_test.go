package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

type countingSource struct {
	s     *notify.Settings
	err   error
	calls int
}

func (c *countingSource) GetNotificationSettings(context.Context, int64) (*notify.Settings, error) {
	c.calls++
	return c.s, c.err
}

// deadClient points at a port nothing listens on.
func deadClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestKey(t *testing.T) {
	t.Parallel()
	if got := Key(42); got != "notify:settings:42" {
		t.Fatalf("Key=%q", got)
	}
}

func TestFallsBackWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	src := &countingSource{s: &notify.Settings{TenantID: 3, IsActive: true}}
	c := NewSettings(deadClient(t), src, Config{}, logx.Nop())

	for i := 0; i < 2; i++ {
		got, err := c.GetNotificationSettings(context.Background(), 3)
		if err != nil || got == nil || !got.IsActive {
			t.Fatalf("call %d: %+v err=%v", i, got, err)
		}
	}
	if src.calls != 2 {
		t.Fatalf("source calls=%d, want 2", src.calls)
	}
}

func TestPropagatesSourceErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("db locked")
	c := NewSettings(deadClient(t), &countingSource{err: boom}, Config{}, logx.Nop())
	if _, err := c.GetNotificationSettings(context.Background(), 3); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
}

func TestMissingSettingsStayNil(t *testing.T) {
	t.Parallel()

	c := NewSettings(deadClient(t), &countingSource{}, Config{}, logx.Nop())
	got, err := c.GetNotificationSettings(context.Background(), 3)
	if err != nil || got != nil {
		t.Fatalf("got %+v err=%v, want nil nil", got, err)
	}
	if err := c.Invalidate(context.Background(), 3); err == nil {
		t.Fatalf("Invalidate against a dead server should fail")
	}
}
