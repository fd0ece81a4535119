// Package transport holds the delivery channel plumbing around
// notify.Channel: decorators for rate limiting, circuit breaking, timeouts and
// instrumentation, plus a logging channel for development. Concrete channels
// live in the whatsapp and telegram subpackages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("delivery channel circuit open")

// RateLimit waits for a token before each send. perSec <= 0 disables limiting.
func RateLimit(next notify.Channel, perSec float64, burst int) notify.Channel {
	if perSec <= 0 {
		return next
	}
	if burst <= 0 {
		burst = max(1, int(perSec))
	}
	return &limited{next: next, lim: rate.NewLimiter(rate.Limit(perSec), burst)}
}

type limited struct {
	next notify.Channel
	lim  *rate.Limiter
}

func (c *limited) Name() string { return c.next.Name() }

func (c *limited) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return notify.SendResult{}, fmt.Errorf("rate limit: %w", err)
	}
	return c.next.SendText(ctx, tenantID, to, text)
}

type BreakerSettings struct {
	// FailureThreshold consecutive transport errors open the circuit; default 5.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open; default 30s.
	OpenTimeout time.Duration
	// HalfOpenRequests probes allowed while half-open; default 1.
	HalfOpenRequests uint32
	// OnStateChange observes transitions ("closed", "half-open", "open").
	OnStateChange func(channel, from, to string)
}

// Breaker stops calling next after repeated transport errors. Provider
// rejections (SendResult.Success=false) and caller cancellation do not count.
func Breaker(next notify.Channel, s BreakerSettings) notify.Channel {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	name := next.Name()
	cb := gobreaker.NewCircuitBreaker[notify.SendResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if s.OnStateChange != nil {
				s.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	return &breaker{next: next, cb: cb}
}

type breaker struct {
	next notify.Channel
	cb   *gobreaker.CircuitBreaker[notify.SendResult]
}

func (c *breaker) Name() string { return c.next.Name() }

func (c *breaker) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	res, err := c.cb.Execute(func() (notify.SendResult, error) {
		return c.next.SendText(ctx, tenantID, to, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return notify.SendResult{}, ErrCircuitOpen
	}
	return res, err
}

// Timeout bounds each send. d <= 0 disables it.
func Timeout(next notify.Channel, d time.Duration) notify.Channel {
	if d <= 0 {
		return next
	}
	return &timeout{next: next, d: d}
}

type timeout struct {
	next notify.Channel
	d    time.Duration
}

func (c *timeout) Name() string { return c.next.Name() }

func (c *timeout) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.d)
	defer cancel()
	return c.next.SendText(ctx, tenantID, to, text)
}

// ObserveFunc receives the outcome of every send.
type ObserveFunc func(channel string, res notify.SendResult, err error, took time.Duration)

// Observe reports each send to fn.
func Observe(next notify.Channel, fn ObserveFunc) notify.Channel {
	if fn == nil {
		return next
	}
	return &observed{next: next, fn: fn}
}

type observed struct {
	next notify.Channel
	fn   ObserveFunc
}

func (c *observed) Name() string { return c.next.Name() }

func (c *observed) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	start := time.Now()
	res, err := c.next.SendText(ctx, tenantID, to, text)
	c.fn(c.next.Name(), res, err, time.Since(start))
	return res, err
}

// LogChannel writes messages to the log instead of delivering them.
type LogChannel struct {
	log logx.Logger
}

func NewLogChannel(log logx.Logger) *LogChannel {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return notify.SendResult{}, err
	}
	id := "log-" + uuid.NewString()
	c.log.Info("notification",
		logx.String("message_id", id),
		logx.Int64("tenant_id", tenantID),
		logx.Int64("recipient_id", to.ID),
		logx.String("to", to.Address),
		logx.String("text", text),
	)
	return notify.SendResult{Success: true, MessageID: id}, nil
}
