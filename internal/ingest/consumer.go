package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"artebot/internal/metrics"
	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

const (
	DefaultTopic   = "artebot.post-events"
	DefaultGroupID = "artebot-notify"

	// DefaultQuotaWarnPercent is the usage at which quota.usage notifies.
	DefaultQuotaWarnPercent = 80
)

type Dispatcher interface {
	Dispatch(ctx context.Context, p notify.Payload) notify.Result
}

// Store is the storage the handlers update.
type Store interface {
	AddDailyStats(ctx context.Context, tenantID int64, day time.Time, delta notify.DailyStats) error
	CreateApprovalRequest(ctx context.Context, tenantID, postID, contactID int64, ttl time.Duration) (storage.ApprovalRequest, error)
	ResolveApprovalRequest(ctx context.Context, tenantID, postID int64, approved bool, response string) (storage.ApprovalRequest, error)
}

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers          []string
	Topic            string
	GroupID          string
	Location         *time.Location // day boundaries for stats, default time.Local
	QuotaWarnPercent int64
}

type Consumer struct {
	reader   Reader
	dispatch Dispatcher
	store    Store
	log      logx.Logger
	loc      *time.Location
	warnPct  int64
	now      func() time.Time
}

// NewReader builds the group reader for cfg.
func NewReader(cfg Config) *kafka.Reader {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	group := strings.TrimSpace(cfg.GroupID)
	if group == "" {
		group = DefaultGroupID
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
}

func NewConsumer(cfg Config, r Reader, d Dispatcher, st Store, log logx.Logger) *Consumer {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	pct := cfg.QuotaWarnPercent
	if pct <= 0 {
		pct = DefaultQuotaWarnPercent
	}
	return &Consumer{reader: r, dispatch: d, store: st, log: log, loc: loc, warnPct: pct, now: time.Now}
}

// Run fetches until ctx is done. Every fetched message is committed, also
// when it could not be decoded or handled, because deliveries are not retried.
// Run may be called again after it returns; Close releases the reader.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopped")
				return nil
			}
			c.log.Warn("fetch failed", logx.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.Handle(ctx, m); err != nil {
			c.log.Warn("event not handled",
				logx.String("topic", m.Topic),
				logx.Int("partition", m.Partition),
				logx.Int64("offset", m.Offset),
				logx.Err(err),
			)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("commit failed", logx.Int64("offset", m.Offset), logx.Err(err))
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// Handle processes one message.
func (c *Consumer) Handle(ctx context.Context, m kafka.Message) error {
	ev, err := Decode(m.Value)
	if err != nil {
		metrics.RecordIngest("invalid", "skipped")
		return err
	}
	if err := c.handle(ctx, ev); err != nil {
		metrics.RecordIngest(ev.Kind, "error")
		return fmt.Errorf("%s tenant=%d: %w", ev.Kind, ev.TenantID, err)
	}
	metrics.RecordIngest(ev.Kind, "ok")
	return nil
}

func (c *Consumer) handle(ctx context.Context, ev Event) error {
	post := ev.Post.post()
	switch ev.Kind {
	case KindPostPublished:
		if err := c.store.AddDailyStats(ctx, ev.TenantID, c.day(ev), notify.DailyStats{PostsPublished: 1}); err != nil {
			return fmt.Errorf("daily stats: %w", err)
		}
		return c.send(ctx, notify.PostPublished(ev.TenantID, post))

	case KindPostFailed:
		reason := strings.TrimSpace(ev.Reason)
		if reason == "" {
			reason = notify.MsgUnknownFault
		}
		return c.send(ctx, notify.PostFailed(ev.TenantID, post, reason))

	case KindApprovalRequested:
		if _, err := c.store.CreateApprovalRequest(ctx, ev.TenantID, post.ID, ev.ContactID, ev.TTL); err != nil {
			return fmt.Errorf("approval request: %w", err)
		}
		return c.send(ctx, notify.ApprovalNeeded(ev.TenantID, ev.ContactID, post, c.loc))

	case KindApprovalResponded:
		if _, err := c.store.ResolveApprovalRequest(ctx, ev.TenantID, post.ID, ev.Approved, ev.Response); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no pending approval for post %d", post.ID)
			}
			return fmt.Errorf("resolve approval: %w", err)
		}
		return c.send(ctx, notify.ApprovalReceived(ev.TenantID, post, ev.Approved, ev.Response))

	case KindCommentCreated:
		return c.send(ctx, notify.NewComment(ev.TenantID, post, ev.Author, ev.Text))

	case KindQuotaUsage:
		if ev.Limit > 0 && float64(ev.Used)*100 < float64(ev.Limit)*float64(c.warnPct) {
			return nil
		}
		return c.send(ctx, notify.QuotaWarning(ev.TenantID, ev.Resource, ev.Used, ev.Limit))

	case KindPostMetrics:
		delta := notify.DailyStats{TotalReach: ev.Reach, TotalEngagement: ev.Engagement}
		if err := c.store.AddDailyStats(ctx, ev.TenantID, c.day(ev), delta); err != nil {
			return fmt.Errorf("daily stats: %w", err)
		}
		return nil
	}
	return nil
}

// send dispatches p. Delivery failures are logged by the dispatcher and are
// not handler errors.
func (c *Consumer) send(ctx context.Context, p notify.Payload) error {
	res := c.dispatch.Dispatch(ctx, p)
	if !res.Success {
		c.log.Debug("notification not delivered",
			logx.String("type", string(p.Type)),
			logx.Int64("tenant_id", p.TenantID),
			logx.String("reason", string(res.Reason)),
		)
	}
	return nil
}

func (c *Consumer) day(ev Event) time.Time {
	at := ev.OccurredAt
	if at.IsZero() {
		at = c.now()
	}
	return at.In(c.loc)
}
