// Package ingest consumes post lifecycle events from Kafka and turns them into
// notifications and storage updates.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"artebot/internal/notify"
)

// Event kinds.
const (
	KindPostPublished     = "post.published"
	KindPostFailed        = "post.failed"
	KindApprovalRequested = "approval.requested"
	KindApprovalResponded = "approval.responded"
	KindCommentCreated    = "comment.created"
	KindQuotaUsage        = "quota.usage"
	KindPostMetrics       = "post.metrics"
)

// PostRef is the post carried by an event.
type PostRef struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title,omitempty"`
	Caption     string     `json:"caption,omitempty"`
	Platforms   []string   `json:"platforms,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

func (p *PostRef) post() notify.Post {
	if p == nil {
		return notify.Post{}
	}
	return notify.Post{ID: p.ID, Title: p.Title, Caption: p.Caption, Platforms: p.Platforms, ScheduledAt: p.ScheduledAt}
}

// Event is the JSON envelope on the topic. Fields beyond Kind and TenantID
// are used by the kinds that need them.
type Event struct {
	Kind       string    `json:"kind"`
	TenantID   int64     `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Post       *PostRef  `json:"post,omitempty"`

	// post.failed
	Reason string `json:"reason,omitempty"`

	// approval.*
	ContactID int64         `json:"contact_id,omitempty"`
	TTL       time.Duration `json:"-"`
	TTLHours  int           `json:"ttl_hours,omitempty"`
	Approved  bool          `json:"approved,omitempty"`
	Response  string        `json:"response,omitempty"`

	// comment.created
	Author string `json:"author,omitempty"`
	Text   string `json:"text,omitempty"`

	// quota.usage
	Resource string `json:"resource,omitempty"`
	Used     int64  `json:"used,omitempty"`
	Limit    int64  `json:"limit,omitempty"`

	// post.metrics
	Reach      int64 `json:"reach,omitempty"`
	Engagement int64 `json:"engagement,omitempty"`
}

var errInvalid = errors.New("invalid event")

// Decode parses and checks one message value.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errInvalid, err)
	}
	ev.Kind = strings.TrimSpace(ev.Kind)
	if ev.TenantID <= 0 {
		return Event{}, fmt.Errorf("%w: tenant_id must be positive", errInvalid)
	}
	switch ev.Kind {
	case KindPostPublished, KindPostFailed, KindCommentCreated, KindPostMetrics:
		if ev.Post == nil {
			return Event{}, fmt.Errorf("%w: %s without post", errInvalid, ev.Kind)
		}
	case KindApprovalRequested:
		if ev.Post == nil || ev.Post.ID <= 0 || ev.ContactID <= 0 {
			return Event{}, fmt.Errorf("%w: approval.requested needs post.id and contact_id", errInvalid)
		}
	case KindApprovalResponded:
		if ev.Post == nil || ev.Post.ID <= 0 {
			return Event{}, fmt.Errorf("%w: approval.responded needs post.id", errInvalid)
		}
	case KindQuotaUsage:
		if strings.TrimSpace(ev.Resource) == "" {
			return Event{}, fmt.Errorf("%w: quota.usage without resource", errInvalid)
		}
	default:
		return Event{}, fmt.Errorf("%w: unknown kind %q", errInvalid, ev.Kind)
	}
	if ev.TTLHours > 0 {
		ev.TTL = time.Duration(ev.TTLHours) * time.Hour
	}
	return ev, nil
}
