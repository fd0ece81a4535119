package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

// Store is the persistence API used by the dispatcher, channels, API and
// background jobs.
type Store interface {
	notify.SettingsSource
	notify.RecipientSource

	UpsertNotificationSettings(ctx context.Context, u SettingsUpdate) (*notify.Settings, error)

	GetContact(ctx context.Context, tenantID, contactID int64) (Contact, error)
	CreateContact(ctx context.Context, c Contact) (Contact, error)
	SetContactActive(ctx context.Context, tenantID, contactID int64, active bool) error
	ListContacts(ctx context.Context, tenantID int64) ([]Contact, error)

	GetWhatsAppAccount(ctx context.Context, tenantID int64) (*WhatsAppAccount, error)
	EnsureConversation(ctx context.Context, tenantID, contactID int64) (int64, error)
	AppendOutgoingMessage(ctx context.Context, tenantID int64, m OutgoingMessage) (int64, error)

	CreateApprovalRequest(ctx context.Context, tenantID, postID, contactID int64, ttl time.Duration) (ApprovalRequest, error)
	ResolveApprovalRequest(ctx context.Context, tenantID, postID int64, approved bool, response string) (ApprovalRequest, error)
	CountPendingApprovals(ctx context.Context, tenantID int64) (int64, error)

	AddDailyStats(ctx context.Context, tenantID int64, day time.Time, delta notify.DailyStats) error
	GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (notify.DailyStats, error)
	ActiveTenants(ctx context.Context) ([]int64, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store. It returns ErrDisabled when no
// driver is configured.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none", "disabled":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
