package storage

import (
	"errors"
	"time"

	"artebot/internal/notify"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (":memory:" for tests)
//
// If Driver is empty or "none", Open returns ErrDisabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// SettingsUpdate changes a tenant's notification settings. Nil fields keep
// their stored value; on first insert they take the onboarding defaults
// (inactive, published/failed/approval on, comments off).
type SettingsUpdate struct {
	TenantID int64 `db:"tenant_id"`

	IsActive               *bool `json:"is_active,omitempty" db:"is_active"`
	NotifyOnPostPublished  *bool `json:"notify_on_post_published,omitempty" db:"notify_post_published"`
	NotifyOnPostFailed     *bool `json:"notify_on_post_failed,omitempty" db:"notify_post_failed"`
	NotifyOnApprovalNeeded *bool `json:"notify_on_approval_needed,omitempty" db:"notify_approval_needed"`
	NotifyOnNewComment     *bool `json:"notify_on_new_comment,omitempty" db:"notify_new_comment"`

	PhoneNumberID      *string `json:"phone_number_id,omitempty" db:"phone_number_id"`
	AccessToken        *string `json:"access_token,omitempty" db:"access_token"`
	BusinessAccountID  *string `json:"business_account_id,omitempty" db:"business_account_id"`
	WebhookVerifyToken *string `json:"webhook_verify_token,omitempty" db:"webhook_verify_token"`
}

// WhatsAppAccount holds the Cloud API credentials stored with a tenant's settings.
type WhatsAppAccount struct {
	TenantID          int64
	Active            bool
	PhoneNumberID     string
	AccessToken       string
	BusinessAccountID string
}

// Configured reports whether messages can be sent with this account.
func (a *WhatsAppAccount) Configured() bool {
	return a != nil && a.Active && a.PhoneNumberID != "" && a.AccessToken != ""
}

// Contact is a tenant's WhatsApp contact.
type Contact struct {
	ID            int64      `json:"id" db:"id"`
	TenantID      int64      `json:"tenant_id" db:"tenant_id"`
	PhoneNumber   string     `json:"phone_number" db:"phone_number"`
	Name          string     `json:"name,omitempty" db:"name"`
	Email         string     `json:"email,omitempty" db:"email"`
	Active        bool       `json:"active" db:"is_active"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" db:"-"`
	CreatedAt     time.Time  `json:"created_at" db:"-"`
}

func (c Contact) Recipient() notify.Recipient {
	return notify.Recipient{
		ID:       c.ID,
		TenantID: c.TenantID,
		Name:     c.Name,
		Address:  c.PhoneNumber,
		Active:   c.Active,
	}
}

// Message status and type values stored with outgoing messages.
const (
	MessageSent   = "sent"
	MessageFailed = "failed"
	MessageText   = "text"
)

// OutgoingMessage is a message sent on a conversation.
type OutgoingMessage struct {
	ConversationID int64
	WAMessageID    string
	Type           string
	Content        string
	Status         string
	SentAt         time.Time
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// DefaultApprovalTTL is how long an approval request stays answerable.
const DefaultApprovalTTL = 48 * time.Hour

type ApprovalRequest struct {
	ID              int64
	TenantID        int64
	PostID          int64
	ContactID       int64
	ConversationID  int64
	Status          ApprovalStatus
	ResponseMessage string
	RespondedAt     *time.Time
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// AuditEntry records one dispatch outcome.
type AuditEntry struct {
	At          time.Time
	DispatchID  string
	TenantID    int64
	Type        string
	PostID      int64
	RecipientID int64
	Channel     string
	Success     bool
	MessageID   string
	Error       string
	Reason      string
	TookMS      int64
}
