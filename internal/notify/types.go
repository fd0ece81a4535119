package notify

import (
	"context"
	"errors"
)

// Type is the kind of event a notification is about.
type Type string

const (
	TypePostPublished    Type = "post_published"
	TypePostFailed       Type = "post_failed"
	TypeApprovalNeeded   Type = "approval_needed"
	TypeApprovalReceived Type = "approval_received"
	TypeNewComment       Type = "new_comment"
	TypeDailySummary     Type = "daily_summary"
	TypeQuotaWarning     Type = "quota_warning"
)

// AllTypes lists every known Type. Adding a Type requires adding its marker.
var AllTypes = []Type{
	TypePostPublished,
	TypePostFailed,
	TypeApprovalNeeded,
	TypeApprovalReceived,
	TypeNewComment,
	TypeDailySummary,
	TypeQuotaWarning,
}

// DefaultMarker is used for types without an entry in the marker table.
const DefaultMarker = "📢"

var markers = map[Type]string{
	TypePostPublished:    "✅",
	TypePostFailed:       "❌",
	TypeApprovalNeeded:   "⏳",
	TypeApprovalReceived: "👍",
	TypeNewComment:       "💬",
	TypeDailySummary:     "📊",
	TypeQuotaWarning:     "⚠️",
}

// Marker returns the display icon for t.
func (t Type) Marker() string {
	if m, ok := markers[t]; ok {
		return m
	}
	return DefaultMarker
}

// Known reports whether t is one of AllTypes.
func (t Type) Known() bool {
	_, ok := markers[t]
	return ok
}

// Settings is the per-tenant notification configuration.
// A nil toggle means "unset" and resolves to the type's default.
type Settings struct {
	TenantID int64 `json:"tenant_id"`
	IsActive bool  `json:"is_active"`

	NotifyOnPostPublished  *bool `json:"notify_on_post_published,omitempty"`
	NotifyOnPostFailed     *bool `json:"notify_on_post_failed,omitempty"`
	NotifyOnApprovalNeeded *bool `json:"notify_on_approval_needed,omitempty"`
	NotifyOnNewComment     *bool `json:"notify_on_new_comment,omitempty"`
}

// Recipient is a channel-specific contact owned by a tenant.
//
// Address is the channel identity (phone number, chat id). It may be empty
// when only the ID is known; the Channel then resolves it.
type Recipient struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
	Active   bool   `json:"active"`
}

// Payload is a single dispatch request.
type Payload struct {
	TenantID int64  `json:"tenant_id"`
	Type     Type   `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	// PostID references the related post, 0 when none.
	PostID int64 `json:"post_id,omitempty"`
	// RecipientID targets a specific contact; 0 selects the tenant's first active contact.
	RecipientID int64          `json:"recipient_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Reason classifies a failed Result.
type Reason string

const (
	ReasonPolicyBlocked  Reason = "policy_blocked"
	ReasonNoRecipient    Reason = "no_recipient"
	ReasonChannelFailure Reason = "channel_failure"
	ReasonInternalFault  Reason = "internal_fault"
	// ReasonCanceled marks a dispatch abandoned before the channel was invoked.
	ReasonCanceled Reason = "canceled"
)

// Result is the outcome of a dispatch.
//
// Success results never carry Error; failed results never carry MessageID.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    Reason `json:"reason,omitempty"`
}

// Failure texts surfaced to callers.
const (
	MsgDisabled      = "Notificações desabilitadas para este tipo"
	MsgNoRecipient   = "Nenhum contato ativo encontrado"
	MsgUnknownFault  = "Erro desconhecido"
	MsgChannelFailed = "Falha no envio"
)

// ErrNoRecipient is returned by RecipientResolver when no target exists.
var ErrNoRecipient = errors.New("no active recipient")

// SendResult is what a Channel reports for one text message.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Channel delivers rendered text to a recipient.
//
// A structured failure (Success=false) and a returned error are both
// tolerated by the Dispatcher; implementations use errors for transport
// faults and SendResult for provider-level rejections.
type Channel interface {
	Name() string
	SendText(ctx context.Context, tenantID int64, to Recipient, text string) (SendResult, error)
}

// SettingsSource reads tenant settings. (nil, nil) means no record exists.
type SettingsSource interface {
	GetNotificationSettings(ctx context.Context, tenantID int64) (*Settings, error)
}

// RecipientSource lists a tenant's active recipients in store order.
type RecipientSource interface {
	GetActiveRecipients(ctx context.Context, tenantID int64) ([]Recipient, error)
}
