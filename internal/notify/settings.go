package notify

import (
	"context"
	"fmt"
)

// SettingsResolver answers whether a tenant wants a given notification type.
type SettingsResolver struct {
	src SettingsSource
}

func NewSettingsResolver(src SettingsSource) *SettingsResolver {
	return &SettingsResolver{src: src}
}

// Enabled reports whether notifications of type t are wanted by the tenant.
//
// A missing settings record or IsActive=false disables every type. A read
// failure is returned as an error together with false.
func (r *SettingsResolver) Enabled(ctx context.Context, tenantID int64, t Type) (bool, error) {
	s, err := r.src.GetNotificationSettings(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("load notification settings: %w", err)
	}
	return Allows(s, t), nil
}

// Allows applies the per-type policy to s without any I/O.
func Allows(s *Settings, t Type) bool {
	if s == nil || !s.IsActive {
		return false
	}
	switch t {
	case TypePostPublished:
		return boolOr(s.NotifyOnPostPublished, true)
	case TypePostFailed:
		return boolOr(s.NotifyOnPostFailed, true)
	case TypeApprovalNeeded, TypeApprovalReceived:
		// Both approval events share one toggle.
		return boolOr(s.NotifyOnApprovalNeeded, true)
	case TypeNewComment:
		return boolOr(s.NotifyOnNewComment, false)
	default:
		// No finer-grained toggle: the master switch is enough.
		return true
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
