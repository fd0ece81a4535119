package notify

import (
	"context"
	"fmt"
)

// RecipientResolver picks the delivery target for a dispatch.
type RecipientResolver struct {
	src RecipientSource
}

func NewRecipientResolver(src RecipientSource) *RecipientResolver {
	return &RecipientResolver{src: src}
}

// Resolve returns the explicit recipient when explicitID != 0 without touching
// the store; the Channel validates it. Otherwise the first active recipient in
// store order is chosen. ErrNoRecipient means the tenant has none.
func (r *RecipientResolver) Resolve(ctx context.Context, tenantID, explicitID int64) (Recipient, error) {
	if explicitID != 0 {
		return Recipient{ID: explicitID, TenantID: tenantID}, nil
	}

	list, err := r.src.GetActiveRecipients(ctx, tenantID)
	if err != nil {
		return Recipient{}, fmt.Errorf("load active recipients: %w", err)
	}
	if len(list) == 0 {
		return Recipient{}, ErrNoRecipient
	}
	// Single-recipient delivery; broadcast to every active contact is not implemented.
	return list[0], nil
}
