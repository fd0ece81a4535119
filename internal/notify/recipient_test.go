package notify

import (
	"context"
	"errors"
	"testing"
)

func TestResolveExplicitSkipsStore(t *testing.T) {
	t.Parallel()

	src := &fakeRecipients{err: errors.New("must not be called")}
	r := NewRecipientResolver(src)

	got, err := r.Resolve(context.Background(), 5, 42)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != 42 || got.TenantID != 5 {
		t.Fatalf("got %+v, want ID=42 TenantID=5", got)
	}
	if src.calls != 0 {
		t.Fatalf("store called %d times, want 0", src.calls)
	}
}

func TestResolvePicksFirstActive(t *testing.T) {
	t.Parallel()

	src := &fakeRecipients{byTenant: map[int64][]Recipient{
		5: {
			{ID: 10, TenantID: 5, Address: "5511999990001", Active: true},
			{ID: 11, TenantID: 5, Address: "5511999990002", Active: true},
		},
	}}
	got, err := NewRecipientResolver(src).Resolve(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != 10 {
		t.Fatalf("ID=%d, want 10", got.ID)
	}
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewRecipientResolver(&fakeRecipients{}).Resolve(context.Background(), 5, 0)
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("err=%v, want ErrNoRecipient", err)
	}
}

func TestResolveStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("timeout")
	_, err := NewRecipientResolver(&fakeRecipients{err: boom}).Resolve(context.Background(), 5, 0)
	if !errors.Is(err, boom) || errors.Is(err, ErrNoRecipient) {
		t.Fatalf("err=%v, want wrapped store error", err)
	}
}
