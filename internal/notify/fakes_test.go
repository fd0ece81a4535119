package notify

import (
	"context"
	"sync"
)

type fakeSettings struct {
	byTenant map[int64]*Settings
	err      error
	calls    int
	mu       sync.Mutex
}

func (f *fakeSettings) GetNotificationSettings(_ context.Context, tenantID int64) (*Settings, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byTenant[tenantID], nil
}

type fakeRecipients struct {
	byTenant map[int64][]Recipient
	err      error
	calls    int
	panicMsg any
	mu       sync.Mutex
}

func (f *fakeRecipients) GetActiveRecipients(_ context.Context, tenantID int64) ([]Recipient, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panicMsg != nil {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byTenant[tenantID], nil
}

type sentText struct {
	TenantID int64
	To       Recipient
	Text     string
}

type fakeChannel struct {
	res SendResult
	err error
	// sendPanic and namePanic make SendText or Name panic with that value.
	sendPanic any
	namePanic any

	mu   sync.Mutex
	sent []sentText
}

func (f *fakeChannel) Name() string {
	if f.namePanic != nil {
		panic(f.namePanic)
	}
	return "fake"
}

func (f *fakeChannel) SendText(_ context.Context, tenantID int64, to Recipient, text string) (SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentText{TenantID: tenantID, To: to, Text: text})
	f.mu.Unlock()
	if f.sendPanic != nil {
		panic(f.sendPanic)
	}
	return f.res, f.err
}

func (f *fakeChannel) calls() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

func ptr(b bool) *bool { return &b }

func activeSettings(tenantID int64) *Settings {
	return &Settings{TenantID: tenantID, IsActive: true}
}
