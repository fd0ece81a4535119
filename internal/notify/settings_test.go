package notify

import (
	"context"
	"errors"
	"testing"
)

func TestAllowsDefaults(t *testing.T) {
	t.Parallel()

	s := &Settings{IsActive: true}
	want := map[Type]bool{
		TypePostPublished:    true,
		TypePostFailed:       true,
		TypeApprovalNeeded:   true,
		TypeApprovalReceived: true,
		TypeNewComment:       false,
		TypeDailySummary:     true,
		TypeQuotaWarning:     true,
	}
	for _, typ := range AllTypes {
		if got := Allows(s, typ); got != want[typ] {
			t.Fatalf("Allows(unset, %s)=%v, want %v", typ, got, want[typ])
		}
	}
}

func TestAllowsInactiveOrMissing(t *testing.T) {
	t.Parallel()

	inactive := &Settings{IsActive: false, NotifyOnPostPublished: ptr(true), NotifyOnNewComment: ptr(true)}
	for _, typ := range AllTypes {
		if Allows(nil, typ) {
			t.Fatalf("Allows(nil, %s) should be false", typ)
		}
		if Allows(inactive, typ) {
			t.Fatalf("Allows(inactive, %s) should be false", typ)
		}
	}
}

func TestAllowsToggles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    Settings
		typ  Type
		want bool
	}{
		{"published off", Settings{IsActive: true, NotifyOnPostPublished: ptr(false)}, TypePostPublished, false},
		{"failed off", Settings{IsActive: true, NotifyOnPostFailed: ptr(false)}, TypePostFailed, false},
		{"approval toggle gates needed", Settings{IsActive: true, NotifyOnApprovalNeeded: ptr(false)}, TypeApprovalNeeded, false},
		{"approval toggle gates received", Settings{IsActive: true, NotifyOnApprovalNeeded: ptr(false)}, TypeApprovalReceived, false},
		{"comment on", Settings{IsActive: true, NotifyOnNewComment: ptr(true)}, TypeNewComment, true},
		{"summary ignores toggles", Settings{IsActive: true, NotifyOnPostPublished: ptr(false)}, TypeDailySummary, true},
		{"unknown type passes", Settings{IsActive: true}, Type("something_new"), true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Allows(&tc.s, tc.typ); got != tc.want {
				t.Fatalf("Allows=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestSettingsResolverWrapsStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	r := NewSettingsResolver(&fakeSettings{err: boom})
	ok, err := r.Enabled(context.Background(), 1, TypePostPublished)
	if ok {
		t.Fatalf("Enabled should be false on error")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped %v", err, boom)
	}
}

func TestSettingsResolverIsDeterministic(t *testing.T) {
	t.Parallel()

	src := &fakeSettings{byTenant: map[int64]*Settings{3: activeSettings(3)}}
	r := NewSettingsResolver(src)
	for i := 0; i < 3; i++ {
		ok, err := r.Enabled(context.Background(), 3, TypeNewComment)
		if err != nil || ok {
			t.Fatalf("call %d: Enabled=%v err=%v, want false nil", i, ok, err)
		}
	}
}
