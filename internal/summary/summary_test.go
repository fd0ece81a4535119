package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

type fakeStore struct {
	tenants  []int64
	stats    map[int64]notify.DailyStats
	pending  map[int64]int64
	statsErr map[int64]error
	days     []time.Time
}

func (f *fakeStore) ActiveTenants(context.Context) ([]int64, error) { return f.tenants, nil }

func (f *fakeStore) GetDailyStats(_ context.Context, tenantID int64, day time.Time) (notify.DailyStats, error) {
	f.days = append(f.days, day)
	if err := f.statsErr[tenantID]; err != nil {
		return notify.DailyStats{}, err
	}
	return f.stats[tenantID], nil
}

func (f *fakeStore) CountPendingApprovals(_ context.Context, tenantID int64) (int64, error) {
	return f.pending[tenantID], nil
}

type fakeDispatcher struct{ got []notify.Payload }

func (f *fakeDispatcher) Dispatch(_ context.Context, p notify.Payload) notify.Result {
	f.got = append(f.got, p)
	return notify.Result{Success: true, MessageID: "m"}
}

func TestRunNow(t *testing.T) {
	t.Parallel()

	st := &fakeStore{
		tenants:  []int64{7, 8, 9},
		stats:    map[int64]notify.DailyStats{7: {PostsPublished: 2, TotalReach: 12500}},
		pending:  map[int64]int64{7: 3},
		statsErr: map[int64]error{8: errors.New("database is locked")},
	}
	d := &fakeDispatcher{}
	loc := time.FixedZone("BRT", -3*60*60)
	j, err := New(Config{Location: loc}, st, d, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.now = func() time.Time { return time.Date(2024, time.May, 10, 1, 0, 0, 0, time.UTC) }

	err = j.RunNow(context.Background())
	if err == nil || !strings.Contains(err.Error(), "tenant 8") {
		t.Fatalf("err=%v, want tenant 8 failure", err)
	}
	if len(d.got) != 2 || d.got[0].TenantID != 7 || d.got[1].TenantID != 9 {
		t.Fatalf("dispatched %+v", d.got)
	}
	if d.got[0].Type != notify.TypeDailySummary || !strings.Contains(d.got[0].Message, "12.500") ||
		!strings.Contains(d.got[0].Message, "Aprovações pendentes: 3") {
		t.Fatalf("summary message %q", d.got[0].Message)
	}
	if got := st.days[0].Format(time.DateOnly); got != "2024-05-09" {
		t.Fatalf("stats day=%s, want local day 2024-05-09", got)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Schedule: "every day"}, &fakeStore{}, &fakeDispatcher{}, logx.Nop()); err == nil {
		t.Fatalf("bad schedule accepted")
	}
	j, err := New(Config{}, &fakeStore{}, &fakeDispatcher{}, logx.Nop())
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	if j.spec != DefaultSchedule {
		t.Fatalf("spec=%q, want %q", j.spec, DefaultSchedule)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	j, _ := New(Config{}, &fakeStore{}, &fakeDispatcher{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}
