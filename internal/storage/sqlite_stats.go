package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"artebot/internal/notify"
)

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }

// AddDailyStats adds delta to the tenant's counters for day. The day is taken
// in day's own location.
func (s *SQLiteStore) AddDailyStats(ctx context.Context, tenantID int64, day time.Time, delta notify.DailyStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_stats (tenant_id, day, posts_published, total_reach, total_engagement)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, day) DO UPDATE SET
			posts_published  = posts_published + excluded.posts_published,
			total_reach      = total_reach + excluded.total_reach,
			total_engagement = total_engagement + excluded.total_engagement`,
		tenantID, dayKey(day), delta.PostsPublished, delta.TotalReach, delta.TotalEngagement)
	return err
}

// GetDailyStats returns zero counters for a day without activity.
// PendingApprovals is not filled.
func (s *SQLiteStore) GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (notify.DailyStats, error) {
	var st notify.DailyStats
	err := s.db.GetContext(ctx, &st,
		`SELECT posts_published, total_reach, total_engagement FROM daily_stats WHERE tenant_id = ? AND day = ?`,
		tenantID, dayKey(day))
	if errors.Is(err, sql.ErrNoRows) {
		return notify.DailyStats{}, nil
	}
	return st, err
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (at, dispatch_id, tenant_id, type, post_id, recipient_id, channel, success, message_id, err, reason, took_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.DispatchID, e.TenantID, e.Type, nullInt(e.PostID), nullInt(e.RecipientID),
		e.Channel, e.Success, nullStr(e.MessageID), nullStr(e.Error), nullStr(e.Reason), e.TookMS)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
