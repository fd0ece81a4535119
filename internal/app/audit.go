package app

import (
	"context"
	"time"

	"artebot/internal/eventbus"
	"artebot/internal/metrics"
	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

// auditWriter is the storage the audit loop needs.
type auditWriter interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// auditLoop turns dispatch events into audit rows and counters. It drains
// until ctx ends.
func auditLoop(ctx context.Context, events <-chan eventbus.Event, bus eventbus.Bus, st auditWriter, log logx.Logger) error {
	var lastDropped uint64
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if n := bus.Dropped(); n > lastDropped {
				metrics.EventsDropped.Add(float64(n - lastDropped))
				log.Warn("dispatch events dropped", logx.Int64("count", int64(n-lastDropped)))
				lastDropped = n
			}
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(notify.DispatchEvent)
			if !ok {
				continue
			}
			metrics.RecordDispatch(string(ev.Type), string(ev.Result.Reason), ev.Took)

			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			err := st.AppendAudit(wctx, auditEntry(e.Time, ev))
			cancel()
			if err != nil {
				metrics.AuditErrors.Inc()
				log.Warn("audit write failed", logx.String("dispatch_id", ev.ID), logx.Err(err))
			}
		}
	}
}

func auditEntry(at time.Time, ev notify.DispatchEvent) storage.AuditEntry {
	return storage.AuditEntry{
		At:          at,
		DispatchID:  ev.ID,
		TenantID:    ev.TenantID,
		Type:        string(ev.Type),
		PostID:      ev.PostID,
		RecipientID: ev.RecipientID,
		Channel:     ev.Channel,
		Success:     ev.Result.Success,
		MessageID:   ev.Result.MessageID,
		Error:       ev.Result.Error,
		Reason:      string(ev.Result.Reason),
		TookMS:      ev.Took.Milliseconds(),
	}
}
