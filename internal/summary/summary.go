// Package summary sends the daily summary to every active tenant on a cron
// schedule.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"artebot/internal/metrics"
	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

const DefaultSchedule = "0 20 * * *"

type Store interface {
	ActiveTenants(ctx context.Context) ([]int64, error)
	GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (notify.DailyStats, error)
	CountPendingApprovals(ctx context.Context, tenantID int64) (int64, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, p notify.Payload) notify.Result
}

type Config struct {
	Schedule string
	Location *time.Location
	// RunTimeout bounds one run over all tenants; default 5m.
	RunTimeout time.Duration
}

type Job struct {
	store    Store
	dispatch Dispatcher
	log      logx.Logger
	schedule cron.Schedule
	spec     string
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
}

func New(cfg Config, st Store, d Dispatcher, log logx.Logger) (*Job, error) {
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("summary schedule %q: %w", spec, err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Job{
		store:    st,
		dispatch: d,
		log:      log,
		schedule: sched,
		spec:     spec,
		loc:      loc,
		timeout:  timeout,
		now:      time.Now,
	}, nil
}

// Run schedules the job and blocks until ctx is done. A run still in progress
// when the next tick fires makes that tick a no-op.
func (j *Job) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(j.loc),
		cron.WithLogger(cronLogger{j.log}),
		cron.WithChain(cron.Recover(cronLogger{j.log}), cron.SkipIfStillRunning(cronLogger{j.log})),
	)
	c.Schedule(j.schedule, cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()
		if err := j.RunNow(runCtx); err != nil {
			j.log.Warn("daily summary finished with errors", logx.Err(err))
		}
	}))
	c.Start()
	j.log.Info("daily summary scheduled",
		logx.String("schedule", j.spec),
		logx.String("tz", j.loc.String()),
		logx.Time("next", j.schedule.Next(j.now().In(j.loc))),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunNow sends today's summary to every tenant with active settings. Tenant
// failures do not stop the run; they are joined into the returned error.
func (j *Job) RunNow(ctx context.Context) (err error) {
	defer func() { metrics.RecordSummaryRun(err) }()

	tenants, err := j.store.ActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	today := j.now().In(j.loc)

	var errs []error
	sent := 0
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		stats, err := j.store.GetDailyStats(ctx, tenantID, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %d stats: %w", tenantID, err))
			continue
		}
		pending, err := j.store.CountPendingApprovals(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %d approvals: %w", tenantID, err))
			continue
		}
		stats.PendingApprovals = pending

		res := j.dispatch.Dispatch(ctx, notify.DailySummary(tenantID, stats))
		if res.Success {
			sent++
		}
	}
	j.log.Info("daily summary run",
		logx.Int("tenants", len(tenants)),
		logx.Int("delivered", sent),
		logx.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
