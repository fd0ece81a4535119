// Package app wires configuration, storage, the dispatcher and the
// long-running loops of the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"artebot/internal/config"
	"artebot/internal/eventbus"
	"artebot/internal/ingest"
	"artebot/internal/metrics"
	"artebot/internal/notify"
	"artebot/internal/runtime/supervisor"
	"artebot/internal/server"
	"artebot/internal/storage"
	"artebot/internal/storage/rediscache"
	"artebot/internal/summary"
	"artebot/internal/tracing"
	"artebot/internal/transport"
	"artebot/internal/transport/telegram"
	"artebot/internal/transport/whatsapp"
	logx "artebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	sup  *supervisor.Supervisor

	bus        eventbus.Bus
	store      storage.Store
	cache      *rediscache.Settings
	dispatcher *notify.Dispatcher
	api        *server.Server
	apiGrace   time.Duration
	consumer   *ingest.Consumer
	summary    *summary.Job

	stopTracing tracing.ShutdownFunc
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: appLog, logs: logs, bus: eventbus.New()}
	ok := false
	defer func() {
		if !ok {
			a.closeResources(context.Background())
			_ = logs.Close()
		}
	}()

	a.stopTracing, err = tracing.Setup(ctx, mapTracing(cfg))
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if errors.Is(err, storage.ErrDisabled) {
		return nil, errors.New("storage is required: set storage.driver")
	}
	if err != nil {
		return nil, err
	}
	appLog.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	var settings notify.SettingsSource = a.store
	var invalidator server.Invalidator
	if cfg.Cache.Enabled {
		cc, err := mapCache(cfg)
		if err != nil {
			return nil, err
		}
		a.cache = rediscache.NewSettings(rediscache.NewClient(cc), a.store, cc, log.With(logx.String("comp", "cache")))
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.cache.Ping(pctx); err != nil {
			appLog.Warn("settings cache unreachable; reads fall back to storage", logx.Err(err))
		}
		cancel()
		settings, invalidator = a.cache, a.cache
	}

	loc, err := config.ParseLocation("notify.timezone", cfg.Notify.Timezone, config.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	ch, err := a.buildChannel(cfg, log)
	if err != nil {
		return nil, err
	}

	fopts := []notify.FormatterOption{notify.WithLocation(loc)}
	if name := strings.TrimSpace(cfg.Notify.ProductName); name != "" {
		fopts = append(fopts, notify.WithProductName(name))
	}
	a.dispatcher = notify.NewDispatcher(notify.Deps{
		Settings:   settings,
		Recipients: a.store,
		Channel:    ch,
		Formatter:  notify.NewFormatter(fopts...),
		Log:        log.With(logx.String("comp", "notify")),
		Bus:        a.bus,
	})

	srvCfg, grace, err := mapServer(cfg)
	if err != nil {
		return nil, err
	}
	a.apiGrace = grace
	a.api = server.New(srvCfg, server.Deps{
		Dispatcher: a.dispatcher,
		Store:      a.store,
		Cache:      invalidator,
		Log:        log.With(logx.String("comp", "http")),
	})

	if cfg.Ingest.Enabled {
		ic := mapIngest(cfg, loc)
		a.consumer = ingest.NewConsumer(ic, ingest.NewReader(ic), a.dispatcher, a.store,
			log.With(logx.String("comp", "ingest")))
	}
	if cfg.Summary.Enabled {
		smc, err := mapSummary(cfg, loc)
		if err != nil {
			return nil, err
		}
		a.summary, err = summary.New(smc, a.store, a.dispatcher, log.With(logx.String("comp", "summary")))
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// buildChannel creates the configured channel and wraps it, inside out, with
// the send timeout, metrics, circuit breaker and rate limiter.
func (a *App) buildChannel(cfg *config.Config, log logx.Logger) (notify.Channel, error) {
	cs, err := mapChannelSettings(cfg)
	if err != nil {
		return nil, err
	}

	var base notify.Channel
	kind := strings.ToLower(strings.TrimSpace(cfg.Channel.Kind))
	switch kind {
	case "", "whatsapp":
		timeout, err := config.ParseDurationField("channel.whatsapp.timeout", cfg.Channel.WhatsApp.Timeout)
		if err != nil {
			return nil, err
		}
		base = whatsapp.New(whatsapp.Config{APIURL: cfg.Channel.WhatsApp.APIURL, Timeout: timeout},
			a.store, log.With(logx.String("comp", "whatsapp")))
	case "telegram":
		tg, err := telegram.New(telegram.Config{Token: cfg.Channel.Telegram.Token}, a.store,
			log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		base = tg
	case "log":
		base = transport.NewLogChannel(log.With(logx.String("comp", "channel.log")))
	default:
		return nil, fmt.Errorf("unknown channel.kind: %s", kind)
	}

	ch := transport.Timeout(base, cs.sendTimeout)
	ch = transport.Observe(ch, func(name string, res notify.SendResult, err error, took time.Duration) {
		metrics.RecordChannelSend(name, res.Success, err, took)
	})
	if !cs.breakerOff {
		bs := cs.breaker
		bs.OnStateChange = func(name, from, to string) {
			metrics.SetBreakerState(name, to)
			a.log.Warn("channel circuit breaker", logx.String("channel", name),
				logx.String("from", from), logx.String("to", to))
		}
		ch = transport.Breaker(ch, bs)
	}
	ch = transport.RateLimit(ch, cs.ratePerSec, cs.burst)
	a.log.Info("delivery channel ready", logx.String("channel", base.Name()))
	return ch, nil
}

// Dispatcher exposes the core for embedding and tests.
func (a *App) Dispatcher() *notify.Dispatcher { return a.dispatcher }

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	events, unsub := a.bus.Subscribe(256, notify.EventSent, notify.EventFailed, notify.EventBlocked)
	a.sup.Go("audit", func(c context.Context) error {
		defer unsub()
		return auditLoop(c, events, a.bus, a.store, a.log.With(logx.String("comp", "audit")))
	})

	a.sup.GoRestart("http", func(c context.Context) error {
		return a.api.Serve(c, a.apiGrace)
	},
		supervisor.WithBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithMaxRestarts(5),
	)

	if a.consumer != nil {
		a.sup.GoRestart("ingest", a.consumer.Run, supervisor.WithBackoff(time.Second, 30*time.Second))
	}
	if a.summary != nil {
		a.sup.Go("summary", a.summary.Run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdogLoop(c, a.log, func() bool { return a.sup.Err() == nil })
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// reloadLoop applies logging changes live and reports sections that only
// take effect after a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}

			changed := config.ChangedSections(last, next)
			last = next
			if len(changed) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.logs.Apply(mapLogging(next))
			if restart := config.RestartRequired(changed); len(restart) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect",
					logx.String("sections", strings.Join(restart, ",")))
			}
			a.log.Info("config reloaded", logx.String("changed", strings.Join(changed, ",")))
		}
	}
}

// Stop cancels every loop and releases resources in dependency order. Each
// step is bounded so one component cannot stall the shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources(ctx)
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "supervisor", a.apiGrace+2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.closeResources(ctx)
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResources(ctx context.Context) {
	if a.consumer != nil {
		a.step(ctx, "ingest", time.Second, func(context.Context) error { return a.consumer.Close() })
	}
	if a.cache != nil {
		a.step(ctx, "cache", time.Second, func(context.Context) error { return a.cache.Close() })
	}
	if a.store != nil {
		a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	}
	if a.stopTracing != nil {
		a.step(ctx, "tracing", 2*time.Second, func(c context.Context) error { return a.stopTracing(c) })
	}
}

// step runs fn with an upper bound that never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
