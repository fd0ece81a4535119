package notify

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"artebot/internal/eventbus"
	logx "artebot/pkg/logx"
)

// Event types published on the bus after every dispatch.
const (
	EventSent    = "notify.sent"
	EventFailed  = "notify.failed"
	EventBlocked = "notify.blocked"
)

// DispatchEvent is the bus payload for Event* types.
type DispatchEvent struct {
	ID          string        `json:"id"`
	TenantID    int64         `json:"tenant_id"`
	Type        Type          `json:"type"`
	PostID      int64         `json:"post_id,omitempty"`
	RecipientID int64         `json:"recipient_id,omitempty"`
	Channel     string        `json:"channel"`
	Result      Result        `json:"result"`
	Took        time.Duration `json:"took"`
}

// Deps are the collaborators of a Dispatcher. Settings, Recipients and
// Channel are required; the rest have defaults.
type Deps struct {
	Settings   SettingsSource
	Recipients RecipientSource
	Channel    Channel
	Formatter  *Formatter
	Log        logx.Logger
	Bus        eventbus.Bus
}

// Dispatcher is the entry point of the notification core.
//
// It keeps no per-call state and is safe for concurrent use.
type Dispatcher struct {
	settings   *SettingsResolver
	recipients *RecipientResolver
	formatter  *Formatter
	channel    Channel
	chName     string
	log        logx.Logger
	bus        eventbus.Bus
	tracer     trace.Tracer
}

func NewDispatcher(d Deps) *Dispatcher {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Formatter == nil {
		d.Formatter = NewFormatter()
	}
	return &Dispatcher{
		settings:   NewSettingsResolver(d.Settings),
		recipients: NewRecipientResolver(d.Recipients),
		formatter:  d.Formatter,
		channel:    d.Channel,
		chName:     channelName(d.Channel),
		log:        d.Log,
		bus:        d.Bus,
		tracer:     otel.Tracer("artebot/internal/notify"),
	}
}

// Dispatch runs one notification through policy, recipient resolution,
// formatting and delivery. It always returns a Result and never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) (res Result) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	id := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "notify.Dispatch", trace.WithAttributes(
		attribute.Int64("tenant.id", p.TenantID),
		attribute.String("notification.type", string(p.Type)),
	))
	defer span.End()

	log := d.log.With(
		logx.String("dispatch_id", id),
		logx.Int64("tenant_id", p.TenantID),
		logx.String("type", string(p.Type)),
		logx.Span(ctx),
	)

	var to Recipient
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			res = failure(ReasonInternalFault, panicText(r))
		}
		res = res.normalized()

		if res.Success {
			span.SetStatus(codes.Ok, "")
			span.SetAttributes(attribute.String("message.id", res.MessageID))
		} else {
			span.SetStatus(codes.Error, res.Error)
			span.SetAttributes(attribute.String("failure.reason", string(res.Reason)))
		}
		d.publish(DispatchEvent{
			ID:          id,
			TenantID:    p.TenantID,
			Type:        p.Type,
			PostID:      p.PostID,
			RecipientID: to.ID,
			Channel:     d.chName,
			Result:      res,
			Took:        time.Since(start),
		})
	}()

	// 1. Policy gate.
	enabled, err := d.settings.Enabled(ctx, p.TenantID, p.Type)
	if err != nil {
		log.Error("settings lookup failed", logx.Err(err))
		return failure(ReasonInternalFault, err.Error())
	}
	if !enabled {
		log.Debug("notification suppressed by tenant settings")
		return failure(ReasonPolicyBlocked, MsgDisabled)
	}

	// 2. Recipient.
	to, err = d.recipients.Resolve(ctx, p.TenantID, p.RecipientID)
	if errors.Is(err, ErrNoRecipient) {
		log.Info("no active recipient for tenant")
		return failure(ReasonNoRecipient, MsgNoRecipient)
	}
	if err != nil {
		log.Error("recipient lookup failed", logx.Err(err))
		return failure(ReasonInternalFault, err.Error())
	}
	log = log.With(logx.Int64("recipient_id", to.ID))

	// 3. Text.
	text := d.formatter.Format(p)

	// 4. Delivery.
	if d.channel == nil {
		log.Error("no delivery channel configured")
		return failure(ReasonInternalFault, "no delivery channel configured")
	}
	if err := ctx.Err(); err != nil {
		log.Warn("dispatch canceled before delivery", logx.Err(err))
		return failure(ReasonCanceled, fmt.Sprintf("dispatch canceled: %v", err))
	}
	sr, err := d.channel.SendText(ctx, p.TenantID, to, text)
	if err != nil {
		log.Warn("delivery channel failed", logx.String("channel", d.chName), logx.Err(err))
		return failure(ReasonChannelFailure, err.Error())
	}
	if !sr.Success {
		log.Warn("delivery rejected", logx.String("channel", d.chName), logx.String("err", sr.Error))
		return Result{Success: false, Error: sr.Error, Reason: ReasonChannelFailure}
	}

	log.Debug("notification delivered", logx.String("message_id", sr.MessageID), logx.Duration("took", time.Since(start)))
	return Result{Success: true, MessageID: sr.MessageID}
}

// channelName reads ch.Name once; a panicking Name yields "unknown".
func channelName(ch Channel) (name string) {
	if ch == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			name = "unknown"
		}
	}()
	return ch.Name()
}

// publish never panics; a faulty bus loses the event.
func (d *Dispatcher) publish(ev DispatchEvent) {
	if d.bus == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch event publish panicked", logx.String("dispatch_id", ev.ID), logx.Any("panic", r))
		}
	}()
	typ := EventSent
	switch {
	case ev.Result.Reason == ReasonPolicyBlocked:
		typ = EventBlocked
	case !ev.Result.Success:
		typ = EventFailed
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func failure(reason Reason, msg string) Result {
	return Result{Success: false, Error: msg, Reason: reason}
}

// normalized enforces the Result invariant: success carries no error, failure
// carries no message id and always has some error text.
func (r Result) normalized() Result {
	if r.Success {
		r.Error = ""
		r.Reason = ""
		return r
	}
	r.MessageID = ""
	if r.Error == "" {
		r.Error = MsgChannelFailed
	}
	if r.Reason == "" {
		r.Reason = ReasonChannelFailure
	}
	return r
}

func panicText(r any) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		if v != "" {
			return v
		}
	default:
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return MsgUnknownFault
}
