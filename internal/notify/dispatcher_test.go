package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"artebot/internal/eventbus"
)

type fixture struct {
	settings   *fakeSettings
	recipients *fakeRecipients
	channel    *fakeChannel
	bus        eventbus.Bus
	d          *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		settings: &fakeSettings{byTenant: map[int64]*Settings{7: activeSettings(7)}},
		recipients: &fakeRecipients{byTenant: map[int64][]Recipient{
			7: {{ID: 70, TenantID: 7, Name: "Ana", Address: "5511988887777", Active: true}},
		}},
		channel: &fakeChannel{res: SendResult{Success: true, MessageID: "abc"}},
		bus:     eventbus.New(),
	}
	f.d = NewDispatcher(Deps{
		Settings:   f.settings,
		Recipients: f.recipients,
		Channel:    f.channel,
		Formatter:  NewFormatter(WithClock(fixedClock()), WithLocation(time.UTC)),
		Bus:        f.bus,
	})
	return f
}

func published(tenantID int64) Payload {
	return Payload{TenantID: tenantID, Type: TypePostPublished, Title: "Post Publicado!", Message: "ok"}
}

func TestDispatchSuccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	got := f.d.Dispatch(context.Background(), published(7))
	if !got.Success || got.MessageID != "abc" || got.Error != "" {
		t.Fatalf("Dispatch=%+v, want success abc", got)
	}
	calls := f.channel.calls()
	if len(calls) != 1 {
		t.Fatalf("channel called %d times, want 1", len(calls))
	}
	if calls[0].To.ID != 70 || calls[0].TenantID != 7 {
		t.Fatalf("sent to %+v tenant %d", calls[0].To, calls[0].TenantID)
	}
	if !strings.HasPrefix(calls[0].Text, "✅ *Post Publicado!*\n\nok\n\n---\n_Arte AI Bot • ") {
		t.Fatalf("unexpected text %q", calls[0].Text)
	}
}

func TestDispatchPolicyBlocked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    *Settings
		typ  Type
	}{
		{"no settings", nil, TypePostPublished},
		{"inactive", &Settings{TenantID: 7}, TypeDailySummary},
		{"comment default off", activeSettings(7), TypeNewComment},
		{"toggle off", &Settings{TenantID: 7, IsActive: true, NotifyOnPostFailed: ptr(false)}, TypePostFailed},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.settings.byTenant[7] = tc.s

			got := f.d.Dispatch(context.Background(), Payload{TenantID: 7, Type: tc.typ, Title: "x"})
			if got.Success || got.Error != MsgDisabled || got.Reason != ReasonPolicyBlocked {
				t.Fatalf("Dispatch=%+v, want policy block", got)
			}
			if f.recipients.calls != 0 {
				t.Fatalf("recipients read %d times after policy block", f.recipients.calls)
			}
			if n := len(f.channel.calls()); n != 0 {
				t.Fatalf("channel called %d times after policy block", n)
			}
		})
	}
}

func TestDispatchNoRecipient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.recipients.byTenant[7] = nil

	got := f.d.Dispatch(context.Background(), published(7))
	if got.Success || got.Error != MsgNoRecipient || got.Reason != ReasonNoRecipient {
		t.Fatalf("Dispatch=%+v, want no recipient", got)
	}
	if n := len(f.channel.calls()); n != 0 {
		t.Fatalf("channel called %d times", n)
	}
}

func TestDispatchExplicitRecipient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.recipients.byTenant[7] = nil

	p := published(7)
	p.RecipientID = 99
	got := f.d.Dispatch(context.Background(), p)
	if !got.Success {
		t.Fatalf("Dispatch=%+v, want success", got)
	}
	if f.recipients.calls != 0 {
		t.Fatalf("explicit recipient should not read the store")
	}
	if to := f.channel.calls()[0].To; to.ID != 99 {
		t.Fatalf("sent to %d, want 99", to.ID)
	}
}

func TestDispatchChannelOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		res       SendResult
		err       error
		wantError string
	}{
		{"structured failure passes through", SendResult{Success: false, Error: "Falha"}, nil, "Falha"},
		{"returned error", SendResult{}, errors.New("erro x"), "erro x"},
		{"failure without text", SendResult{Success: false, MessageID: "leak"}, nil, MsgChannelFailed},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.channel.res, f.channel.err = tc.res, tc.err

			got := f.d.Dispatch(context.Background(), published(7))
			if got.Success || got.Error != tc.wantError || got.MessageID != "" {
				t.Fatalf("Dispatch=%+v, want error %q and no message id", got, tc.wantError)
			}
			if got.Reason != ReasonChannelFailure {
				t.Fatalf("Reason=%q", got.Reason)
			}
		})
	}
}

func TestDispatchSuccessDropsChannelError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.channel.res = SendResult{Success: true, MessageID: "m1", Error: "ignored"}

	got := f.d.Dispatch(context.Background(), published(7))
	if !got.Success || got.Error != "" || got.MessageID != "m1" {
		t.Fatalf("Dispatch=%+v", got)
	}
}

func TestDispatchStoreErrors(t *testing.T) {
	t.Parallel()

	t.Run("settings", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.settings.err = errors.New("conn refused")
		got := f.d.Dispatch(context.Background(), published(7))
		if got.Success || !strings.Contains(got.Error, "conn refused") || got.Reason != ReasonInternalFault {
			t.Fatalf("Dispatch=%+v", got)
		}
	})
	t.Run("recipients", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.recipients.err = errors.New("conn refused")
		got := f.d.Dispatch(context.Background(), published(7))
		if got.Success || !strings.Contains(got.Error, "conn refused") || got.Reason != ReasonInternalFault {
			t.Fatalf("Dispatch=%+v", got)
		}
	})
}

func TestDispatchRecoversPanics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"error value", errors.New("nil map"), "nil map"},
		{"string value", "kaboom", "kaboom"},
		{"empty string", "", MsgUnknownFault},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.recipients.panicMsg = tc.value

			got := f.d.Dispatch(context.Background(), published(7))
			if got.Success || got.Error != tc.want || got.Reason != ReasonInternalFault {
				t.Fatalf("Dispatch=%+v, want %q", got, tc.want)
			}
		})
	}
}

func TestDispatchSurvivesFaultyChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sendPanic any
		namePanic any
		wantErr   string
	}{
		{name: "send panics", sendPanic: "send fault", wantErr: "send fault"},
		{name: "name panics", namePanic: "name fault"},
		{name: "send and name panic", sendPanic: "send fault", namePanic: "name fault", wantErr: "send fault"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ch := &fakeChannel{
				res:       SendResult{Success: true, MessageID: "abc"},
				sendPanic: tc.sendPanic,
				namePanic: tc.namePanic,
			}
			events, unsub := f.bus.Subscribe(4)
			defer unsub()
			d := NewDispatcher(Deps{Settings: f.settings, Recipients: f.recipients, Channel: ch, Bus: f.bus})

			var got Result
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("Dispatch panicked: %v", r)
					}
				}()
				got = d.Dispatch(context.Background(), published(7))
			}()

			if tc.wantErr == "" {
				if !got.Success || got.MessageID != "abc" {
					t.Fatalf("Dispatch=%+v, want success", got)
				}
			} else if got.Success || got.Error != tc.wantErr || got.Reason != ReasonInternalFault {
				t.Fatalf("Dispatch=%+v, want internal fault %q", got, tc.wantErr)
			}

			select {
			case e := <-events:
				ev := e.Data.(DispatchEvent)
				if tc.namePanic != nil && ev.Channel != "unknown" {
					t.Fatalf("event channel=%q, want unknown", ev.Channel)
				}
			case <-time.After(time.Second):
				t.Fatalf("no dispatch event published")
			}
		})
	}
}

func TestDispatchPostFailedScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	got := f.d.Dispatch(context.Background(), Payload{
		TenantID: 7,
		Type:     TypePostFailed,
		Title:    "Falha",
		Message:  "erro x",
	})
	if got != (Result{Success: true, MessageID: "abc"}) {
		t.Fatalf("Dispatch=%+v, want {success:true messageId:abc}", got)
	}
	calls := f.channel.calls()
	if len(calls) != 1 || !strings.HasPrefix(calls[0].Text, TypePostFailed.Marker()+" *Falha*\n\nerro x\n\n---\n_") {
		t.Fatalf("sent %+v", calls)
	}
}

func TestDispatchCanceledBeforeSend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := f.d.Dispatch(ctx, published(7))
	if got.Success || got.Reason != ReasonCanceled {
		t.Fatalf("Dispatch=%+v, want canceled", got)
	}
	if n := len(f.channel.calls()); n != 0 {
		t.Fatalf("channel called %d times on a canceled context", n)
	}
}

func TestDispatchWithoutChannel(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(Deps{
		Settings:   &fakeSettings{byTenant: map[int64]*Settings{1: activeSettings(1)}},
		Recipients: &fakeRecipients{byTenant: map[int64][]Recipient{1: {{ID: 1}}}},
	})
	got := d.Dispatch(context.Background(), published(1))
	if got.Success || got.Reason != ReasonInternalFault {
		t.Fatalf("Dispatch=%+v", got)
	}
}

func TestDispatchPublishesEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	events, unsub := f.bus.Subscribe(8)
	defer unsub()

	f.d.Dispatch(context.Background(), published(7))
	f.d.Dispatch(context.Background(), Payload{TenantID: 7, Type: TypeNewComment})
	f.channel.err = errors.New("down")
	f.d.Dispatch(context.Background(), published(7))

	want := []string{EventSent, EventBlocked, EventFailed}
	for i, typ := range want {
		select {
		case ev := <-events:
			if ev.Type != typ {
				t.Fatalf("event %d type=%s, want %s", i, ev.Type, typ)
			}
			de, ok := ev.Data.(DispatchEvent)
			if !ok || de.TenantID != 7 || de.ID == "" || de.Channel != "fake" {
				t.Fatalf("event %d data=%+v", i, ev.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestDispatchConcurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	const n = 32
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.d.Dispatch(context.Background(), published(7))
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if !r.Success {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	if got := len(f.channel.calls()); got != n {
		t.Fatalf("channel calls=%d, want %d", got, n)
	}
}
