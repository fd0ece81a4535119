package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

type stubChannel struct {
	mu    sync.Mutex
	calls int
	res   notify.SendResult
	err   error
	wait  time.Duration
}

func (s *stubChannel) Name() string { return "stub" }

func (s *stubChannel) SendText(ctx context.Context, _ int64, _ notify.Recipient, _ string) (notify.SendResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return notify.SendResult{}, ctx.Err()
		}
	}
	return s.res, s.err
}

func (s *stubChannel) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestBreakerOpensOnTransportErrors(t *testing.T) {
	t.Parallel()

	stub := &stubChannel{err: errors.New("connection reset")}
	var transitions []string
	ch := Breaker(stub, BreakerSettings{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
		OnStateChange: func(name, from, to string) {
			transitions = append(transitions, name+":"+from+"->"+to)
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := ch.SendText(context.Background(), 1, notify.Recipient{}, "x"); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("send %d: err=%v, want transport error", i, err)
		}
	}
	if _, err := ch.SendText(context.Background(), 1, notify.Recipient{}, "x"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err=%v, want ErrCircuitOpen", err)
	}
	if stub.count() != 2 {
		t.Fatalf("open circuit still called the channel (%d calls)", stub.count())
	}
	if len(transitions) != 1 || transitions[0] != "stub:closed->open" {
		t.Fatalf("transitions=%v", transitions)
	}
}

func TestBreakerIgnoresProviderRejections(t *testing.T) {
	t.Parallel()

	stub := &stubChannel{res: notify.SendResult{Success: false, Error: "invalid number"}}
	ch := Breaker(stub, BreakerSettings{FailureThreshold: 1})
	for i := 0; i < 5; i++ {
		res, err := ch.SendText(context.Background(), 1, notify.Recipient{}, "x")
		if err != nil || res.Error != "invalid number" {
			t.Fatalf("send %d: res=%+v err=%v", i, res, err)
		}
	}
}

func TestTimeoutBoundsSend(t *testing.T) {
	t.Parallel()

	stub := &stubChannel{wait: time.Second}
	ch := Timeout(stub, 20*time.Millisecond)
	_, err := ch.SendText(context.Background(), 1, notify.Recipient{}, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
	if Timeout(stub, 0) != notify.Channel(stub) {
		t.Fatalf("zero timeout should return the channel unchanged")
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	stub := &stubChannel{res: notify.SendResult{Success: true}}
	ch := RateLimit(stub, 0.001, 1)
	if _, err := ch.SendText(context.Background(), 1, notify.Recipient{}, "x"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ch.SendText(ctx, 1, notify.Recipient{}, "x"); err == nil {
		t.Fatalf("second send should wait past the deadline")
	}
	if stub.count() != 1 {
		t.Fatalf("calls=%d, want 1", stub.count())
	}
}

func TestObserveReportsOutcome(t *testing.T) {
	t.Parallel()

	stub := &stubChannel{res: notify.SendResult{Success: true, MessageID: "m"}}
	var got []string
	ch := Observe(stub, func(channel string, res notify.SendResult, err error, _ time.Duration) {
		got = append(got, channel+":"+res.MessageID)
	})
	_, _ = ch.SendText(context.Background(), 1, notify.Recipient{}, "x")
	if len(got) != 1 || got[0] != "stub:m" {
		t.Fatalf("observed %v", got)
	}
}

func TestLogChannel(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	ch := NewLogChannel(logx.NewWriter(&buf, "info"))
	res, err := ch.SendText(context.Background(), 7, notify.Recipient{ID: 3, Address: "5511"}, "olá")
	if err != nil || !res.Success || !strings.HasPrefix(res.MessageID, "log-") {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if !strings.Contains(buf.String(), "olá") {
		t.Fatalf("log output missing text: %s", buf.String())
	}
}
