package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

type fakeSender struct {
	sent []string
	to   []string
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to.Recipient())
	f.sent = append(f.sent, what.(string))
	return &tele.Message{ID: 100 + len(f.sent)}, nil
}

type fakeContacts map[int64]storage.Contact

func (f fakeContacts) GetContact(_ context.Context, _ int64, id int64) (storage.Contact, error) {
	c, ok := f[id]
	if !ok {
		return storage.Contact{}, storage.ErrNotFound
	}
	return c, nil
}

func TestSendText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		to      notify.Recipient
		wantTo  string
		wantErr string
	}{
		{name: "address", to: notify.Recipient{Address: "12345"}, wantTo: "12345"},
		{name: "contact lookup", to: notify.Recipient{ID: 1}, wantTo: "-100200"},
		{name: "unknown contact", to: notify.Recipient{ID: 2}, wantErr: "Contato não encontrado"},
		{name: "bad chat id", to: notify.Recipient{Address: "+55 11"}, wantErr: "invalid telegram chat id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bot := &fakeSender{}
			ch := NewWithSender(bot, fakeContacts{1: {ID: 1, PhoneNumber: "-100200"}}, logx.Nop())
			res, err := ch.SendText(context.Background(), 7, tt.to, "*oi*")
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if tt.wantErr != "" {
				if res.Success || !strings.Contains(res.Error, tt.wantErr) {
					t.Fatalf("res=%+v, want error %q", res, tt.wantErr)
				}
				return
			}
			if !res.Success || res.MessageID != "101" || len(bot.to) != 1 || bot.to[0] != tt.wantTo {
				t.Fatalf("res=%+v sent to %v", res, bot.to)
			}
		})
	}
}

func TestSendTextErrors(t *testing.T) {
	t.Parallel()

	ch := NewWithSender(&fakeSender{err: tele.ErrBlockedByUser}, nil, logx.Nop())
	res, err := ch.SendText(context.Background(), 7, notify.Recipient{Address: "1"}, "x")
	if err != nil || res.Success || res.Error == "" {
		t.Fatalf("blocked bot: res=%+v err=%v", res, err)
	}

	boom := errors.New("dial tcp: timeout")
	ch = NewWithSender(&fakeSender{err: boom}, nil, logx.Nop())
	if _, err := ch.SendText(context.Background(), 7, notify.Recipient{Address: "1"}, "x"); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("curto", 10); len(got) != 1 || got[0] != "curto" {
		t.Fatalf("short text split: %q", got)
	}
	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(long, 8)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("split=%q", got)
	}
	for _, c := range splitText(strings.Repeat("x", 25), 10) {
		if len([]rune(c)) > 10 {
			t.Fatalf("chunk over limit: %d", len(c))
		}
	}
}
