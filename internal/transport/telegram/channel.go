// Package telegram delivers notifications as Telegram bot messages. The
// recipient address is the numeric chat id.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token string
	// Offline skips the getMe call on startup.
	Offline bool
}

// Sender is the part of *tele.Bot used for delivery.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ContactLookup resolves recipients that only carry a contact id.
type ContactLookup interface {
	GetContact(ctx context.Context, tenantID, contactID int64) (storage.Contact, error)
}

type Channel struct {
	bot      Sender
	contacts ContactLookup
	log      logx.Logger
}

var _ notify.Channel = (*Channel)(nil)

func New(cfg Config, contacts ContactLookup, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return NewWithSender(b, contacts, log), nil
}

func NewWithSender(bot Sender, contacts ContactLookup, log logx.Logger) *Channel {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{bot: bot, contacts: contacts, log: log}
}

func (c *Channel) Name() string { return "telegram" }

// SendText sends text as Markdown, split into chunks Telegram accepts. The id
// of the first chunk is the message id. Bad requests (unknown chat, blocked
// bot) come back as Success=false.
func (c *Channel) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	addr := strings.TrimSpace(to.Address)
	if addr == "" && c.contacts != nil {
		contact, err := c.contacts.GetContact(ctx, tenantID, to.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notify.SendResult{Error: "Contato não encontrado"}, nil
		case err != nil:
			return notify.SendResult{}, fmt.Errorf("load contact: %w", err)
		}
		addr = strings.TrimSpace(contact.PhoneNumber)
	}
	chatID, err := strconv.ParseInt(addr, 10, 64)
	if err != nil || chatID == 0 {
		return notify.SendResult{Error: fmt.Sprintf("invalid telegram chat id %q", addr)}, nil
	}

	chat := &tele.Chat{ID: chatID}
	var first int
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return notify.SendResult{}, err
		}
		msg, err := c.bot.Send(chat, chunk, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		if err != nil {
			var apiErr *tele.Error
			if errors.As(err, &apiErr) && (apiErr.Code == 400 || apiErr.Code == 403) && i == 0 {
				return notify.SendResult{Error: apiErr.Description}, nil
			}
			return notify.SendResult{}, fmt.Errorf("telegram send: %w", err)
		}
		if i == 0 && msg != nil {
			first = msg.ID
		}
	}
	return notify.SendResult{Success: true, MessageID: strconv.Itoa(first)}, nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that do not leave tiny chunks.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
