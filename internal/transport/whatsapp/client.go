// Package whatsapp delivers notifications through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

const (
	DefaultAPIURL  = "https://graph.facebook.com/v18.0"
	defaultTimeout = 10 * time.Second

	// Copy returned to callers; the product is Portuguese-only.
	MsgNotConfigured   = "WhatsApp não configurado para este workspace"
	MsgContactNotFound = "Contato não encontrado"
)

// Store is the slice of storage the channel needs.
type Store interface {
	GetWhatsAppAccount(ctx context.Context, tenantID int64) (*storage.WhatsAppAccount, error)
	GetContact(ctx context.Context, tenantID, contactID int64) (storage.Contact, error)
	EnsureConversation(ctx context.Context, tenantID, contactID int64) (int64, error)
	AppendOutgoingMessage(ctx context.Context, tenantID int64, m storage.OutgoingMessage) (int64, error)
}

type Config struct {
	APIURL  string
	Timeout time.Duration
	// HTTPClient overrides the default traced client.
	HTTPClient *http.Client
}

// Channel implements notify.Channel.
type Channel struct {
	apiURL string
	http   *http.Client
	store  Store
	log    logx.Logger
	now    func() time.Time
}

var _ notify.Channel = (*Channel)(nil)

func New(cfg Config, store Store, log logx.Logger) *Channel {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{apiURL: apiURL, http: hc, store: store, log: log, now: time.Now}
}

func (c *Channel) Name() string { return "whatsapp" }

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a text message to a tenant contact. Missing configuration,
// unknown contacts and provider 4xx answers come back as Success=false;
// network faults and 5xx answers are returned as errors.
func (c *Channel) SendText(ctx context.Context, tenantID int64, to notify.Recipient, text string) (notify.SendResult, error) {
	acc, err := c.store.GetWhatsAppAccount(ctx, tenantID)
	if err != nil {
		return notify.SendResult{}, fmt.Errorf("load whatsapp account: %w", err)
	}
	if !acc.Configured() {
		return notify.SendResult{Error: MsgNotConfigured}, nil
	}

	phone := strings.TrimSpace(to.Address)
	if phone == "" {
		contact, err := c.store.GetContact(ctx, tenantID, to.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notify.SendResult{Error: MsgContactNotFound}, nil
		case err != nil:
			return notify.SendResult{}, fmt.Errorf("load contact: %w", err)
		}
		phone = contact.PhoneNumber
	}

	var convID int64
	if to.ID != 0 {
		if convID, err = c.store.EnsureConversation(ctx, tenantID, to.ID); err != nil {
			return notify.SendResult{}, fmt.Errorf("ensure conversation: %w", err)
		}
	}

	c.log.Debug("sending whatsapp message",
		logx.Int64("tenant_id", tenantID),
		logx.Secret("to", phone),
		logx.Span(ctx),
	)
	msgID, failure, err := c.post(ctx, acc, phone, text)
	if err != nil {
		return notify.SendResult{}, err
	}
	if failure != "" {
		return notify.SendResult{Error: failure}, nil
	}

	if convID != 0 {
		_, err := c.store.AppendOutgoingMessage(ctx, tenantID, storage.OutgoingMessage{
			ConversationID: convID,
			WAMessageID:    msgID,
			Type:           storage.MessageText,
			Content:        text,
			Status:         storage.MessageSent,
			SentAt:         c.now(),
		})
		if err != nil {
			// Delivered already; losing the history row does not fail the send.
			c.log.Warn("save outgoing message failed",
				logx.Int64("tenant_id", tenantID),
				logx.String("wa_message_id", msgID),
				logx.Err(err),
			)
		}
	}
	return notify.SendResult{Success: true, MessageID: msgID}, nil
}

// post calls the messages endpoint. It returns either the provider message id,
// a provider rejection text, or a transport error.
func (c *Channel) post(ctx context.Context, acc *storage.WhatsAppAccount, phone, text string) (string, string, error) {
	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone,
		Type:             "text",
		Text:             textBody{PreviewURL: true, Body: text},
	})
	if err != nil {
		return "", "", err
	}

	url := c.apiURL + "/" + acc.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("whatsapp response: %w", err)
	}
	var out sendResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 500:
		return "", "", fmt.Errorf("whatsapp api: %s", resp.Status)
	case resp.StatusCode >= 400:
		if out.Error != nil && out.Error.Message != "" {
			return "", out.Error.Message, nil
		}
		return "", "whatsapp api: " + resp.Status, nil
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", "", errors.New("whatsapp api: response without message id")
	}
	return out.Messages[0].ID, "", nil
}
