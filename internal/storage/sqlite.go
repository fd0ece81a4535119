package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"artebot/internal/notify"
	logx "artebot/pkg/logx"
)

// SQLiteStore is the Store backed by a SQLite database file.
type SQLiteStore struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at cfg.Path and applies any
// pending migrations.
func OpenSQLite(cfg Config, log logx.Logger) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; this also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &SQLiteStore{db: db, log: log, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	current := 0
	var tables int
	err := s.db.GetContext(ctx, &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		s.log.Info("schema migrated", logx.Int("version", m.version))
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) nowMS() int64 { return s.now().UnixMilli() }

type settingsRow struct {
	TenantID           int64          `db:"tenant_id"`
	IsActive           bool           `db:"is_active"`
	PostPublished      sql.NullBool   `db:"notify_post_published"`
	PostFailed         sql.NullBool   `db:"notify_post_failed"`
	ApprovalNeeded     sql.NullBool   `db:"notify_approval_needed"`
	NewComment         sql.NullBool   `db:"notify_new_comment"`
	PhoneNumberID      sql.NullString `db:"phone_number_id"`
	AccessToken        sql.NullString `db:"access_token"`
	BusinessAccountID  sql.NullString `db:"business_account_id"`
	WebhookVerifyToken sql.NullString `db:"webhook_verify_token"`
	CreatedAt          int64          `db:"created_at"`
	UpdatedAt          int64          `db:"updated_at"`
}

// opt unwraps p for use as a query argument; nil becomes SQL NULL.
func opt[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func (r settingsRow) settings() *notify.Settings {
	return &notify.Settings{
		TenantID:               r.TenantID,
		IsActive:               r.IsActive,
		NotifyOnPostPublished:  nullBoolPtr(r.PostPublished),
		NotifyOnPostFailed:     nullBoolPtr(r.PostFailed),
		NotifyOnApprovalNeeded: nullBoolPtr(r.ApprovalNeeded),
		NotifyOnNewComment:     nullBoolPtr(r.NewComment),
	}
}

func (s *SQLiteStore) settingsRow(ctx context.Context, tenantID int64) (*settingsRow, error) {
	var r settingsRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM notification_settings WHERE tenant_id = ?`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetNotificationSettings returns (nil, nil) when the tenant has no record.
func (s *SQLiteStore) GetNotificationSettings(ctx context.Context, tenantID int64) (*notify.Settings, error) {
	r, err := s.settingsRow(ctx, tenantID)
	if err != nil || r == nil {
		return nil, err
	}
	return r.settings(), nil
}

func (s *SQLiteStore) UpsertNotificationSettings(ctx context.Context, u SettingsUpdate) (*notify.Settings, error) {
	if u.TenantID == 0 {
		return nil, errors.New("tenant id is required")
	}
	const query = `
INSERT INTO notification_settings (
	tenant_id, is_active,
	notify_post_published, notify_post_failed, notify_approval_needed, notify_new_comment,
	phone_number_id, access_token, business_account_id, webhook_verify_token,
	created_at, updated_at
) VALUES (
	:tenant_id, COALESCE(:is_active, 0),
	COALESCE(:notify_post_published, 1), COALESCE(:notify_post_failed, 1),
	COALESCE(:notify_approval_needed, 1), COALESCE(:notify_new_comment, 0),
	:phone_number_id, :access_token, :business_account_id, :webhook_verify_token,
	:now, :now
)
ON CONFLICT(tenant_id) DO UPDATE SET
	is_active              = COALESCE(:is_active, is_active),
	notify_post_published  = COALESCE(:notify_post_published, notify_post_published),
	notify_post_failed     = COALESCE(:notify_post_failed, notify_post_failed),
	notify_approval_needed = COALESCE(:notify_approval_needed, notify_approval_needed),
	notify_new_comment     = COALESCE(:notify_new_comment, notify_new_comment),
	phone_number_id        = COALESCE(:phone_number_id, phone_number_id),
	access_token           = COALESCE(:access_token, access_token),
	business_account_id    = COALESCE(:business_account_id, business_account_id),
	webhook_verify_token   = COALESCE(:webhook_verify_token, webhook_verify_token),
	updated_at             = :now`

	args := map[string]any{
		"tenant_id":              u.TenantID,
		"is_active":              opt(u.IsActive),
		"notify_post_published":  opt(u.NotifyOnPostPublished),
		"notify_post_failed":     opt(u.NotifyOnPostFailed),
		"notify_approval_needed": opt(u.NotifyOnApprovalNeeded),
		"notify_new_comment":     opt(u.NotifyOnNewComment),
		"phone_number_id":        opt(u.PhoneNumberID),
		"access_token":           opt(u.AccessToken),
		"business_account_id":    opt(u.BusinessAccountID),
		"webhook_verify_token":   opt(u.WebhookVerifyToken),
		"now":                    s.nowMS(),
	}
	if _, err := s.db.NamedExecContext(ctx, query, args); err != nil {
		return nil, fmt.Errorf("upserting settings for tenant %d: %w", u.TenantID, err)
	}
	return s.GetNotificationSettings(ctx, u.TenantID)
}

// GetWhatsAppAccount returns (nil, nil) when the tenant has no settings record.
func (s *SQLiteStore) GetWhatsAppAccount(ctx context.Context, tenantID int64) (*WhatsAppAccount, error) {
	r, err := s.settingsRow(ctx, tenantID)
	if err != nil || r == nil {
		return nil, err
	}
	return &WhatsAppAccount{
		TenantID:          r.TenantID,
		Active:            r.IsActive,
		PhoneNumberID:     r.PhoneNumberID.String,
		AccessToken:       r.AccessToken.String,
		BusinessAccountID: r.BusinessAccountID.String,
	}, nil
}

func (s *SQLiteStore) ActiveTenants(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT tenant_id FROM notification_settings WHERE is_active = 1 ORDER BY tenant_id`)
	return ids, err
}

type contactRow struct {
	Contact
	LastMessageAtMS sql.NullInt64 `db:"last_message_at"`
	CreatedAtMS     int64         `db:"created_at"`
	UpdatedAtMS     int64         `db:"updated_at"`
}

func (r contactRow) contact() Contact {
	c := r.Contact
	c.CreatedAt = time.UnixMilli(r.CreatedAtMS)
	if r.LastMessageAtMS.Valid {
		t := time.UnixMilli(r.LastMessageAtMS.Int64)
		c.LastMessageAt = &t
	}
	return c
}

const contactColumns = `id, tenant_id, phone_number, name, email, is_active, last_message_at, created_at, updated_at`

// GetActiveRecipients lists active contacts in creation order.
func (s *SQLiteStore) GetActiveRecipients(ctx context.Context, tenantID int64) ([]notify.Recipient, error) {
	var rows []contactRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = ? AND is_active = 1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]notify.Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.contact().Recipient())
	}
	return out, nil
}

func (s *SQLiteStore) GetContact(ctx context.Context, tenantID, contactID int64) (Contact, error) {
	var r contactRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = ? AND id = ?`, tenantID, contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return r.contact(), nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, tenantID int64) ([]Contact, error) {
	var rows []contactRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.contact())
	}
	return out, nil
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c Contact) (Contact, error) {
	if c.TenantID == 0 || strings.TrimSpace(c.PhoneNumber) == "" {
		return Contact{}, errors.New("tenant id and phone number are required")
	}
	now := s.nowMS()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (tenant_id, phone_number, name, email, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TenantID, strings.TrimSpace(c.PhoneNumber), c.Name, c.Email, c.Active, now, now)
	if err != nil {
		return Contact{}, fmt.Errorf("inserting contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Contact{}, err
	}
	return s.GetContact(ctx, c.TenantID, id)
}

func (s *SQLiteStore) SetContactActive(ctx context.Context, tenantID, contactID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET is_active = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		active, s.nowMS(), tenantID, contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
