package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// EnsureConversation returns the tenant's conversation with a contact,
// creating an active one on first use.
func (s *SQLiteStore) EnsureConversation(ctx context.Context, tenantID, contactID int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.ensureConversationTx(ctx, tx, tenantID, contactID)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *SQLiteStore) ensureConversationTx(ctx context.Context, tx *sqlx.Tx, tenantID, contactID int64) (int64, error) {
	now := s.nowMS()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (tenant_id, contact_id, status, created_at, updated_at)
		 VALUES (?, ?, 'active', ?, ?)
		 ON CONFLICT(tenant_id, contact_id) DO NOTHING`,
		tenantID, contactID, now, now)
	if err != nil {
		return 0, fmt.Errorf("creating conversation: %w", err)
	}
	var id int64
	err = tx.GetContext(ctx, &id,
		`SELECT id FROM conversations WHERE tenant_id = ? AND contact_id = ?`, tenantID, contactID)
	if err != nil {
		return 0, fmt.Errorf("loading conversation: %w", err)
	}
	return id, nil
}

// AppendOutgoingMessage stores m and makes it the conversation's last message.
func (s *SQLiteStore) AppendOutgoingMessage(ctx context.Context, tenantID int64, m OutgoingMessage) (int64, error) {
	if m.Type == "" {
		m.Type = MessageText
	}
	if m.Status == "" {
		m.Status = MessageSent
	}
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	sentAt := m.SentAt.UnixMilli()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var contactID int64
	err = tx.GetContext(ctx, &contactID,
		`SELECT contact_id FROM conversations WHERE id = ? AND tenant_id = ?`, m.ConversationID, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, wa_message_id, direction, type, content, status, sent_at, created_at)
		 VALUES (?, ?, 'outgoing', ?, ?, ?, ?, ?)`,
		m.ConversationID, nullStr(m.WAMessageID), m.Type, m.Content, m.Status, sentAt, s.nowMS())
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_id = ?, last_message_at = ?, updated_at = ? WHERE id = ?`,
		msgID, sentAt, s.nowMS(), m.ConversationID); err != nil {
		return 0, fmt.Errorf("updating conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contacts SET last_message_at = ? WHERE id = ?`, sentAt, contactID); err != nil {
		return 0, fmt.Errorf("updating contact: %w", err)
	}
	return msgID, tx.Commit()
}

type approvalRow struct {
	ID              int64          `db:"id"`
	TenantID        int64          `db:"tenant_id"`
	PostID          int64          `db:"post_id"`
	ContactID       int64          `db:"contact_id"`
	ConversationID  int64          `db:"conversation_id"`
	Status          string         `db:"status"`
	ResponseMessage sql.NullString `db:"response_message"`
	RespondedAt     sql.NullInt64  `db:"responded_at"`
	ExpiresAt       int64          `db:"expires_at"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`
}

func (r approvalRow) request() ApprovalRequest {
	a := ApprovalRequest{
		ID:              r.ID,
		TenantID:        r.TenantID,
		PostID:          r.PostID,
		ContactID:       r.ContactID,
		ConversationID:  r.ConversationID,
		Status:          ApprovalStatus(r.Status),
		ResponseMessage: r.ResponseMessage.String,
		ExpiresAt:       time.UnixMilli(r.ExpiresAt),
		CreatedAt:       time.UnixMilli(r.CreatedAt),
	}
	if r.RespondedAt.Valid {
		t := time.UnixMilli(r.RespondedAt.Int64)
		a.RespondedAt = &t
	}
	return a
}

// CreateApprovalRequest opens a pending request for a post, addressed to
// contactID. ttl <= 0 uses DefaultApprovalTTL.
func (s *SQLiteStore) CreateApprovalRequest(ctx context.Context, tenantID, postID, contactID int64, ttl time.Duration) (ApprovalRequest, error) {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM contacts WHERE tenant_id = ? AND id = ?`, tenantID, contactID); err != nil {
		return ApprovalRequest{}, err
	}
	if exists == 0 {
		return ApprovalRequest{}, ErrNotFound
	}

	convID, err := s.ensureConversationTx(ctx, tx, tenantID, contactID)
	if err != nil {
		return ApprovalRequest{}, err
	}
	now := s.now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO approval_requests (tenant_id, post_id, contact_id, conversation_id, status, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)`,
		tenantID, postID, contactID, convID, now.Add(ttl).UnixMilli(), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("inserting approval request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ApprovalRequest{}, err
	}

	var r approvalRow
	if err := tx.GetContext(ctx, &r, `SELECT * FROM approval_requests WHERE id = ?`, id); err != nil {
		return ApprovalRequest{}, err
	}
	return r.request(), tx.Commit()
}

// ResolveApprovalRequest answers the newest pending, unexpired request for a
// post. ErrNotFound means there is nothing to answer.
func (s *SQLiteStore) ResolveApprovalRequest(ctx context.Context, tenantID, postID int64, approved bool, response string) (ApprovalRequest, error) {
	status := ApprovalRejected
	if approved {
		status = ApprovalApproved
	}
	now := s.nowMS()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var r approvalRow
	err = tx.GetContext(ctx, &r,
		`SELECT * FROM approval_requests
		 WHERE tenant_id = ? AND post_id = ? AND status = 'pending' AND expires_at > ?
		 ORDER BY id DESC LIMIT 1`,
		tenantID, postID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return ApprovalRequest{}, ErrNotFound
	}
	if err != nil {
		return ApprovalRequest{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE approval_requests SET status = ?, response_message = ?, responded_at = ?, updated_at = ? WHERE id = ?`,
		string(status), nullStr(response), now, now, r.ID); err != nil {
		return ApprovalRequest{}, fmt.Errorf("updating approval request: %w", err)
	}
	r.Status = string(status)
	r.ResponseMessage = sql.NullString{String: response, Valid: response != ""}
	r.RespondedAt = sql.NullInt64{Int64: now, Valid: true}
	r.UpdatedAt = now
	return r.request(), tx.Commit()
}

// CountPendingApprovals counts unanswered, unexpired requests.
func (s *SQLiteStore) CountPendingApprovals(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM approval_requests WHERE tenant_id = ? AND status = 'pending' AND expires_at > ?`,
		tenantID, s.nowMS())
	return n, err
}
