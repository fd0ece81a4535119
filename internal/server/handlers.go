package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

func requestID(r *http.Request) string { return middleware.GetReqID(r.Context()) }

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type dispatchRequest struct {
	TenantID    int64          `json:"tenant_id" validate:"required,gt=0"`
	Type        string         `json:"type" validate:"required,max=64"`
	Title       string         `json:"title" validate:"required,max=200"`
	Message     string         `json:"message" validate:"required,max=3500"`
	PostID      int64          `json:"post_id" validate:"gte=0"`
	RecipientID int64          `json:"recipient_id" validate:"gte=0"`
	Metadata    map[string]any `json:"metadata"`
}

// dispatch always answers 200 with the Result; delivery failures are part of
// the body, not the status.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.deps.Dispatcher.Dispatch(r.Context(), notify.Payload{
		TenantID:    req.TenantID,
		Type:        notify.Type(strings.TrimSpace(req.Type)),
		Title:       req.Title,
		Message:     req.Message,
		PostID:      req.PostID,
		RecipientID: req.RecipientID,
		Metadata:    req.Metadata,
	})
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.pathID(w, r, "tenantID")
	if !ok {
		return
	}
	st, err := s.deps.Store.GetNotificationSettings(r.Context(), tenantID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if st == nil {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "no notification settings for tenant")
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

type settingsRequest struct {
	IsActive               *bool `json:"is_active"`
	NotifyOnPostPublished  *bool `json:"notify_on_post_published"`
	NotifyOnPostFailed     *bool `json:"notify_on_post_failed"`
	NotifyOnApprovalNeeded *bool `json:"notify_on_approval_needed"`
	NotifyOnNewComment     *bool `json:"notify_on_new_comment"`

	PhoneNumberID      *string `json:"phone_number_id" validate:"omitempty,numeric,max=32"`
	AccessToken        *string `json:"access_token" validate:"omitempty,max=512"`
	BusinessAccountID  *string `json:"business_account_id" validate:"omitempty,numeric,max=32"`
	WebhookVerifyToken *string `json:"webhook_verify_token" validate:"omitempty,max=128"`
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.pathID(w, r, "tenantID")
	if !ok {
		return
	}
	var req settingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.deps.Store.UpsertNotificationSettings(r.Context(), storage.SettingsUpdate{
		TenantID:               tenantID,
		IsActive:               req.IsActive,
		NotifyOnPostPublished:  req.NotifyOnPostPublished,
		NotifyOnPostFailed:     req.NotifyOnPostFailed,
		NotifyOnApprovalNeeded: req.NotifyOnApprovalNeeded,
		NotifyOnNewComment:     req.NotifyOnNewComment,
		PhoneNumberID:          req.PhoneNumberID,
		AccessToken:            req.AccessToken,
		BusinessAccountID:      req.BusinessAccountID,
		WebhookVerifyToken:     req.WebhookVerifyToken,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(r.Context(), tenantID); err != nil {
			s.log.Warn("settings cache invalidation failed", logx.Int64("tenant_id", tenantID), logx.Err(err))
		}
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.pathID(w, r, "tenantID")
	if !ok {
		return
	}
	list, err := s.deps.Store.ListContacts(r.Context(), tenantID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"contacts": list})
}

type contactRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,numeric,min=8,max=20"`
	Name        string `json:"name" validate:"max=120"`
	Email       string `json:"email" validate:"omitempty,email"`
	Active      *bool  `json:"active"`
}

func (s *Server) createContact(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.pathID(w, r, "tenantID")
	if !ok {
		return
	}
	var req contactRequest
	if !s.decode(w, r, &req) {
		return
	}
	active := req.Active == nil || *req.Active
	c, err := s.deps.Store.CreateContact(r.Context(), storage.Contact{
		TenantID:    tenantID,
		PhoneNumber: req.PhoneNumber,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Active:      active,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, c)
}

type contactPatch struct {
	Active *bool `json:"active" validate:"required"`
}

func (s *Server) patchContact(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.pathID(w, r, "tenantID")
	if !ok {
		return
	}
	contactID, ok := s.pathID(w, r, "contactID")
	if !ok {
		return
	}
	var req contactPatch
	if !s.decode(w, r, &req) {
		return
	}
	err := s.deps.Store.SetContactActive(r.Context(), tenantID, contactID, *req.Active)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "contact not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	c, err := s.deps.Store.GetContact(r.Context(), tenantID, contactID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}
