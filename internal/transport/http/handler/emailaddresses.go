package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-emailaddress/internal/application/emailaddress"
	"github.com/go-emailaddress/internal/domain"
	"github.com/go-emailaddress/internal/pkg/validate"
)

type TemplateSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// EmailAddressHandler handles the admin email address endpoints.
type EmailAddressHandler struct {
	svc       emailaddress.Service
	templates TemplateSource
}

// NewEmailAddressHandler builds the handler. templates may be nil, in which
// case requests naming a template_key are refused.
func NewEmailAddressHandler(svc emailaddress.Service, templates TemplateSource) *EmailAddressHandler {
	return &EmailAddressHandler{svc: svc, templates: templates}
}

func (h *EmailAddressHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req domain.SaveEmailAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id, err := h.svc.SaveEmailAddress(r.Context(), req.EmailAddress)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDEnvelope{ID: id})
}

func (h *EmailAddressHandler) CreateVerificationRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req domain.CreateVerificationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	tmpl, err := h.template(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	err = h.svc.CreateVerificationRequest(r.Context(), id, domain.VerificationParams{
		MessageTemplate:      tmpl,
		TokenValidityEndDate: req.TokenValidityEndDate,
		VerificationLength:   req.VerificationLength,
		LengthBase:           domain.VerificationLengthBase(req.VerificationLengthBase),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "verification request accepted"})
}

// template returns the inline template, or the stored one named by template_key.
func (h *EmailAddressHandler) template(ctx context.Context, req domain.CreateVerificationRequestBody) (*string, error) {
	if req.MessageTemplate != nil {
		return req.MessageTemplate, nil
	}
	if h.templates == nil {
		return nil, fmt.Errorf("template keys are not enabled: %w", domain.ErrBadRequest)
	}
	body, err := h.templates.Get(ctx, req.TemplateKey)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", req.TemplateKey, err)
	}
	return &body, nil
}

func (h *EmailAddressHandler) Verified(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	verified, err := h.svc.IsEmailAddressVerified(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifiedEnvelope{ID: id, Verified: verified})
}

func (h *EmailAddressHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.InvalidateEmailAddress(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email address invalidated"})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address id")
		return 0, false
	}
	return id, true
}
