package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-emailaddress/internal/application/emailaddress"
)

// VerifyHandler resolves tokens presented from verification mails.
type VerifyHandler struct {
	svc emailaddress.Service
}

func NewVerifyHandler(svc emailaddress.Service) *VerifyHandler { return &VerifyHandler{svc: svc} }

func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.VerifyEmailAddress(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
