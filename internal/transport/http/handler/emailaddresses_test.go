package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-emailaddress/internal/domain"
	"github.com/go-emailaddress/internal/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockEmailSvc struct{ mock.Mock }

func (m *mockEmailSvc) SaveEmailAddress(ctx context.Context, addr string) (int64, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockEmailSvc) CreateVerificationRequest(ctx context.Context, id int64, p domain.VerificationParams) error {
	return m.Called(ctx, id, p).Error(0)
}
func (m *mockEmailSvc) IsEmailAddressVerified(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
func (m *mockEmailSvc) InvalidateEmailAddress(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockEmailSvc) VerifyEmailAddress(ctx context.Context, token string) (*domain.EmailVerificationResult, error) {
	args := m.Called(ctx, token)
	res, _ := args.Get(0).(*domain.EmailVerificationResult)
	return res, args.Error(1)
}

type mockTemplates struct{ mock.Mock }

func (m *mockTemplates) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// --- helpers ---

func newTestRouter(svc *mockEmailSvc, templates TemplateSource) http.Handler {
	h := NewEmailAddressHandler(svc, templates)
	vh := NewVerifyHandler(svc)
	r := chi.NewRouter()
	r.Post("/v1/email-addresses", h.Save)
	r.Post("/v1/email-addresses/{id}/verification-requests", h.CreateVerificationRequest)
	r.Get("/v1/email-addresses/{id}/verified", h.Verified)
	r.Delete("/v1/email-addresses/{id}", h.Invalidate)
	r.Get("/v1/verify/{token}", vh.Verify)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// --- Save ---

func TestSave_Created(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("SaveEmailAddress", mock.Anything, "test@yahoo.com").Return(int64(12), nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses", map[string]string{"email_address": "test@yahoo.com"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	var got IDEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, int64(12), got.ID)
}

func TestSave_MissingAddress(t *testing.T) {
	svc := &mockEmailSvc{}
	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "SaveEmailAddress", mock.Anything, mock.Anything)
}

func TestSave_InvalidAddress(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("SaveEmailAddress", mock.Anything, "test@").Return(int64(0), domain.ErrInvalidEmailAddress)

	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses", map[string]string{"email_address": "test@"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSave_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/email-addresses", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	newTestRouter(&mockEmailSvc{}, nil).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- CreateVerificationRequest ---

func TestCreateVerificationRequest_InlineTemplate(t *testing.T) {
	svc := &mockEmailSvc{}
	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.On("CreateVerificationRequest", mock.Anything, int64(3), mock.MatchedBy(func(p domain.VerificationParams) bool {
		return p.MessageTemplate != nil && *p.MessageTemplate == "$acceptToken" &&
			p.TokenValidityEndDate.Equal(end) &&
			p.VerificationLength == 60 &&
			p.LengthBase == domain.LengthBaseRequestCreation
	})).Return(nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses/3/verification-requests", map[string]interface{}{
		"message_template":         "$acceptToken",
		"token_validity_end_date":  end.Format(time.RFC3339),
		"verification_length":      60,
		"verification_length_base": "REQUEST_CREATION",
	})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	svc.AssertExpectations(t)
}

func TestCreateVerificationRequest_EmptyInlineTemplateAllowed(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("CreateVerificationRequest", mock.Anything, int64(3), mock.MatchedBy(func(p domain.VerificationParams) bool {
		return p.MessageTemplate != nil && *p.MessageTemplate == ""
	})).Return(nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses/3/verification-requests", map[string]interface{}{
		"message_template":         "",
		"token_validity_end_date":  "2030-01-01T00:00:00Z",
		"verification_length":      60,
		"verification_length_base": "VERIFICATION",
	})
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestCreateVerificationRequest_StoredTemplate(t *testing.T) {
	svc, tpl := &mockEmailSvc{}, &mockTemplates{}
	tpl.On("Get", mock.Anything, "welcome.html").Return("<p>$acceptToken</p>", nil)
	svc.On("CreateVerificationRequest", mock.Anything, int64(3), mock.MatchedBy(func(p domain.VerificationParams) bool {
		return *p.MessageTemplate == "<p>$acceptToken</p>"
	})).Return(nil)

	rr := do(t, newTestRouter(svc, tpl), http.MethodPost, "/v1/email-addresses/3/verification-requests", map[string]interface{}{
		"template_key":             "welcome.html",
		"token_validity_end_date":  "2030-01-01T00:00:00Z",
		"verification_length":      60,
		"verification_length_base": "VERIFICATION",
	})
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestCreateVerificationRequest_TemplateKeyWithoutStore(t *testing.T) {
	svc := &mockEmailSvc{}
	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses/3/verification-requests", map[string]interface{}{
		"template_key":             "welcome.html",
		"token_validity_end_date":  "2030-01-01T00:00:00Z",
		"verification_length":      60,
		"verification_length_base": "VERIFICATION",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "CreateVerificationRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVerificationRequest_MissingTemplate(t *testing.T) {
	svc := &mockEmailSvc{}
	rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses/3/verification-requests", map[string]interface{}{
		"token_validity_end_date":  "2030-01-01T00:00:00Z",
		"verification_length":      60,
		"verification_length_base": "VERIFICATION",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateVerificationRequest_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNonPositiveVerificationLength, http.StatusBadRequest},
		{domain.ErrNoSuchRecord, http.StatusNotFound},
		{lock.ErrTimeout, http.StatusServiceUnavailable},
		{errors.New("smtp down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &mockEmailSvc{}
		svc.On("CreateVerificationRequest", mock.Anything, int64(3), mock.Anything).Return(tc.err)
		rr := do(t, newTestRouter(svc, nil), http.MethodPost, "/v1/email-addresses/3/verification-requests", map[string]interface{}{
			"message_template":         "x",
			"token_validity_end_date":  "2030-01-01T00:00:00Z",
			"verification_length":      60,
			"verification_length_base": "VERIFICATION",
		})
		assert.Equal(t, tc.want, rr.Code, tc.err.Error())
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("IsEmailAddressVerified", mock.Anything, int64(1)).Return(false, errors.New("dynamo: secret detail"))

	rr := do(t, newTestRouter(svc, nil), http.MethodGet, "/v1/email-addresses/1/verified", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret detail")
}

// --- Verified / Invalidate ---

func TestVerified(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("IsEmailAddressVerified", mock.Anything, int64(5)).Return(true, nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodGet, "/v1/email-addresses/5/verified", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	var got VerifiedEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, VerifiedEnvelope{ID: 5, Verified: true}, got)
}

func TestVerified_BadID(t *testing.T) {
	rr := do(t, newTestRouter(&mockEmailSvc{}, nil), http.MethodGet, "/v1/email-addresses/abc/verified", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvalidate_NoSuchRecord(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("InvalidateEmailAddress", mock.Anything, int64(-1)).Return(domain.ErrNoSuchRecord)

	rr := do(t, newTestRouter(svc, nil), http.MethodDelete, "/v1/email-addresses/-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInvalidate_OK(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("InvalidateEmailAddress", mock.Anything, int64(2)).Return(nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodDelete, "/v1/email-addresses/2", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// --- Verify ---

func TestVerify(t *testing.T) {
	svc := &mockEmailSvc{}
	id := int64(8)
	svc.On("VerifyEmailAddress", mock.Anything, "abc-123").
		Return(&domain.EmailVerificationResult{EmailAddressID: &id, Result: domain.ConfirmationSuccess}, nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodGet, "/v1/verify/abc-123", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"email_address_id":8,"result":"SUCCESS"}`, rr.Body.String())
}

func TestVerify_Failed(t *testing.T) {
	svc := &mockEmailSvc{}
	svc.On("VerifyEmailAddress", mock.Anything, "nope").
		Return(&domain.EmailVerificationResult{Result: domain.ConfirmationFailed}, nil)

	rr := do(t, newTestRouter(svc, nil), http.MethodGet, "/v1/verify/nope", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"email_address_id":null,"result":"FAILED"}`, rr.Body.String())
}

// --- Health ---

func TestHealth(t *testing.T) {
	failing := Check{Name: "dynamo", Fn: func(context.Context) error { return errors.New("down") }}
	ok := Check{Name: "redis", Fn: func(context.Context) error { return nil }}

	route := func(h *HealthHandler) http.Handler {
		r := chi.NewRouter()
		r.Get("/v1/health-check/{action}", h.Ping)
		return r
	}

	assert.Equal(t, http.StatusOK, do(t, route(NewHealthHandler()), http.MethodGet, "/v1/health-check/ping", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, route(NewHealthHandler(ok)), http.MethodGet, "/v1/health-check/ready", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, route(NewHealthHandler(ok, failing)), http.MethodGet, "/v1/health-check/ready", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, route(NewHealthHandler()), http.MethodGet, "/v1/health-check/other", nil).Code)
}
