// Package emailaddress manages email address records and their verification
// through the verification engine.
package emailaddress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-emailaddress/internal/domain"
	"github.com/go-emailaddress/internal/metrics"
	"github.com/go-emailaddress/internal/pkg/lock"
)

const verificationEvent = "email_address.verification"

type emailAddressStore interface {
	Insert(ctx context.Context, e *domain.EmailAddress) (int64, error)
	Get(ctx context.Context, emailAddressID int64) (*domain.EmailAddress, error)
	ListByVerifiableDataID(ctx context.Context, verifiableDataID string) ([]domain.EmailAddress, error)
	AttachVerifiableData(ctx context.Context, emailAddressID int64, verifiableDataID string) error
	Delete(ctx context.Context, emailAddressID int64) error
}

type verifier interface {
	CreateVerifiableData(ctx context.Context, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerifiableDataCreation, error)
	CreateVerificationRequest(ctx context.Context, verifiableDataID string, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerificationRequest, error)
	InvalidateData(ctx context.Context, verifiableDataID string) error
	VerifyData(ctx context.Context, token string) (*domain.VerificationResult, error)
	VerifiedUntil(ctx context.Context, verifiableDataID string) (*time.Time, error)
}

type mailer interface {
	Send(ctx context.Context, msg *domain.Message) error
}

type eventPublisher interface {
	PublishVerification(ctx context.Context, ev domain.VerificationEvent) error
}

type Service interface {
	SaveEmailAddress(ctx context.Context, emailAddress string) (int64, error)
	CreateVerificationRequest(ctx context.Context, emailAddressID int64, params domain.VerificationParams) error
	IsEmailAddressVerified(ctx context.Context, emailAddressID int64) (bool, error)
	InvalidateEmailAddress(ctx context.Context, emailAddressID int64) error
	VerifyEmailAddress(ctx context.Context, token string) (*domain.EmailVerificationResult, error)
}

// ServiceDeps holds all dependencies for the email address service.
// Events is optional.
type ServiceDeps struct {
	Repo        emailAddressStore
	Verifier    verifier
	Mailer      mailer
	Locker      lock.Locker
	Events      eventPublisher
	MailFrom    string
	MailSubject string
	Now         func() time.Time
}

type service struct {
	repo        emailAddressStore
	verifier    verifier
	mailer      mailer
	locker      lock.Locker
	events      eventPublisher
	mailFrom    string
	mailSubject string
	now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	subject := deps.MailSubject
	if subject == "" {
		subject = "Verification email"
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        deps.Repo,
		verifier:    deps.Verifier,
		mailer:      deps.Mailer,
		locker:      deps.Locker,
		events:      deps.Events,
		mailFrom:    deps.MailFrom,
		mailSubject: subject,
		now:         now,
	}
}

func (s *service) SaveEmailAddress(ctx context.Context, emailAddress string) (int64, error) {
	if emailAddress == "" {
		return 0, fmt.Errorf("email address is required: %w", domain.ErrInvalidArgument)
	}
	if !ValidAddress(emailAddress) {
		return 0, fmt.Errorf("%q: %w", emailAddress, domain.ErrInvalidEmailAddress)
	}
	now := s.now().UTC()
	e := &domain.EmailAddress{EmailAddress: emailAddress, CreatedAt: now, UpdatedAt: now}
	id, err := s.repo.Insert(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save email address: %w", err)
	}
	slog.Info("email address saved", "email_address_id", id)
	return id, nil
}

func (s *service) CreateVerificationRequest(ctx context.Context, emailAddressID int64, params domain.VerificationParams) error {
	switch {
	case params.MessageTemplate == nil:
		return fmt.Errorf("message template is required: %w", domain.ErrInvalidArgument)
	case params.TokenValidityEndDate.IsZero():
		return fmt.Errorf("token validity end date is required: %w", domain.ErrInvalidArgument)
	case !params.LengthBase.Valid():
		return fmt.Errorf("verification length base is required: %w", domain.ErrInvalidArgument)
	case params.VerificationLength <= 0:
		return domain.ErrNonPositiveVerificationLength
	}

	e, err := s.repo.Get(ctx, emailAddressID)
	if err != nil {
		return err
	}

	var req *domain.VerificationRequest
	if e.HasVerifiableData() {
		req, err = s.reuseSubject(ctx, *e.VerifiableDataID, params)
	} else {
		req, err = s.firstRequest(ctx, e, params)
	}
	if err != nil {
		return err
	}

	if req == nil {
		slog.Warn("verification engine issued no request; no mail sent",
			"email_address_id", e.EmailAddressID, "token_validity_end_date", params.TokenValidityEndDate)
		metrics.VerificationMails.WithLabelValues("skipped").Inc()
		return nil
	}

	msg := &domain.Message{
		From:    s.mailFrom,
		To:      e.EmailAddress,
		Subject: s.mailSubject,
		Parts: []domain.MessagePart{{
			ContentType: "text/html",
			Body:        render(*params.MessageTemplate, req.AcceptToken, req.RejectToken),
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.VerificationMails.WithLabelValues("failed").Inc()
		return fmt.Errorf("send verification mail: %w", err)
	}
	metrics.VerificationMails.WithLabelValues("sent").Inc()
	slog.Info("verification mail sent", "email_address_id", e.EmailAddressID, "verification_request_id", req.VerificationRequestID)
	return nil
}

func (s *service) reuseSubject(ctx context.Context, verifiableDataID string, params domain.VerificationParams) (*domain.VerificationRequest, error) {
	req, err := s.verifier.CreateVerificationRequest(ctx, verifiableDataID,
		params.TokenValidityEndDate, params.VerificationLength, params.LengthBase)
	if err != nil {
		return nil, fmt.Errorf("create verification request: %w", err)
	}
	return req, nil
}

// firstRequest creates a subject for e and attaches it. When a concurrent
// caller attached its own subject first, the one created here is invalidated
// and the request is issued against the attached subject instead.
func (s *service) firstRequest(ctx context.Context, e *domain.EmailAddress, params domain.VerificationParams) (*domain.VerificationRequest, error) {
	created, err := s.verifier.CreateVerifiableData(ctx,
		params.TokenValidityEndDate, params.VerificationLength, params.LengthBase)
	if err != nil {
		return nil, fmt.Errorf("create verifiable data: %w", err)
	}
	if created == nil {
		return nil, nil
	}
	err = s.repo.AttachVerifiableData(ctx, e.EmailAddressID, created.VerifiableDataID)
	if err == nil {
		return created.Request, nil
	}
	if !errors.Is(err, domain.ErrVerifiableDataAttached) {
		return nil, fmt.Errorf("attach verifiable data: %w", err)
	}

	current, err := s.repo.Get(ctx, e.EmailAddressID)
	if err != nil {
		return nil, err
	}
	slog.Info("verifiable data attached concurrently; discarding duplicate",
		"email_address_id", e.EmailAddressID, "discarded", created.VerifiableDataID, "attached", *current.VerifiableDataID)
	if err := s.invalidate(ctx, created.VerifiableDataID); err != nil {
		return nil, err
	}
	return s.reuseSubject(ctx, *current.VerifiableDataID, params)
}

func (s *service) IsEmailAddressVerified(ctx context.Context, emailAddressID int64) (bool, error) {
	e, err := s.repo.Get(ctx, emailAddressID)
	if err != nil {
		return false, err
	}
	if !e.HasVerifiableData() {
		return false, nil
	}
	until, err := s.verifier.VerifiedUntil(ctx, *e.VerifiableDataID)
	if err != nil {
		return false, fmt.Errorf("read verified window: %w", err)
	}
	return until != nil && until.After(s.now()), nil
}

func (s *service) InvalidateEmailAddress(ctx context.Context, emailAddressID int64) error {
	e, err := s.repo.Get(ctx, emailAddressID)
	if err != nil {
		return err
	}
	if e.HasVerifiableData() {
		if err := s.invalidate(ctx, *e.VerifiableDataID); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, e.EmailAddressID); err != nil {
		return fmt.Errorf("delete email address: %w", err)
	}
	slog.Info("email address invalidated", "email_address_id", e.EmailAddressID)
	return nil
}

func (s *service) invalidate(ctx context.Context, verifiableDataID string) error {
	release, err := s.locker.Acquire(ctx, lock.SubjectKey(verifiableDataID))
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release subject lock", "verifiable_data_id", verifiableDataID, "err", err)
		}
	}()
	if err := s.verifier.InvalidateData(ctx, verifiableDataID); err != nil {
		return fmt.Errorf("invalidate verifiable data: %w", err)
	}
	return nil
}

func (s *service) VerifyEmailAddress(ctx context.Context, token string) (*domain.EmailVerificationResult, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required: %w", domain.ErrInvalidArgument)
	}
	res, err := s.verifier.VerifyData(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	out := &domain.EmailVerificationResult{Result: domain.ConfirmationFailed}
	if res == nil {
		s.report(ctx, out)
		return out, nil
	}

	records, err := s.repo.ListByVerifiableDataID(ctx, res.VerifiableDataID)
	if err != nil {
		return nil, fmt.Errorf("find email address by verifiable data: %w", err)
	}
	if len(records) != 1 {
		if len(records) > 1 {
			slog.Error("verifiable data linked to several email addresses", "verifiable_data_id", res.VerifiableDataID, "count", len(records))
		}
		s.report(ctx, out)
		return out, nil
	}

	id := records[0].EmailAddressID
	out.EmailAddressID = &id
	switch res.Outcome {
	case domain.TokenVerified:
		out.Result = domain.ConfirmationSuccess
	case domain.TokenRejected:
		out.Result = domain.ConfirmationRejected
	}
	s.report(ctx, out)
	return out, nil
}

// report records a resolved token. Publishing is best effort.
func (s *service) report(ctx context.Context, res *domain.EmailVerificationResult) {
	metrics.Verifications.WithLabelValues(string(res.Result)).Inc()
	if s.events == nil {
		return
	}
	ev := domain.VerificationEvent{
		Event:          verificationEvent,
		EmailAddressID: res.EmailAddressID,
		Result:         res.Result,
		OccurredAt:     s.now().UTC().Format(time.RFC3339),
	}
	if err := s.events.PublishVerification(ctx, ev); err != nil {
		slog.Warn("failed to publish verification event", "result", res.Result, "err", err)
	}
}
