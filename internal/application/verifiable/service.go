// Package verifiable is the verification engine: it owns verification
// subjects, issues accept/reject token pairs, and resolves presented tokens
// into a verified window.
package verifiable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-emailaddress/internal/domain"
	"github.com/go-emailaddress/internal/pkg/id"
	"github.com/go-emailaddress/internal/pkg/lock"
	pkgtoken "github.com/go-emailaddress/internal/pkg/token"
)

type subjectStore interface {
	Put(ctx context.Context, d *domain.VerifiableData) error
	Get(ctx context.Context, verifiableDataID string) (*domain.VerifiableData, error)
	SetVerifiedUntil(ctx context.Context, verifiableDataID string, until *time.Time) error
	MarkInvalidated(ctx context.Context, verifiableDataID string, at time.Time) error
}

type requestStore interface {
	Put(ctx context.Context, r *domain.VerificationRequestRecord) error
	Get(ctx context.Context, requestID string) (*domain.VerificationRequestRecord, error)
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.VerificationToken) error
	Get(ctx context.Context, tokenHash string) (*domain.VerificationToken, error)
	ListByVerifiableDataID(ctx context.Context, verifiableDataID string) ([]domain.VerificationToken, error)
	MarkUsed(ctx context.Context, tokenHash string, at time.Time) error
	Revoke(ctx context.Context, tokenHash string, at time.Time) error
}

// Service is the engine contract consumed by the email address service.
// Operations that can legitimately produce nothing return a nil result and a
// nil error.
type Service interface {
	CreateVerifiableData(ctx context.Context, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerifiableDataCreation, error)
	CreateVerificationRequest(ctx context.Context, verifiableDataID string, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerificationRequest, error)
	// InvalidateData expects the caller to hold lock.SubjectKey(verifiableDataID).
	InvalidateData(ctx context.Context, verifiableDataID string) error
	VerifyData(ctx context.Context, token string) (*domain.VerificationResult, error)
	VerifiedUntil(ctx context.Context, verifiableDataID string) (*time.Time, error)
}

// ServiceDeps holds all dependencies for the verification engine.
type ServiceDeps struct {
	Subjects subjectStore
	Requests requestStore
	Tokens   tokenStore
	Locker   lock.Locker
	// Now defaults to time.Now.
	Now func() time.Time
}

type service struct {
	subjects subjectStore
	requests requestStore
	tokens   tokenStore
	locker   lock.Locker
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		subjects: deps.Subjects,
		requests: deps.Requests,
		tokens:   deps.Tokens,
		locker:   deps.Locker,
		now:      func() time.Time { return now().UTC() },
	}
}

func checkParams(length int64, base domain.VerificationLengthBase) error {
	if length <= 0 {
		return domain.ErrNonPositiveVerificationLength
	}
	if !base.Valid() {
		return fmt.Errorf("verification length base %q: %w", base, domain.ErrInvalidArgument)
	}
	return nil
}

func (s *service) CreateVerifiableData(ctx context.Context, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerifiableDataCreation, error) {
	if err := checkParams(length, base); err != nil {
		return nil, err
	}
	now := s.now()
	if !validUntil.After(now) {
		slog.Debug("verifiable data not created: validity already over", "valid_until", validUntil)
		return nil, nil
	}

	subject := &domain.VerifiableData{VerifiableDataID: id.New(), CreatedAt: now}
	if err := s.subjects.Put(ctx, subject); err != nil {
		return nil, fmt.Errorf("store verifiable data: %w", err)
	}
	req, err := s.issue(ctx, subject.VerifiableDataID, validUntil, length, base, now)
	if err != nil {
		return nil, err
	}
	return &domain.VerifiableDataCreation{VerifiableDataID: subject.VerifiableDataID, Request: req}, nil
}

func (s *service) CreateVerificationRequest(ctx context.Context, verifiableDataID string, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerificationRequest, error) {
	if err := checkParams(length, base); err != nil {
		return nil, err
	}
	now := s.now()
	if !validUntil.After(now) {
		return nil, nil
	}
	subject, err := s.subjects.Get(ctx, verifiableDataID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load verifiable data: %w", err)
	}
	if subject.InvalidatedAt != nil {
		return nil, nil
	}
	return s.issue(ctx, verifiableDataID, validUntil, length, base, now)
}

// issue stores a request record and its two hashed tokens. The record keeps
// both hashes so either token can find its sibling by key.
func (s *service) issue(ctx context.Context, verifiableDataID string, validUntil time.Time, length int64, base domain.VerificationLengthBase, now time.Time) (*domain.VerificationRequest, error) {
	out := &domain.VerificationRequest{
		VerificationRequestID: id.New(),
		AcceptToken:           pkgtoken.New(),
		RejectToken:           pkgtoken.New(),
	}
	rec := &domain.VerificationRequestRecord{
		VerificationRequestID: out.VerificationRequestID,
		VerifiableDataID:      verifiableDataID,
		TokenValidityEndDate:  validUntil.UTC(),
		VerificationLength:    length,
		LengthBase:            base,
		CreatedAt:             now,
		AcceptTokenHash:       pkgtoken.Hash(out.AcceptToken),
		RejectTokenHash:       pkgtoken.Hash(out.RejectToken),
	}
	if err := s.requests.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store verification request: %w", err)
	}

	for kind, hash := range map[domain.TokenKind]string{
		domain.TokenKindAccept: rec.AcceptTokenHash,
		domain.TokenKindReject: rec.RejectTokenHash,
	} {
		t := &domain.VerificationToken{
			TokenHash:             hash,
			VerificationRequestID: rec.VerificationRequestID,
			VerifiableDataID:      verifiableDataID,
			Kind:                  kind,
			ExpiresAt:             rec.TokenValidityEndDate,
		}
		if err := s.tokens.Put(ctx, t); err != nil {
			return nil, fmt.Errorf("store %s token: %w", kind, err)
		}
	}
	return out, nil
}

func (s *service) InvalidateData(ctx context.Context, verifiableDataID string) error {
	if _, err := s.subjects.Get(ctx, verifiableDataID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load verifiable data: %w", err)
	}
	now := s.now()
	tokens, err := s.tokens.ListByVerifiableDataID(ctx, verifiableDataID)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	for _, t := range tokens {
		if t.UsedAt != nil || t.RevokedAt != nil {
			continue
		}
		if err := s.tokens.Revoke(ctx, t.TokenHash, now); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	if err := s.subjects.MarkInvalidated(ctx, verifiableDataID, now); err != nil {
		return fmt.Errorf("invalidate verifiable data: %w", err)
	}
	slog.Info("verifiable data invalidated", "verifiable_data_id", verifiableDataID, "revoked_tokens", len(tokens))
	return nil
}

func (s *service) VerifyData(ctx context.Context, token string) (*domain.VerificationResult, error) {
	hash := pkgtoken.Hash(token)
	t, err := s.usableToken(ctx, hash)
	if err != nil || t == nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.SubjectKey(t.VerifiableDataID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release subject lock", "verifiable_data_id", t.VerifiableDataID, "err", err)
		}
	}()

	// A concurrent caller may have consumed the pair while we waited.
	t, err = s.usableToken(ctx, hash)
	if err != nil || t == nil {
		return nil, err
	}

	now := s.now()
	if err := s.tokens.MarkUsed(ctx, t.TokenHash, now); err != nil {
		return nil, fmt.Errorf("mark token used: %w", err)
	}
	req, err := s.requests.Get(ctx, t.VerificationRequestID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req = nil
	case err != nil:
		return nil, fmt.Errorf("load verification request: %w", err)
	default:
		if err := s.revokeSibling(ctx, req, t.TokenHash, now); err != nil {
			return nil, err
		}
	}

	result := &domain.VerificationResult{VerifiableDataID: t.VerifiableDataID, Outcome: domain.TokenFailed}
	subject, err := s.subjects.Get(ctx, t.VerifiableDataID)
	if errors.Is(err, domain.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load verifiable data: %w", err)
	}
	if subject.InvalidatedAt != nil {
		return result, nil
	}

	if t.Kind == domain.TokenKindReject {
		if err := s.subjects.SetVerifiedUntil(ctx, subject.VerifiableDataID, nil); err != nil {
			return nil, fmt.Errorf("clear verified window: %w", err)
		}
		result.Outcome = domain.TokenRejected
		return result, nil
	}

	if req == nil {
		return result, nil
	}
	until := verifiedUntil(req, now)
	if err := s.subjects.SetVerifiedUntil(ctx, subject.VerifiableDataID, &until); err != nil {
		return nil, fmt.Errorf("set verified window: %w", err)
	}
	result.Outcome = domain.TokenVerified
	return result, nil
}

func (s *service) usableToken(ctx context.Context, hash string) (*domain.VerificationToken, error) {
	t, err := s.tokens.Get(ctx, hash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if !t.Usable(s.now()) {
		return nil, nil
	}
	return t, nil
}

// revokeSibling revokes the other token of req's pair. Lookups go by primary
// key, so a token issued moments earlier is always found.
func (s *service) revokeSibling(ctx context.Context, req *domain.VerificationRequestRecord, usedHash string, now time.Time) error {
	sibling := req.SiblingOf(usedHash)
	if sibling == "" {
		return nil
	}
	other, err := s.tokens.Get(ctx, sibling)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load sibling token: %w", err)
	}
	if other.UsedAt != nil || other.RevokedAt != nil {
		return nil
	}
	if err := s.tokens.Revoke(ctx, sibling, now); err != nil {
		return fmt.Errorf("revoke sibling token: %w", err)
	}
	return nil
}

func verifiedUntil(req *domain.VerificationRequestRecord, now time.Time) time.Time {
	length := time.Duration(req.VerificationLength) * time.Second
	if req.LengthBase == domain.LengthBaseRequestCreation {
		return req.CreatedAt.Add(length)
	}
	return now.Add(length)
}

func (s *service) VerifiedUntil(ctx context.Context, verifiableDataID string) (*time.Time, error) {
	subject, err := s.subjects.Get(ctx, verifiableDataID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load verifiable data: %w", err)
	}
	if subject.InvalidatedAt != nil {
		return nil, nil
	}
	return subject.VerifiedUntil, nil
}
