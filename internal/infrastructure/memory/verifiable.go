package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-emailaddress/internal/domain"
)

type VerifiableDataRepo struct {
	mu   sync.Mutex
	rows map[string]domain.VerifiableData
}

func NewVerifiableDataRepo() *VerifiableDataRepo {
	return &VerifiableDataRepo{rows: make(map[string]domain.VerifiableData)}
}

func (r *VerifiableDataRepo) Put(_ context.Context, d *domain.VerifiableData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.VerifiableDataID] = *d
	return nil
}

func (r *VerifiableDataRepo) Get(_ context.Context, verifiableDataID string) (*domain.VerifiableData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[verifiableDataID]
	if !ok {
		return nil, fmt.Errorf("verifiable data %s: %w", verifiableDataID, domain.ErrNotFound)
	}
	return &d, nil
}

func (r *VerifiableDataRepo) SetVerifiedUntil(_ context.Context, verifiableDataID string, until *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[verifiableDataID]
	if !ok {
		return nil
	}
	if until != nil {
		u := until.UTC()
		d.VerifiedUntil = &u
	} else {
		d.VerifiedUntil = nil
	}
	r.rows[verifiableDataID] = d
	return nil
}

func (r *VerifiableDataRepo) MarkInvalidated(_ context.Context, verifiableDataID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[verifiableDataID]
	if !ok {
		return nil
	}
	at = at.UTC()
	d.VerifiedUntil = nil
	d.InvalidatedAt = &at
	r.rows[verifiableDataID] = d
	return nil
}

type VerificationRequestRepo struct {
	mu   sync.Mutex
	rows map[string]domain.VerificationRequestRecord
}

func NewVerificationRequestRepo() *VerificationRequestRepo {
	return &VerificationRequestRepo{rows: make(map[string]domain.VerificationRequestRecord)}
}

func (r *VerificationRequestRepo) Put(_ context.Context, req *domain.VerificationRequestRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[req.VerificationRequestID] = *req
	return nil
}

func (r *VerificationRequestRepo) Get(_ context.Context, requestID string) (*domain.VerificationRequestRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.rows[requestID]
	if !ok {
		return nil, fmt.Errorf("verification request %s: %w", requestID, domain.ErrNotFound)
	}
	return &req, nil
}

type TokenRepo struct {
	mu   sync.Mutex
	rows map[string]domain.VerificationToken
}

func NewTokenRepo() *TokenRepo {
	return &TokenRepo{rows: make(map[string]domain.VerificationToken)}
}

func (r *TokenRepo) Put(_ context.Context, t *domain.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[t.TokenHash] = *t
	return nil
}

func (r *TokenRepo) Get(_ context.Context, tokenHash string) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tokenHash]
	if !ok {
		return nil, fmt.Errorf("token: %w", domain.ErrNotFound)
	}
	return &t, nil
}

func (r *TokenRepo) ListByVerifiableDataID(_ context.Context, verifiableDataID string) ([]domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []domain.VerificationToken
	for _, t := range r.rows {
		if t.VerifiableDataID == verifiableDataID {
			list = append(list, t)
		}
	}
	return list, nil
}

func (r *TokenRepo) MarkUsed(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.rows[tokenHash]; ok {
		at = at.UTC()
		t.UsedAt = &at
		r.rows[tokenHash] = t
	}
	return nil
}

func (r *TokenRepo) Revoke(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.rows[tokenHash]; ok {
		at = at.UTC()
		t.RevokedAt = &at
		r.rows[tokenHash] = t
	}
	return nil
}
