package http

import (
	"context"
	"time"

	"github.com/go-emailaddress/internal/domain"
)

// EmailAddressRepository is the minimal interface the router requires from an email address store.
type EmailAddressRepository interface {
	Insert(ctx context.Context, e *domain.EmailAddress) (int64, error)
	Get(ctx context.Context, emailAddressID int64) (*domain.EmailAddress, error)
	// ListByVerifiableDataID queries the `verifiable_data_id-index` GSI.
	ListByVerifiableDataID(ctx context.Context, verifiableDataID string) ([]domain.EmailAddress, error)
	AttachVerifiableData(ctx context.Context, emailAddressID int64, verifiableDataID string) error
	Delete(ctx context.Context, emailAddressID int64) error
}

// VerifiableDataRepository is the minimal interface the router requires from a verification subject store.
type VerifiableDataRepository interface {
	Put(ctx context.Context, d *domain.VerifiableData) error
	Get(ctx context.Context, verifiableDataID string) (*domain.VerifiableData, error)
	SetVerifiedUntil(ctx context.Context, verifiableDataID string, until *time.Time) error
	MarkInvalidated(ctx context.Context, verifiableDataID string, at time.Time) error
}

// VerificationRequestRepository is the minimal interface the router requires from a request store.
type VerificationRequestRepository interface {
	Put(ctx context.Context, r *domain.VerificationRequestRecord) error
	Get(ctx context.Context, requestID string) (*domain.VerificationRequestRecord, error)
}

// TokenRepository is the minimal interface the router requires from a token store.
type TokenRepository interface {
	Put(ctx context.Context, t *domain.VerificationToken) error
	Get(ctx context.Context, tokenHash string) (*domain.VerificationToken, error)
	ListByVerifiableDataID(ctx context.Context, verifiableDataID string) ([]domain.VerificationToken, error)
	MarkUsed(ctx context.Context, tokenHash string, at time.Time) error
	Revoke(ctx context.Context, tokenHash string, at time.Time) error
}

// TemplateStore resolves stored mail templates by key.
type TemplateStore interface {
	Get(ctx context.Context, key string) (string, error)
}
