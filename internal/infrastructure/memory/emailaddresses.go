// Package memory holds process-local stores with the same behaviour as the
// DynamoDB repositories. It backs STORE_BACKEND=memory and the flow tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-emailaddress/internal/domain"
)

type EmailAddressRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.EmailAddress
}

func NewEmailAddressRepo() *EmailAddressRepo {
	return &EmailAddressRepo{rows: make(map[int64]domain.EmailAddress)}
}

func (r *EmailAddressRepo) Insert(_ context.Context, e *domain.EmailAddress) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.EmailAddressID = r.nextID
	r.rows[e.EmailAddressID] = clone(*e)
	return e.EmailAddressID, nil
}

func (r *EmailAddressRepo) Get(_ context.Context, emailAddressID int64) (*domain.EmailAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[emailAddressID]
	if !ok {
		return nil, fmt.Errorf("email address %d: %w", emailAddressID, domain.ErrNoSuchRecord)
	}
	out := clone(e)
	return &out, nil
}

func (r *EmailAddressRepo) ListByVerifiableDataID(_ context.Context, verifiableDataID string) ([]domain.EmailAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []domain.EmailAddress
	for _, e := range r.rows {
		if e.VerifiableDataID != nil && *e.VerifiableDataID == verifiableDataID {
			list = append(list, clone(e))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].EmailAddressID < list[j].EmailAddressID })
	return list, nil
}

func (r *EmailAddressRepo) AttachVerifiableData(_ context.Context, emailAddressID int64, verifiableDataID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[emailAddressID]
	if !ok {
		return fmt.Errorf("email address %d: %w", emailAddressID, domain.ErrNoSuchRecord)
	}
	if e.HasVerifiableData() {
		return fmt.Errorf("email address %d: %w", emailAddressID, domain.ErrVerifiableDataAttached)
	}
	e.VerifiableDataID = &verifiableDataID
	e.UpdatedAt = time.Now().UTC()
	r.rows[emailAddressID] = e
	return nil
}

func (r *EmailAddressRepo) Delete(_ context.Context, emailAddressID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, emailAddressID)
	return nil
}

func clone(e domain.EmailAddress) domain.EmailAddress {
	if e.VerifiableDataID != nil {
		v := *e.VerifiableDataID
		e.VerifiableDataID = &v
	}
	return e
}
