package auth

import (
	"context"
	"errors"
	"strings"

	"passage.dev/internal/ids"
)

// Identity is a verified assertion from the external identity provider. The
// provider's signature check already happened in the caller; this layer
// trusts the structure but still enforces EmailVerified.
type Identity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Reconcile resolves a federated identity to exactly one local account.
//
// The order is what makes the algorithm idempotent and cheap: the external-id
// lookup comes first so returning users hit an indexed point read and cause
// no writes; only then does the email fallback run, and only then is a new
// account created.
func (s *Service) Reconcile(ctx context.Context, identity Identity) (*Account, error) {
	if !identity.EmailVerified {
		return nil, ErrUnverifiedEmail
	}
	if strings.TrimSpace(identity.SubjectID) == "" || strings.TrimSpace(identity.Email) == "" {
		return nil, ErrInvalidInput
	}

	accounts := s.store.Accounts(ctx)

	account, err := accounts.FindByGoogleID(ctx, identity.SubjectID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	email := NormalizeEmail(identity.Email)
	account, err = accounts.FindByEmail(ctx, email)
	if err == nil {
		// Link: attach the external id (and picture, when provided) to the
		// existing account. Role, email and password hash stay untouched.
		account.GoogleID = identity.SubjectID
		if identity.Picture != "" {
			account.Picture = identity.Picture
		}
		if err := accounts.Update(ctx, account); err != nil {
			return nil, err
		}
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account = &Account{
		ID:       ids.New(),
		Name:     strings.TrimSpace(identity.Name),
		Email:    email,
		Role:     DefaultRole,
		GoogleID: identity.SubjectID,
		Picture:  identity.Picture,
		Origin:   OriginFederated,
	}
	if account.Name == "" {
		account.Name = email
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	// A duplicate google_id race surfaces here as ErrConflict from the
	// store's uniqueness guarantees.
	if err := accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}
