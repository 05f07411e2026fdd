package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// AccountStore manages account records. Implementations must enforce email
// uniqueness and sparse uniqueness of google_id (unique among non-empty
// values only), returning ErrConflict on violation.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByGoogleID(ctx context.Context, googleID string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id string) error
}

// RefreshTokenStore is the revocation ledger. Records are keyed by token
// digest; an entry that is expired by its stored ExpiresAt is inert even if
// not yet physically deleted.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Delete removes the entry and reports how many rows went away; callers
	// decide whether zero is an error.
	Delete(ctx context.Context, tokenHash string) (int64, error)
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
