package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"passage.dev/internal/ids"
)

// Service orchestrates credential checks, token issuance and the refresh
// ledger. It is the single place where a validated account turns into a
// persisted session.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time
	warnf func(format string, args ...any)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithWarnLog overrides the warning sink used for swallowed errors.
func WithWarnLog(fn func(format string, args ...any)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.warnf = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	s := &Service{
		store: store,
		codec: codec,
		now:   time.Now,
		warnf: log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// hashToken derives the ledger lookup key from a refresh token string. The
// raw token is never written to storage.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Register creates a local account and immediately issues a session for it.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Account, TokenPair, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, ErrInvalidInput
	}
	if len(password) < MinPasswordLength {
		return nil, TokenPair{}, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	account := &Account{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         DefaultRole,
		Origin:       OriginLocal,
	}
	if err := account.Validate(); err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.store.Accounts(ctx).Create(ctx, account); err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueSession(ctx, account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return account, pair, nil
}

// Login validates email and password. Every failure collapses into
// ErrInvalidCredentials: missing account, federated-only account and digest
// mismatch are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Account, TokenPair, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	account, err := s.store.Accounts(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if account.PasswordHash == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.IssueSession(ctx, account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return account, pair, nil
}

// IssueSession signs a token pair for the account and records the refresh
// token in the ledger. Used uniformly after credential auth, federated auth
// and registration.
func (s *Service) IssueSession(ctx context.Context, account *Account) (TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccess(account.ID, account.Email, account.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(account.ID, account.Email, account.Role)
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshToken{
		TokenHash: hashToken(refresh),
		AccountID: account.ID,
		ExpiresAt: refreshExp,
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh rotates a session. The ordering is load-bearing: signature check,
// ledger membership check, account re-fetch, then delete-old strictly before
// the new pair is recorded, so a crash mid-rotation can only lose a session,
// never leave the old token usable.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	ledger := s.store.RefreshTokens(ctx)
	hash := hashToken(refreshToken)
	rec, err := ledger.Find(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if s.now().After(rec.ExpiresAt) {
		// Ledger-expired entry: clean it up eagerly, then fail the same way
		// as a missing entry.
		if _, err := ledger.Delete(ctx, hash); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrInvalidToken
	}

	account, err := s.store.Accounts(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Account deleted since issuance; the ledger record is orphaned.
			if _, delErr := ledger.Delete(ctx, hash); delErr != nil {
				return TokenPair{}, delErr
			}
			return TokenPair{}, ErrNotFound
		}
		return TokenPair{}, err
	}

	if _, err := ledger.Delete(ctx, hash); err != nil {
		return TokenPair{}, err
	}

	// The new pair carries the role from the refresh token's claims, not a
	// fresh read of account.Role; role changes propagate on the next login,
	// consistent with the access-token staleness tradeoff.
	session := &Account{ID: account.ID, Email: claims.Email, Role: claims.Role}
	return s.IssueSession(ctx, session)
}

// Revoke deletes the ledger entry for a refresh token. The signature check is
// best effort: an expired but still ledgered token must remain revocable, so
// verification failures are logged and ignored.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrInvalidInput
	}
	if _, err := s.codec.VerifyRefresh(refreshToken); err != nil {
		s.warnf("auth: revoking token that fails verification: %v", err)
	}
	n, err := s.store.RefreshTokens(ctx).Delete(ctx, hashToken(refreshToken))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AuthenticateAccessToken verifies an access token and resolves the principal
// entirely from the token and the static permission registry. No store read
// happens here.
func (s *Service) AuthenticateAccessToken(token string) (Principal, error) {
	claims, err := s.codec.VerifyAccess(token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		ID:          claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: Permissions(claims.Role),
	}, nil
}

// ChangePassword verifies the old password before storing a new digest. A
// federated-only account (no digest) cannot change a password it never had.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrInvalidInput
	}
	accounts := s.store.Accounts(ctx)
	account, err := accounts.Find(ctx, accountID)
	if err != nil {
		return err
	}
	if account.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if err := VerifyPassword(account.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	return accounts.Update(ctx, account)
}

// GetAccount fetches one account by id.
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.Accounts(ctx).Find(ctx, id)
}

// ListAccounts returns all accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]*Account, error) {
	return s.store.Accounts(ctx).List(ctx)
}

// AccountUpdate carries the mutable profile fields; nil pointers leave the
// field unchanged.
type AccountUpdate struct {
	Name    *string
	Picture *string
	Role    *Role
}

// UpdateAccount applies a partial profile update.
func (s *Service) UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*Account, error) {
	accounts := s.store.Accounts(ctx)
	account, err := accounts.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrInvalidInput
		}
		account.Name = name
	}
	if upd.Picture != nil {
		account.Picture = strings.TrimSpace(*upd.Picture)
	}
	if upd.Role != nil {
		if !ValidRole(*upd.Role) {
			return nil, ErrInvalidInput
		}
		account.Role = *upd.Role
	}
	if err := accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes the account and cascades the delete across its
// refresh ledger entries so no session survives the account.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.store.Accounts(ctx).Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.store.RefreshTokens(ctx).DeleteByAccount(ctx, id); err != nil {
		return err
	}
	return nil
}

// PurgeExpiredSessions removes ledger rows past their stored expiry. Expired
// rows are already inert; this is housekeeping, typically run periodically.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.store.RefreshTokens(ctx).DeleteExpired(ctx, s.now().UTC())
}
