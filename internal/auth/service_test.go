package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, opts ...CodecOption) (*Service, *InMemory, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Now().UTC()}
	codec, err := NewCodec("access-secret", "refresh-secret",
		append([]CodecOption{WithCodecClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := NewInMemory()
	svc, err := NewService(store, codec,
		WithClock(clock.Now),
		WithWarnLog(func(string, ...any) {}),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, clock
}

func TestRegisterIssuesWorkingSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "Ada", "Ada@Example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if account.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", account.Email)
	}
	if account.Role != DefaultRole {
		t.Fatalf("unexpected role: %s", account.Role)
	}
	if account.Origin != OriginLocal {
		t.Fatalf("unexpected origin: %s", account.Origin)
	}

	principal, err := svc.AuthenticateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateAccessToken: %v", err)
	}
	if principal.ID != account.ID {
		t.Fatalf("principal id %s, want %s", principal.ID, account.ID)
	}
	if !principal.HasPermission(PermissionReadProfile) {
		t.Fatal("principal missing default permissions")
	}

	if _, err := svc.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh of a fresh session failed: %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name, email, password string
	}{
		{"", "a@b.co", "secret1"},
		{"Ada", "", "secret1"},
		{"Ada", "not-an-email", "secret1"},
		{"Ada", "a@b.co", "short"},
	}
	for _, tc := range cases {
		if _, _, err := svc.Register(ctx, tc.name, tc.email, tc.password); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Register(%q,%q,%q): expected ErrInvalidInput, got %v", tc.name, tc.email, tc.password, err)
		}
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, "Imposter", "ADA@example.com", "secret2"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLoginFailuresCollapse(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Federated account with no password digest.
	federated := &Account{
		ID:       "fed-1",
		Name:     "Fed",
		Email:    "fed@example.com",
		Role:     RoleUser,
		GoogleID: "g-1",
		Origin:   OriginFederated,
	}
	if err := store.Accounts(ctx).Create(ctx, federated); err != nil {
		t.Fatalf("Create: %v", err)
	}

	cases := []struct{ email, password string }{
		{"ada@example.com", "wrong-pass"},
		{"nobody@example.com", "secret1"},
		{"fed@example.com", "anything"},
		{"", "secret1"},
		{"ada@example.com", ""},
	}
	for _, tc := range cases {
		if _, _, err := svc.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q): expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}

	if _, _, err := svc.Login(ctx, "ADA@example.com", "secret1"); err != nil {
		t.Fatalf("valid login failed: %v", err)
	}
}

func TestRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// First rotation consumed the token; replay must fail.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replayed refresh: expected ErrInvalidToken, got %v", err)
	}
	// The rotated token keeps working.
	if _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("rotated token rejected: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, _, clock := newTestService(t, WithRefreshTTL(time.Hour))
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshUnknownButValidTokenRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Signature still verifies, but the ledger entry is gone.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshAfterAccountDeletion(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rejection after account deletion, got %v", err)
	}
}

func TestRefreshCarriesRoleFromClaims(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Promote the account after the session was issued.
	admin := RoleAdmin
	if _, err := svc.UpdateAccount(ctx, account.ID, AccountUpdate{Role: &admin}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	principal, err := svc.AuthenticateAccessToken(next.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateAccessToken: %v", err)
	}
	// Role changes land on the next login, not on refresh.
	if principal.Role != RoleUser {
		t.Fatalf("refresh picked up new role: %s", principal.Role)
	}

	_, loginPair, err := svc.Login(ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	principal, err = svc.AuthenticateAccessToken(loginPair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateAccessToken: %v", err)
	}
	if principal.Role != RoleAdmin {
		t.Fatalf("login did not pick up new role: %s", principal.Role)
	}
}

func TestRevoke(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := svc.Revoke(ctx, pair.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke: expected ErrNotFound, got %v", err)
	}
	if err := svc.Revoke(ctx, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank token: expected ErrInvalidInput, got %v", err)
	}
}

func TestRevokeExpiredTokenStillWorks(t *testing.T) {
	svc, _, clock := newTestService(t, WithRefreshTTL(time.Hour))
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Expired signatures must not block revocation of the ledger entry.
	clock.Advance(2 * time.Hour)
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke of expired token: %v", err)
	}
}

func TestAuthenticateAccessTokenRejectsRefreshToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.AuthenticateAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token authenticated as access token: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	account, _, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ChangePassword(ctx, account.ID, "wrong", "newsecret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, account.ID, "secret1", "tiny"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.ChangePassword(ctx, account.ID, "secret1", "newsecret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := svc.Login(ctx, "ada@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ada@example.com", "newsecret"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestDeleteAccountCascadesSessions(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := store.Accounts(ctx).Find(ctx, account.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("account still present: %v", err)
	}
	if _, err := store.RefreshTokens(ctx).Find(ctx, hashToken(pair.RefreshToken)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("refresh ledger entry survived account deletion: %v", err)
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	svc, store, clock := newTestService(t, WithRefreshTTL(time.Hour))
	ctx := context.Background()

	_, stale, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock.Advance(2 * time.Hour)
	_, fresh, err := svc.Login(ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	n, err := svc.PurgeExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d entries, want 1", n)
	}
	if _, err := store.RefreshTokens(ctx).Find(ctx, hashToken(stale.RefreshToken)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale entry survived purge: %v", err)
	}
	if _, err := store.RefreshTokens(ctx).Find(ctx, hashToken(fresh.RefreshToken)); err != nil {
		t.Fatalf("fresh entry purged: %v", err)
	}
}

func TestUpdateAccountPartial(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	account, _, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	name := "Ada Lovelace"
	updated, err := svc.UpdateAccount(ctx, account.ID, AccountUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if updated.Name != "Ada Lovelace" {
		t.Fatalf("name not updated: %s", updated.Name)
	}
	if updated.Email != account.Email {
		t.Fatalf("email unexpectedly changed: %s", updated.Email)
	}

	empty := "   "
	if _, err := svc.UpdateAccount(ctx, account.ID, AccountUpdate{Name: &empty}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name accepted: %v", err)
	}
	bogus := Role("root")
	if _, err := svc.UpdateAccount(ctx, account.ID, AccountUpdate{Role: &bogus}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bogus role accepted: %v", err)
	}
	if _, err := svc.UpdateAccount(ctx, "missing", AccountUpdate{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
