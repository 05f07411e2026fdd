package auth

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs the
// test suite and DSN-less development runs; production uses PGStore.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	refresh  map[string]*RefreshToken
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[string]*Account),
		refresh:  make(map[string]*RefreshToken),
	}
}

func (s *InMemory) Accounts(ctx context.Context) AccountStore           { return (*memAccounts)(s) }
func (s *InMemory) RefreshTokens(ctx context.Context) RefreshTokenStore { return (*memRefresh)(s) }

type memAccounts InMemory

func (s *memAccounts) Create(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return ErrConflict
		}
		if a.GoogleID != "" && existing.GoogleID == a.GoogleID {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	cp := *a
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.accounts[cp.ID] = &cp
	*a = cp
	return nil
}

func (s *memAccounts) Find(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	email = NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAccounts) FindByGoogleID(ctx context.Context, googleID string) (*Account, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.GoogleID == googleID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAccounts) List(ctx context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memAccounts) Update(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range s.accounts {
		if id == a.ID {
			continue
		}
		if other.Email == a.Email {
			return ErrConflict
		}
		if a.GoogleID != "" && other.GoogleID == a.GoogleID {
			return ErrConflict
		}
	}
	cp := *a
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.accounts[cp.ID] = &cp
	*a = cp
	return nil
}

func (s *memAccounts) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

type memRefresh InMemory

func (s *memRefresh) Create(ctx context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refresh[tok.TokenHash]; ok {
		return ErrConflict
	}
	cp := *tok
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.refresh[cp.TokenHash] = &cp
	return nil
}

func (s *memRefresh) Find(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.refresh[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *memRefresh) Delete(ctx context.Context, tokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refresh[tokenHash]; !ok {
		return 0, nil
	}
	delete(s.refresh, tokenHash)
	return 1, nil
}

func (s *memRefresh) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, tok := range s.refresh {
		if tok.AccountID == accountID {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}

func (s *memRefresh) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, tok := range s.refresh {
		if now.After(tok.ExpiresAt) {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}
