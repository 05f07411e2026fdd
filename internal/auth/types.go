package auth

import (
	"strings"
	"time"
)

// Role is a named bundle of permissions. The set of roles is fixed at build
// time; see permissions.go for the role to permission mapping.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultRole is assigned to every account that does not get an explicit role,
// including all accounts provisioned through the federated path.
const DefaultRole = RoleUser

// Origin records how an account was first created. It does not constrain
// which credential paths are usable afterwards: a federated account that later
// sets a password keeps Origin "federated".
const (
	OriginLocal     = "local"
	OriginFederated = "federated"
)

// Account is the durable identity record.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	GoogleID     string    `json:"google_id,omitempty"`
	Picture      string    `json:"picture,omitempty"`
	Origin       string    `json:"origin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the write-time invariants before persistence. Password
// requiredness depends on origin: local accounts must carry a password hash,
// federated accounts may not have one yet.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Email) == "" {
		return ErrInvalidInput
	}
	if a.Email != NormalizeEmail(a.Email) {
		return ErrInvalidInput
	}
	if !ValidRole(a.Role) {
		return ErrInvalidInput
	}
	switch a.Origin {
	case OriginLocal:
		if a.PasswordHash == "" {
			return ErrInvalidInput
		}
	case OriginFederated:
	default:
		return ErrInvalidInput
	}
	return nil
}

// NormalizeEmail folds an email for storage and comparison. All store lookups
// go through this so matching is case-insensitive everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RefreshToken is a ledger entry authorizing one outstanding refresh token.
// The token itself is never stored; TokenHash is its SHA-256 digest and serves
// as the lookup key.
type RefreshToken struct {
	TokenHash string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair is the transient result of session issuance; nothing in it is
// persisted beyond the refresh ledger entry.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
