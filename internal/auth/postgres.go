package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"passage.dev/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// OpenPG opens a pooled connection using the pgx stdlib driver.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Accounts(ctx context.Context) AccountStore           { return &pgAccounts{db: s.db} }
func (s *PGStore) RefreshTokens(ctx context.Context) RefreshTokenStore { return &pgRefresh{db: s.db} }

// uniqueViolation is the PostgreSQL class 23 code raised by the accounts
// email unique constraint and the partial unique index on google_id.
const uniqueViolation = "23505"

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

// Account store ------------------------------------------------------------

type pgAccounts struct{ db *sql.DB }

const accountColumns = `id, name, email, coalesce(password_hash, ''), role, coalesce(google_id, ''), coalesce(picture, ''), origin, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role,
		&a.GoogleID, &a.Picture, &a.Origin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *pgAccounts) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, name, email, password_hash, role, google_id, picture, origin)
		 values($1,$2,$3,nullif($4,''),$5,nullif($6,''),nullif($7,''),$8)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.GoogleID, a.Picture, a.Origin,
	)
	return mapPGError(err)
}

func (s *pgAccounts) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *pgAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, NormalizeEmail(email))
	return scanAccount(row)
}

func (s *pgAccounts) FindByGoogleID(ctx context.Context, googleID string) (*Account, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where google_id=$1`, googleID)
	return scanAccount(row)
}

func (s *pgAccounts) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *pgAccounts) Update(ctx context.Context, a *Account) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts
		 set name=$2, email=$3, password_hash=nullif($4,''), role=$5,
		     google_id=nullif($6,''), picture=nullif($7,''), updated_at=now()
		 where id=$1`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.GoogleID, a.Picture,
	)
	if err != nil {
		return mapPGError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgAccounts) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh token ledger -----------------------------------------------------

type pgRefresh struct{ db *sql.DB }

func (s *pgRefresh) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(token_hash, account_id, expires_at)
		 values($1,$2,$3)`,
		tok.TokenHash, tok.AccountID, tok.ExpiresAt,
	)
	return mapPGError(err)
}

func (s *pgRefresh) Find(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select token_hash, account_id, expires_at, created_at
		 from refresh_tokens where token_hash=$1`, tokenHash)
	var tok RefreshToken
	if err := row.Scan(&tok.TokenHash, &tok.AccountID, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *pgRefresh) Delete(ctx context.Context, tokenHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where token_hash=$1`, tokenHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *pgRefresh) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where account_id=$1`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *pgRefresh) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
