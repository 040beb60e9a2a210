package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"bondgateway/internal/account"
	id "bondgateway/pkg/domain"
	"bondgateway/pkg/platform/sentinel"
)

const accountColumns = `id, first_name, last_name, email, phone, bvn_suffix, wallet_id, wallet_balance, joined_at`

// Postgres persists accounts in the accounts table. Saving an existing id
// updates contact details and keeps the wallet and its balance.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Save(ctx context.Context, acct *account.UserAccount) error {
	if acct == nil {
		return fmt.Errorf("account is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone`,
		uuid.UUID(acct.ID), acct.FirstName, acct.LastName, account.NormalizeEmail(acct.Email),
		acct.Phone, acct.BVNSuffix, acct.WalletID, acct.WalletBalance, acct.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account already exists: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*account.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, uuid.UUID(userID))
	return scanAccount(row, "find account by id")
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*account.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`, account.NormalizeEmail(email))
	return scanAccount(row, "find account by email")
}

func (s *Postgres) Delete(ctx context.Context, userID id.UserID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func scanAccount(row *sql.Row, op string) (*account.UserAccount, error) {
	var (
		acct  account.UserAccount
		rawID uuid.UUID
	)
	err := row.Scan(&rawID, &acct.FirstName, &acct.LastName, &acct.Email, &acct.Phone,
		&acct.BVNSuffix, &acct.WalletID, &acct.WalletBalance, &acct.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acct.ID = id.UserID(rawID)
	acct.JoinedAt = acct.JoinedAt.UTC()
	return &acct, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
