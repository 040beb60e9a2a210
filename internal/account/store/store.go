// Package store persists investor accounts. Every implementation returns
// sentinel.ErrNotFound for missing records and sentinel.ErrAlreadyUsed when
// the email or wallet ID belongs to another account.
package store

import (
	"context"

	"bondgateway/internal/account"
	id "bondgateway/pkg/domain"
)

type Store interface {
	Save(ctx context.Context, acct *account.UserAccount) error
	FindByID(ctx context.Context, userID id.UserID) (*account.UserAccount, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*account.UserAccount, error)
	Delete(ctx context.Context, userID id.UserID) error
	Count(ctx context.Context) (int, error)
}
