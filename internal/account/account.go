// Package account holds the investor account created when onboarding completes.
package account

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	id "bondgateway/pkg/domain"
)

// WalletIDLength is the number of digits in a wallet ID.
const WalletIDLength = 10

// UserAccount is the session artifact persisted after onboarding. Only the
// last four BVN digits are retained.
type UserAccount struct {
	ID        id.UserID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	BVNSuffix string    `json:"bvnSuffix"`
	WalletID  string    `json:"walletId"`
	// WalletBalance is in kobo. A new wallet starts empty.
	WalletBalance int64     `json:"walletBalance"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// NormalizeEmail is the canonical form used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewWalletID returns WalletIDLength random decimal digits. The first digit
// is never zero.
func NewWalletID() (string, error) {
	var b strings.Builder
	for i := 0; i < WalletIDLength; i++ {
		lo, span := int64(0), int64(10)
		if i == 0 {
			lo, span = 1, 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + lo + n.Int64()))
	}
	return b.String(), nil
}
