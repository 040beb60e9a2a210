package domain

import dErrors "bondgateway/pkg/domain-errors"

// BVNLength is the fixed length of a Bank Verification Number.
const BVNLength = 11

// InvalidBVNMessage is the user-facing message for a malformed claim.
const InvalidBVNMessage = "Invalid BVN format"

// BVN is a validated Bank Verification Number: exactly 11 ASCII digits.
// The zero value is not a valid BVN.
type BVN string

// ParseBVN validates s as a BVN. It never trims or normalizes input, so a
// claim with surrounding whitespace is rejected rather than silently fixed.
func ParseBVN(s string) (BVN, error) {
	if len(s) != BVNLength {
		return "", dErrors.New(dErrors.CodeValidation, InvalidBVNMessage)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", dErrors.New(dErrors.CodeValidation, InvalidBVNMessage)
		}
	}
	return BVN(s), nil
}

func (b BVN) String() string { return string(b) }

// Redacted returns the BVN with all but the last four digits masked, for logs.
func (b BVN) Redacted() string {
	s := string(b)
	if len(s) <= 4 {
		return "****"
	}
	return "*******" + s[len(s)-4:]
}

// Suffix returns the last four digits, kept on account records for support lookups.
func (b BVN) Suffix() string {
	s := string(b)
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
