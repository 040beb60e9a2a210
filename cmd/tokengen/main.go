// Package main generates access tokens for local testing of the account API.
// Tokens are signed with the development key unless -key is given and will
// not validate against a production deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bondgateway/internal/account/token"
	id "bondgateway/pkg/domain"
)

// devSigningKey matches config.FromEnv when JWT_SIGNING_KEY is not set.
const devSigningKey = "dev-secret-key-change-in-production"

type tokenOutput struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	WalletID  string    `json:"wallet_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	userID := flag.String("user-id", "", "Account ID (UUID). Generated if empty.")
	walletID := flag.String("wallet-id", "", "Wallet ID claim (optional)")
	key := flag.String("key", devSigningKey, "HS256 signing key")
	ttl := flag.Duration("ttl", 15*time.Minute, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	uid := id.NewUserID()
	if *userID != "" {
		parsed, err := id.ParseUserID(*userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -user-id: %v\n", err)
			os.Exit(1)
		}
		uid = parsed
	}

	signed, expiresAt, err := token.New(*key, *ttl).Issue(context.Background(), uid, *walletID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error generating token: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(tokenOutput{Token: signed, UserID: uid.String(), WalletID: *walletID, ExpiresAt: expiresAt})
		return
	}
	fmt.Printf("User ID:    %s\n", uid)
	fmt.Printf("Expires At: %s\n\n", expiresAt.Format(time.RFC3339))
	fmt.Println(signed)
	fmt.Println()
	fmt.Println(`curl -H "Authorization: Bearer <token>" http://localhost:8080/api/account/me`)
}
