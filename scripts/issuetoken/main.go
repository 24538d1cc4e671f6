// issuetoken mints a development JWT for calling the query API.
//
// Usage (run from the repo root, after scripts/genkey):
//
//	go run scripts/issuetoken/main.go -user alice -tenant acme -groups eng,docs
//
// Reads the key pair from data/ (or SHIORI_JWT_PRIVATE_KEY / SHIORI_JWT_PUBLIC_KEY)
// and prints the signed token and its expiry.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shiori-ai/shiori/internal/auth"
	"github.com/shiori-ai/shiori/internal/model"
)

func main() {
	user := flag.String("user", "", "user ID (required)")
	tenant := flag.String("tenant", "", "tenant ID (required)")
	groups := flag.String("groups", "", "comma-separated group IDs")
	expiry := flag.Duration("expiry", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" || *tenant == "" {
		fmt.Fprintln(os.Stderr, "error: -user and -tenant are required")
		flag.Usage()
		os.Exit(2)
	}

	privPath := envOr("SHIORI_JWT_PRIVATE_KEY", "data/jwt_private.pem")
	pubPath := envOr("SHIORI_JWT_PUBLIC_KEY", "data/jwt_public.pem")

	mgr, err := auth.NewJWTManager(privPath, pubPath, *expiry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: auth: %v\n", err)
		os.Exit(1)
	}

	uc := model.UserContext{UserID: *user, TenantID: *tenant}
	if *groups != "" {
		uc.GroupIDs = strings.Split(*groups, ",")
	}

	token, expiresAt, err := mgr.IssueToken(uc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires: %s\n", expiresAt.Format(time.RFC3339))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
