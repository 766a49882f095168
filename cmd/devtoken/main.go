// Command devtoken prints a bearer token for local testing. It signs with
// JWT_SECRET (and JWT_ISSUER when set), read from the environment or .env.
//
//	go run ./cmd/devtoken -user alice -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-dm-backend/internal/auth"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "user id to embed in the token (required)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing key")
	issuer := flag.String("issuer", os.Getenv("JWT_ISSUER"), "issuer claim")
	flag.Parse()

	if strings.TrimSpace(*user) == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -user and a JWT_SECRET are required")
		flag.Usage()
		os.Exit(2)
	}

	tok, err := auth.New(*secret, *issuer).Issue(*user, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
