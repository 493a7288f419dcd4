// Package main provides a simple tool to generate wallet session tokens.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gridforge/gpumesh/internal/auth"
)

func main() {
	wallet := flag.String("wallet", "", "Wallet address for the token")
	secret := flag.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	expiry := flag.Duration("expiry", 24*time.Hour, "Token expiry duration")
	flag.Parse()

	if *wallet == "" {
		fmt.Fprintln(os.Stderr, "Error: wallet address required. Use -wallet")
		os.Exit(1)
	}

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		os.Exit(1)
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "Error: JWT secret must be at least 32 characters")
		os.Exit(1)
	}

	svc := auth.NewService(&auth.Config{
		JWTSecret:   []byte(jwtSecret),
		TokenExpiry: *expiry,
	}, nil)

	token, err := svc.GenerateToken(*wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
