//go:build ignore

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run generate_admin_token.go <subject> [role]")
		fmt.Println("Example: JWT_SECRET=... go run generate_admin_token.go ops admin")
		os.Exit(1)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	subject := os.Args[1]
	role := "admin"
	if len(os.Args) > 2 {
		role = os.Args[2]
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Subject: %s\nRole: %s\n\n%s\n", subject, role, signed)
}
