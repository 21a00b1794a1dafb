// Command admintoken mints a bearer token for the /api/admin routes. The secret is read
// from ADMIN_SECRET, the same variable the server uses.
package main

import (
	"flag"
	"fmt"
	"os"

	"gridroom/internal/pkg/auth/jwt"
)

func main() {
	operator := flag.String("operator", "", "name recorded with every admin action")
	ttl := flag.Duration("ttl", jwt.AdminTokenExpiration, "token lifetime")
	flag.Parse()

	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_SECRET is not set")
		os.Exit(1)
	}
	if *operator == "" {
		fmt.Fprintln(os.Stderr, "-operator is required")
		os.Exit(2)
	}

	token, err := jwt.GenerateToken(&jwt.Payload{Operator: *operator, Role: jwt.RoleAdmin}, secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
