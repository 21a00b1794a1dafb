package jwt

import "github.com/golang-jwt/jwt"

// RoleAdmin is the only role the server currently recognizes.
const RoleAdmin = "admin"

// Payload defines the claims carried by an administrative bearer token.
type Payload struct {
	// StandardClaims carries expiry, issue time and issuer.
	jwt.StandardClaims

	// Operator names the person or tool the token was minted for. It is logged with every
	// administrative action.
	Operator string `json:"operator"`

	// Role must equal RoleAdmin for the admin routes to accept the token.
	Role string `json:"role"`
}
