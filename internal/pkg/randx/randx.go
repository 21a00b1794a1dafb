/*
Package randx provides functions for generating cryptographically secure random identifiers.

Public ids are short Base62 strings safe to broadcast; private ids are UUID v4 capability
tokens that prove ownership of a public identity across reconnects and are never broadcast.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// PublicIDLength is the fixed length of a public user id.
	PublicIDLength = 12
)

// base62 returns n random Base62 characters.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// PublicID generates a stable, shareable user id.
func PublicID() (string, error) {
	return base62(PublicIDLength)
}

// PrivateID generates an unguessable capability token.
func PrivateID() string {
	return uuid.New().String()
}

// IsValidPublicID checks length and alphabet of a public id.
func IsValidPublicID(id string) bool {
	if len(id) != PublicIDLength {
		return false
	}

	for _, char := range id {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// IsValidPrivateID reports whether id has the shape of a private id. It says nothing
// about whether the id belongs to a live user.
func IsValidPrivateID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.Version() == 4
}
