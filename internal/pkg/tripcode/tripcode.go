/*
Package tripcode turns a "name#secret" login string into a display name carrying a stable
signature tag, so that a user can prove continuity of identity without an account.
*/
package tripcode

import (
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// Delimiter separates the visible name from the secret.
	Delimiter = "#"

	// Mark prefixes the generated tag.
	Mark = "◆"

	// OpenMark replaces any Mark typed into the visible part of a name.
	OpenMark = "◇"

	// tagLength is the number of base64 characters kept from the digest.
	tagLength = 10
)

// Signer derives tags with a server-wide salt. Changing the salt changes every tag.
type Signer struct {
	salt []byte
}

// NewSigner returns a Signer keyed by salt. blake2b accepts keys of up to 64 bytes; longer
// salts are folded through an unkeyed digest first.
func NewSigner(salt string) *Signer {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Signer{salt: key}
}

// Tag returns the decorative tag for secret, without the leading Mark.
func (s *Signer) Tag(secret string) string {
	h, err := blake2b.New256(s.salt)
	if err != nil {
		// only reachable with an oversized key, which NewSigner prevents
		panic(err)
	}
	h.Write([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))[:tagLength]
}

// Defang replaces every Mark in a visible name so that only Apply can produce one.
func Defang(visible string) string {
	return strings.ReplaceAll(visible, Mark, OpenMark)
}

// Apply splits name at the first Delimiter and appends the tag derived from the rest.
// A name without a delimiter is only defanged; an empty secret drops the delimiter.
func (s *Signer) Apply(name string) string {
	visible, secret, found := strings.Cut(name, Delimiter)
	if !found {
		return Defang(name)
	}
	visible = Defang(strings.TrimSpace(visible))
	if secret == "" {
		return visible
	}
	return visible + Mark + s.Tag(secret)
}
