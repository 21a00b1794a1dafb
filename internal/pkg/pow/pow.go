/*
Package pow implements the proof-of-work gate placed in front of login.

A client fetches a challenge nonce, searches for a counter whose SHA-256 digest of
nonce+counter starts with the configured number of hex zeros, and trades the solution
for a short-lived proof token. Login consumes the token exactly once.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the proof token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for a proof token.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for a challenge nonce.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	ErrNonceInvalid   = errors.New("nonce expired or invalid")
	ErrProofTooWeak   = errors.New("proof does not meet difficulty requirement")
	ErrNonceConsumed  = errors.New("nonce consumed by concurrent request")
	ErrTokenMissing   = errors.New("proof token missing")
	ErrTokenNotIssued = errors.New("proof token expired or unknown")
)

// Challenge is handed to the client.
type Challenge struct {
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
}

// Manager tracks outstanding nonces and issued proof tokens. It is safe for concurrent use.
type Manager struct {
	// difficulty is the required number of leading hex zeros. Zero disables the gate.
	difficulty int

	// nonces maps outstanding challenge nonces to their expiry.
	nonces map[string]time.Time

	// tokens maps issued proof tokens to their expiry.
	tokens map[string]time.Time

	now func() time.Time
	mu  sync.Mutex
}

// NewManager creates a Manager. The expiry sweep stops when ctx is cancelled.
func NewManager(ctx context.Context, difficulty int) *Manager {
	m := &Manager{
		difficulty: difficulty,
		nonces:     make(map[string]time.Time),
		tokens:     make(map[string]time.Time),
		now:        time.Now,
	}

	go m.cleanupExpiredEntries(ctx)

	return m
}

// Enabled reports whether login requires a proof token.
func (m *Manager) Enabled() bool {
	return m.difficulty > 0
}

// NewChallenge issues a fresh nonce.
func (m *Manager) NewChallenge() Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonces[nonce] = m.now().Add(NonceExpiryDuration)
	return Challenge{Nonce: nonce, Difficulty: m.difficulty}
}

// Solves reports whether counter solves nonce at the given difficulty.
func Solves(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// ValidateProof checks a solution and, on success, consumes the nonce and returns a proof token.
func (m *Manager) ValidateProof(nonce, counter string) (string, error) {
	m.mu.Lock()
	expiry, ok := m.nonces[nonce]
	m.mu.Unlock()

	if !ok || m.now().After(expiry) {
		return "", ErrNonceInvalid
	}

	if !Solves(nonce, counter, m.difficulty) {
		return "", ErrProofTooWeak
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, stillExists := m.nonces[nonce]; !stillExists {
		return "", ErrNonceConsumed
	}
	delete(m.nonces, nonce)

	token := uuid.New().String()
	m.tokens[token] = m.now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken checks the token carried by r (header or pow_token query) and
// invalidates it. Always succeeds when the gate is disabled.
func (m *Manager) ConsumeProofToken(r *http.Request) error {
	if !m.Enabled() {
		return nil
	}

	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}
	if token == "" {
		return ErrTokenMissing
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.tokens[token]
	if !ok || m.now().After(expiry) {
		return ErrTokenNotIssued
	}
	delete(m.tokens, token)
	return nil
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}

	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}

func (m *Manager) cleanupExpiredEntries(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(m.now())
		}
	}
}
