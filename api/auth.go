package api

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenInvalid  = errors.New("invalid auth token format")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled determines if authentication is required
	Enabled bool
	// Token is the secret token that clients must provide
	Token string
}

// Authenticator handles connection authentication.
type Authenticator struct {
	config AuthConfig
	mu     sync.RWMutex
}

// NewAuthenticator creates a new Authenticator with the given config.
func NewAuthenticator(config AuthConfig) *Authenticator {
	return &Authenticator{
		config: config,
	}
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// ValidateToken checks if the provided token matches the configured token.
// Uses constant-time comparison to prevent timing attacks.
func (a *Authenticator) ValidateToken(providedToken string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.config.Enabled {
		return nil
	}

	if providedToken == "" {
		return ErrAuthRequired
	}

	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}

	return nil
}

// Handshake reads the auth message a client must send first and answers
// with an AuthResponse. It is a no-op when authentication is disabled.
func (a *Authenticator) Handshake(rw io.ReadWriter, maxSize int) error {
	if !a.IsEnabled() {
		return nil
	}

	data, err := ReadMessageLimit(rw, maxSize)
	if err != nil {
		return fmt.Errorf("failed to read auth message: %w", err)
	}

	var msg AuthMessage
	authErr := json.Unmarshal(data, &msg)
	if authErr != nil || msg.Type != "auth" {
		authErr = ErrAuthTokenInvalid
	} else {
		authErr = a.ValidateToken(msg.Token)
	}

	resp := AuthResponse{Success: authErr == nil}
	if authErr != nil {
		resp.Error = authErr.Error()
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode auth response: %w", err)
	}
	if err := WriteMessageLimit(rw, body, maxSize); err != nil {
		return err
	}

	if authErr != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, authErr)
	}
	return nil
}

// Authenticate performs the client side of the handshake.
func Authenticate(rw io.ReadWriter, token string, maxSize int) error {
	body, err := json.Marshal(AuthMessage{Type: "auth", Token: token})
	if err != nil {
		return fmt.Errorf("failed to encode auth message: %w", err)
	}
	if err := WriteMessageLimit(rw, body, maxSize); err != nil {
		return err
	}

	data, err := ReadMessageLimit(rw, maxSize)
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	var resp AuthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Error)
	}
	return nil
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() (string, error) {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// TokenFingerprint returns a short, non-reversible tag identifying token,
// safe to log.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}

// AuthMessage represents an authentication handshake message.
// This is the first message a client must send when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"`  // Must be "auth"
	Token string `json:"token"` // The authentication token
}

// AuthResponse is sent back to the client after auth attempt.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
