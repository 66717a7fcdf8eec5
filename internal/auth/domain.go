package auth

import "time"

// Credential is the API key record bound to a vault principal.
type Credential struct {
	Principal  string
	SecretHash string
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// IssuedKey is returned once, at issue time. Only the hash is stored.
type IssuedKey struct {
	Principal string
	APIKey    string
}
