package vault

import "strings"

// Identity names a principal or a transfer recipient. Callers are
// authenticated before an Identity reaches the vault.
type Identity string

// Valid reports whether the identity is non-empty.
func (id Identity) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// Asset selects the pool an operation applies to. The zero value is the
// native currency; any other value names a token.
type Asset struct {
	Token Identity
}

// Native is the native currency pool.
var Native = Asset{}

// TokenAsset selects the pool of the given token.
func TokenAsset(token Identity) Asset {
	return Asset{Token: Identity(strings.TrimSpace(string(token)))}
}

// ParseAsset maps "" and "native" to Native and anything else to a token.
func ParseAsset(raw string) Asset {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "native") {
		return Native
	}
	return TokenAsset(Identity(raw))
}

// IsNative reports whether a selects the native currency.
func (a Asset) IsNative() bool {
	return a.Token == ""
}

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return string(a.Token)
}
