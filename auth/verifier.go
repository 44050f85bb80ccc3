// Package auth resolves bearer tokens to caller identities. Token
// verification is deliberately opaque to the rest of the system: a
// token either maps to a user id or the caller is anonymous.
package auth

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"clron/config"
)

// Verifier turns a bearer token into a principal id.
type Verifier interface {
	// VerifyToken returns the user id for a token and whether the
	// token was recognized.
	VerifyToken(token string) (string, bool)
}

// TokenFile is a file-backed Verifier: a TOML file mapping static
// bearer tokens to user ids.
type TokenFile struct {
	tokens map[string]string
}

type tokenFileEntry struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
}

type tokenFileDoc struct {
	Tokens []tokenFileEntry `toml:"tokens"`
}

// LoadTokenFile reads a token file. A missing path yields a verifier
// that recognizes nothing, so every caller is served anonymously.
func LoadTokenFile(path string) (*TokenFile, error) {
	tf := &TokenFile{tokens: make(map[string]string)}
	if path == "" {
		return tf, nil
	}

	path = config.ExpandPath(path)
	if !config.FileExists(path) {
		return tf, nil
	}

	var doc tokenFileDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	for _, entry := range doc.Tokens {
		if entry.Token == "" || entry.UserID == "" {
			continue
		}
		tf.tokens[entry.Token] = entry.UserID
	}

	return tf, nil
}

// VerifyToken implements Verifier.
func (t *TokenFile) VerifyToken(token string) (string, bool) {
	userID, ok := t.tokens[token]
	return userID, ok
}
