// Package sealed encrypts credential secrets at rest with age X25519 keys.
//
// Ciphertext is stored base64-encoded behind a "sealed:" prefix so stored
// values written before a key was configured keep reading back as plaintext.
package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

const prefix = "sealed:"

// Box seals and opens credential secrets. The zero value (and a Box built
// without an identity) passes values through unchanged.
type Box struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// New parses an AGE-SECRET-KEY-1... identity. An empty key yields a
// pass-through Box.
func New(identityKey string) (*Box, error) {
	identityKey = strings.TrimSpace(identityKey)
	if identityKey == "" {
		return &Box{}, nil
	}
	identity, err := age.ParseX25519Identity(identityKey)
	if err != nil {
		return nil, fmt.Errorf("parsing sealing identity: %w", err)
	}
	return &Box{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateIdentity returns a fresh identity string and its public recipient.
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age identity: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}

// Enabled reports whether the Box encrypts.
func (b *Box) Enabled() bool {
	return b != nil && b.identity != nil
}

// Seal encrypts plaintext. Pass-through when no identity is configured.
func (b *Box) Seal(plaintext string) (string, error) {
	if !b.Enabled() {
		return plaintext, nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, b.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return prefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix are
// returned as-is.
func (b *Box) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}
	if !b.Enabled() {
		return "", fmt.Errorf("secret is sealed but no sealing identity is configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), b.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return string(plaintext), nil
}
