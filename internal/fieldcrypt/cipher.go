// Package fieldcrypt encrypts PII columns, derives search hashes for
// exact-match lookups, and masks decrypted values for display.
//
// Ciphertext format: "v<version>:" followed by base64(nonce || sealed box).
// The version label is bound into the AEAD as additional data, so a
// ciphertext cannot be relabelled to a different key.
package fieldcrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

// MaxPlaintextLen bounds a single encrypted field.
const MaxPlaintextLen = 4096

var ErrPlaintextTooLong = errors.New("plaintext exceeds maximum field length")

const fieldKeyInfo = "grey-ledger/field-encryption/v"

type Cipher struct {
	aeads  map[int]cipher.AEAD
	active int
}

// NewCipher derives one XChaCha20-Poly1305 key per configured secret.
func NewCipher(secrets map[int]string, active int) (*Cipher, error) {
	if _, ok := secrets[active]; !ok {
		return nil, fmt.Errorf("NewCipher: no secret for active version %d", active)
	}

	aeads := make(map[int]cipher.AEAD, len(secrets))
	for version, secret := range secrets {
		if version <= 0 {
			return nil, fmt.Errorf("NewCipher: key version must be positive, got %d", version)
		}
		if secret == "" {
			return nil, fmt.Errorf("NewCipher: empty secret for version %d", version)
		}
		key, err := deriveKey(secret, fieldKeyInfo+strconv.Itoa(version))
		if err != nil {
			return nil, fmt.Errorf("NewCipher: %w", err)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("NewCipher: %w", err)
		}
		aeads[version] = aead
	}

	return &Cipher{aeads: aeads, active: active}, nil
}

func (c *Cipher) ActiveVersion() int {
	return c.active
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if len(plaintext) > MaxPlaintextLen {
		return "", fmt.Errorf("Encrypt: %w", ErrPlaintextTooLong)
	}

	aead := c.aeads[c.active]
	label := versionLabel(c.active)

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("Encrypt: nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(label))
	return label + ":" + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	version, payload, err := split(ciphertext)
	if err != nil {
		return "", fmt.Errorf("Decrypt: %w", err)
	}

	aead, ok := c.aeads[version]
	if !ok {
		return "", fmt.Errorf("Decrypt: unknown key version %d: %w", version, domain.ErrDecryption)
	}

	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("Decrypt: decode: %w", domain.ErrDecryption)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("Decrypt: truncated ciphertext: %w", domain.ErrDecryption)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(versionLabel(version)))
	if err != nil {
		return "", fmt.Errorf("Decrypt: %w", domain.ErrDecryption)
	}
	return string(plain), nil
}

// KeyVersion reports which key sealed a ciphertext without decrypting it.
func (c *Cipher) KeyVersion(ciphertext string) (int, error) {
	version, _, err := split(ciphertext)
	if err != nil {
		return 0, fmt.Errorf("KeyVersion: %w", err)
	}
	return version, nil
}

// Reencrypt moves a ciphertext onto the active key. Values already on the
// active key are returned unchanged.
func (c *Cipher) Reencrypt(ciphertext string) (string, error) {
	version, err := c.KeyVersion(ciphertext)
	if err != nil {
		return "", fmt.Errorf("Reencrypt: %w", err)
	}
	if version == c.active {
		return ciphertext, nil
	}
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("Reencrypt: %w", err)
	}
	out, err := c.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("Reencrypt: %w", err)
	}
	return out, nil
}

func versionLabel(version int) string {
	return "v" + strconv.Itoa(version)
}

func split(ciphertext string) (int, string, error) {
	label, payload, found := strings.Cut(ciphertext, ":")
	if !found || !strings.HasPrefix(label, "v") {
		return 0, "", fmt.Errorf("malformed ciphertext: %w", domain.ErrDecryption)
	}
	version, err := strconv.Atoi(label[1:])
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("malformed key version: %w", domain.ErrDecryption)
	}
	return version, payload, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriveKey: %w", err)
	}
	return key, nil
}
