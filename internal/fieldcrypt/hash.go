package fieldcrypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const searchHashInfo = "grey-ledger/search-hash"

// Hasher computes the deterministic keyed digest stored next to searchable
// ciphertext columns.
type Hasher struct {
	key []byte
}

func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, fmt.Errorf("NewHasher: empty secret")
	}
	key, err := deriveKey(secret, searchHashInfo)
	if err != nil {
		return nil, fmt.Errorf("NewHasher: %w", err)
	}
	return &Hasher{key: key}, nil
}

// SearchHash ignores whitespace and letter case so "gha-123 456" and
// "GHA-123456" resolve to the same record.
func (h *Hasher) SearchHash(plaintext string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(normalizeForSearch(plaintext)))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeForSearch(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}
