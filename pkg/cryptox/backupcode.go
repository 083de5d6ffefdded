package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for backup code fingerprints.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

// BackupCodeHasher turns backup codes into storable fingerprints.
//
// Fingerprints must be deterministic so a presented code can be located
// with a single indexed lookup and consumed in one statement. The salt is
// therefore derived from the pepper and the owning identity rather than
// drawn at random: identical codes belonging to different identities
// still produce unrelated fingerprints.
type BackupCodeHasher struct {
	pepper []byte
}

// NewBackupCodeHasher returns a hasher keyed by pepper.
func NewBackupCodeHasher(pepper []byte) (*BackupCodeHasher, error) {
	if len(pepper) == 0 {
		return nil, errors.New("cryptox: empty pepper")
	}
	return &BackupCodeHasher{pepper: append([]byte(nil), pepper...)}, nil
}

// NormalizeBackupCode trims whitespace and upper-cases a presented code.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Fingerprint returns the base64url Argon2id digest of the normalized code.
func (h *BackupCodeHasher) Fingerprint(identity, code string) string {
	sum := argon2.IDKey(
		[]byte(NormalizeBackupCode(code)),
		h.salt(identity),
		iterations,
		memory,
		parallelism,
		keyLength,
	)
	return base64.RawURLEncoding.EncodeToString(sum)
}

func (h *BackupCodeHasher) salt(identity string) []byte {
	mac := sha256.New()
	mac.Write(h.pepper)
	mac.Write([]byte{0})
	mac.Write([]byte(identity))
	return mac.Sum(nil)[:saltLength]
}
