package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/pkg/cryptox"
)

const (
	DefaultBackupCodeCount = 10
	BackupCodeLength       = 8
	BackupCodeCharset      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateBackupCodes returns count distinct random codes. r nil means
// crypto/rand.
func GenerateBackupCodes(r io.Reader, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("backup code count must be positive, got %d", count)
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := cryptox.RandomString(r, BackupCodeCharset, BackupCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// BackupCodeStore keeps backup codes as fingerprints in the store.
type BackupCodeStore struct {
	Store  store.Store
	Hasher *cryptox.BackupCodeHasher
}

func NewBackupCodeStore(s store.Store, h *cryptox.BackupCodeHasher) *BackupCodeStore {
	return &BackupCodeStore{Store: s, Hasher: h}
}

// Replace swaps identity's codes for codes using tx, which may be the
// root store or an open transaction.
func (b *BackupCodeStore) Replace(ctx context.Context, tx store.Store, identity string, codes []string, now time.Time) error {
	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, identity); err != nil {
		return fmt.Errorf("failed to delete old backup codes: %w", err)
	}
	for _, code := range codes {
		hash := b.Hasher.Fingerprint(identity, code)
		if err := tx.BackupCodes().CreateBackupCode(ctx, identity, hash, now); err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}
	return nil
}

// Consume removes the code matching the submission and reports whether one
// did. Matching ignores case and surrounding whitespace. Removal is a single
// conditional delete, so two concurrent consumers of one code cannot both
// succeed.
func (b *BackupCodeStore) Consume(ctx context.Context, identity, code string) (bool, error) {
	normalized := cryptox.NormalizeBackupCode(code)
	if len(normalized) != BackupCodeLength {
		return false, nil
	}
	return b.Store.BackupCodes().ConsumeBackupCode(ctx, identity, b.Hasher.Fingerprint(identity, normalized))
}

// Remaining returns how many unused codes identity holds.
func (b *BackupCodeStore) Remaining(ctx context.Context, identity string) (int, error) {
	return b.Store.BackupCodes().CountBackupCodes(ctx, identity)
}
