package postgres

import (
	"context"
	"fmt"
	"time"
)

type backupCodesRepo struct {
	q querier
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, identity, codeHash string, createdAt time.Time) error {
	query := `INSERT INTO backup_codes (identity, code_hash, created_at) VALUES ($1, $2, $3)`
	if _, err := r.q.Exec(ctx, query, identity, codeHash, createdAt); err != nil {
		return fmt.Errorf("failed to create backup code: %w", err)
	}
	return nil
}

func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, identity, codeHash string) (bool, error) {
	query := `DELETE FROM backup_codes WHERE identity = $1 AND code_hash = $2`
	tag, err := r.q.Exec(ctx, query, identity, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, identity string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM backup_codes WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, identity string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM backup_codes WHERE identity = $1`, identity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return n, nil
}
