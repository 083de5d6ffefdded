package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q *queries
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, identity, codeHash string, createdAt time.Time) error {
	return r.q.createBackupCode(ctx, identity, codeHash, toNanos(createdAt))
}

func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, identity, codeHash string) (bool, error) {
	n, err := r.q.consumeBackupCode(ctx, identity, codeHash)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, identity string) error {
	return r.q.deleteAllBackupCodes(ctx, identity)
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, identity string) (int, error) {
	n, err := r.q.countBackupCodes(ctx, identity)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
