package repository

import (
	"context"
	"database/sql"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

// SnapshotRepository reads the audit input in one transaction
type SnapshotRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log *logger.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: log,
	}
}

// Read lists the three collections in full inside a read-only REPEATABLE
// READ transaction, so ingestion committed between the reads is not seen
// by only some of them.
func (r *SnapshotRepository) Read(ctx context.Context) (*types.RecordSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, storeError("failed to begin snapshot", err)
	}
	defer tx.Rollback()

	snap := &types.RecordSnapshot{}

	if snap.Fichas, err = listFichas(ctx, tx, 0); err != nil {
		return nil, err
	}
	if snap.Execucoes, err = listExecucoes(ctx, tx, 0); err != nil {
		return nil, err
	}
	if snap.Guias, err = listGuias(ctx, tx, 0); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("failed to close snapshot", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"fichas":    len(snap.Fichas),
		"execucoes": len(snap.Execucoes),
		"guias":     len(snap.Guias),
	}).Debug("Read audit snapshot")

	return snap, nil
}
