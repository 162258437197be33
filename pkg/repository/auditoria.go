package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

// AuditoriaRepository keeps the summary of the most recent audit run
type AuditoriaRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAuditoriaRepository creates a new auditoria repository
func NewAuditoriaRepository(db *sql.DB, log *logger.Logger) *AuditoriaRepository {
	return &AuditoriaRepository{
		db:     db,
		logger: log,
	}
}

// ReplaceLast drops prior summaries and stores run as the only one
func (r *AuditoriaRepository) ReplaceLast(ctx context.Context, run *types.AuditoriaExecucao) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	counts, err := json.Marshal(types.ZeroFilledCounts(run.DivergenciasPorTipo))
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode divergencias_por_tipo", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM auditoria_execucoes`); err != nil {
		return storeError("failed to clear auditoria_execucoes", err)
	}

	query := `
		INSERT INTO auditoria_execucoes (
			id, data_execucao, data_inicio, data_fim, total_protocolos, total_divergencias,
			divergencias_por_tipo, total_fichas, total_execucoes, total_resolvidas, duracao_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.ExecContext(ctx, query,
		run.ID,
		run.DataExecucao,
		nullIfNil(run.DataInicio),
		nullIfNil(run.DataFim),
		run.TotalRegistros,
		run.TotalDivergencias,
		string(counts),
		run.TotalFichas,
		run.TotalExecucoes,
		run.TotalResolvidas,
		run.DuracaoMs,
	)
	if err != nil {
		return storeError("failed to insert auditoria_execucao", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("failed to commit auditoria_execucao", err)
	}

	return nil
}

// GetLast returns the most recent run summary
func (r *AuditoriaRepository) GetLast(ctx context.Context) (*types.AuditoriaExecucao, error) {
	query := `
		SELECT id, data_execucao, data_inicio, data_fim, total_protocolos, total_divergencias,
			divergencias_por_tipo, total_fichas, total_execucoes, total_resolvidas, duracao_ms
		FROM auditoria_execucoes
		ORDER BY data_execucao DESC
		LIMIT 1`

	run := &types.AuditoriaExecucao{}
	var dataInicio, dataFim sql.NullString
	var counts []byte

	err := r.db.QueryRowContext(ctx, query).Scan(
		&run.ID,
		&run.DataExecucao,
		&dataInicio,
		&dataFim,
		&run.TotalRegistros,
		&run.TotalDivergencias,
		&counts,
		&run.TotalFichas,
		&run.TotalExecucoes,
		&run.TotalResolvidas,
		&run.DuracaoMs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "no audit run recorded")
		}
		return nil, storeError("failed to get last auditoria_execucao", err)
	}

	run.DataInicio = ptrFromNull(dataInicio)
	run.DataFim = ptrFromNull(dataFim)

	var byType map[string]int
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &byType); err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, fmt.Sprintf("invalid divergencias_por_tipo: %s", string(counts)), err)
		}
	}
	run.DivergenciasPorTipo = types.ZeroFilledCounts(byType)

	return run, nil
}
