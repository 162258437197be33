package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

const execucaoColumns = `id, numero_guia, codigo_ficha, paciente_nome, carteirinha, data_execucao, created_at`

const insertExecucao = `
		INSERT INTO execucoes (
			id, numero_guia, codigo_ficha, paciente_nome, carteirinha, data_execucao, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

// ExecucaoRepository handles sessions recorded by the insurance system
type ExecucaoRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewExecucaoRepository creates a new execucao repository
func NewExecucaoRepository(db *sql.DB, log *logger.Logger) *ExecucaoRepository {
	return &ExecucaoRepository{
		db:     db,
		logger: log,
	}
}

// List returns execucoes in import order
func (r *ExecucaoRepository) List(ctx context.Context, limit int) ([]*types.Execucao, error) {
	return listExecucoes(ctx, r.db, limit)
}

func listExecucoes(ctx context.Context, q queryer, limit int) ([]*types.Execucao, error) {
	query, args := limitClause(`SELECT `+execucaoColumns+` FROM execucoes ORDER BY created_at, id`, nil, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list execucoes", err)
	}
	defer rows.Close()

	var execucoes []*types.Execucao
	for rows.Next() {
		execucao := &types.Execucao{}
		var codigoFicha, dataExecucao sql.NullString
		if err := rows.Scan(
			&execucao.ID,
			&execucao.NumeroGuia,
			&codigoFicha,
			&execucao.PacienteNome,
			&execucao.Carteirinha,
			&dataExecucao,
			&execucao.CreatedAt,
		); err != nil {
			return nil, storeError("failed to scan execucao", err)
		}
		execucao.CodigoFicha = codigoFicha.String
		execucao.DataExecucao = dataExecucao.String
		execucoes = append(execucoes, execucao)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate execucoes", err)
	}

	return execucoes, nil
}

// Create inserts one execucao
func (r *ExecucaoRepository) Create(ctx context.Context, execucao *types.Execucao) (*types.Execucao, error) {
	prepareExecucao(execucao, time.Now())

	if _, err := r.db.ExecContext(ctx, insertExecucao, execucaoArgs(execucao)...); err != nil {
		return nil, storeError("failed to create execucao", err)
	}

	return execucao, nil
}

// DeleteAll clears the collection ahead of a re-import
func (r *ExecucaoRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM execucoes`)
	if err != nil {
		return 0, storeError("failed to delete execucoes", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("failed to get rows affected", err)
	}

	r.logger.WithFields(map[string]interface{}{"rows": rowsAffected}).Info("Cleared execucoes")
	return rowsAffected, nil
}

// ReplaceAll clears the collection and inserts execucoes in one transaction
func (r *ExecucaoRepository) ReplaceAll(ctx context.Context, execucoes []*types.Execucao) (int, error) {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM execucoes`); err != nil {
		return 0, storeError("failed to delete execucoes", err)
	}

	// created_at is spaced by a microsecond so List keeps sheet order
	now := time.Now()
	for i, execucao := range execucoes {
		prepareExecucao(execucao, now.Add(time.Duration(i)*time.Microsecond))
		if _, err := tx.ExecContext(ctx, insertExecucao, execucaoArgs(execucao)...); err != nil {
			return 0, storeError(fmt.Sprintf("failed to insert execucao %d", i+1), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeError("failed to commit execucoes", err)
	}

	r.logger.DatabaseOperation(ctx, "replace_all", "execucoes", time.Since(start).Milliseconds(), int64(len(execucoes)), true, nil)
	return len(execucoes), nil
}

func prepareExecucao(execucao *types.Execucao, createdAt time.Time) {
	if execucao.ID == "" {
		execucao.ID = uuid.New().String()
	}
	execucao.CreatedAt = createdAt
}

func execucaoArgs(execucao *types.Execucao) []interface{} {
	return []interface{}{
		execucao.ID,
		execucao.NumeroGuia,
		nullIfEmpty(execucao.CodigoFicha),
		execucao.PacienteNome,
		execucao.Carteirinha,
		nullIfEmpty(execucao.DataExecucao),
		execucao.CreatedAt,
	}
}
