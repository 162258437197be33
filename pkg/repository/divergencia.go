package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

const divergenciaColumns = `id, numero_guia, tipo_divergencia, descricao, paciente_nome, codigo_ficha,
		data_execucao, data_atendimento, carteirinha, prioridade, status, detalhes,
		ficha_id, execucao_id, data_identificacao, data_resolucao, resolvido_por`

// DivergenciaRepository handles persisted discrepancies
type DivergenciaRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDivergenciaRepository creates a new divergencia repository
func NewDivergenciaRepository(db *sql.DB, log *logger.Logger) *DivergenciaRepository {
	return &DivergenciaRepository{
		db:     db,
		logger: log,
	}
}

// BeginRebuild opens the transaction that replaces the whole collection
func (r *DivergenciaRepository) BeginRebuild(ctx context.Context) (DivergenciaBatch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("failed to begin rebuild", err)
	}
	return &divergenciaBatch{tx: tx, logger: r.logger}, nil
}

type divergenciaBatch struct {
	tx     *sql.Tx
	logger *logger.Logger
}

func (b *divergenciaBatch) DeleteAll(ctx context.Context) (int64, error) {
	result, err := b.tx.ExecContext(ctx, `DELETE FROM divergencias`)
	if err != nil {
		return 0, storeError("failed to clear divergencias", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("failed to get rows affected", err)
	}

	return rowsAffected, nil
}

// Insert writes one divergence under a savepoint so a failure does not abort
// the surrounding transaction.
func (b *divergenciaBatch) Insert(ctx context.Context, divergencia *types.Divergencia, ordem int) error {
	if divergencia.ID == "" {
		divergencia.ID = uuid.New().String()
	}
	if divergencia.Status == "" {
		divergencia.Status = types.DivergenciaPendente
	}
	if divergencia.DataIdentificacao.IsZero() {
		divergencia.DataIdentificacao = time.Now()
	}

	detalhes, err := marshalDetalhes(divergencia.Detalhes)
	if err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "detalhes is not serializable",
			map[string]interface{}{"error": err.Error()})
	}

	if _, err := b.tx.ExecContext(ctx, `SAVEPOINT div_insert`); err != nil {
		return storeError("failed to create savepoint", err)
	}

	query := `
		INSERT INTO divergencias (
			id, numero_guia, tipo_divergencia, descricao, paciente_nome, codigo_ficha,
			data_execucao, data_atendimento, carteirinha, prioridade, status, detalhes,
			ficha_id, execucao_id, data_identificacao, ordem
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = b.tx.ExecContext(ctx, query,
		divergencia.ID,
		divergencia.NumeroGuia,
		string(divergencia.TipoDivergencia),
		divergencia.Descricao,
		divergencia.PacienteNome,
		divergencia.CodigoFicha,
		nullIfNil(divergencia.DataExecucao),
		nullIfNil(divergencia.DataAtendimento),
		divergencia.Carteirinha,
		string(divergencia.Prioridade),
		string(divergencia.Status),
		detalhes,
		nullIfNil(divergencia.FichaID),
		nullIfNil(divergencia.ExecucaoID),
		divergencia.DataIdentificacao,
		ordem,
	)
	if err != nil {
		if _, rbErr := b.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT div_insert`); rbErr != nil {
			return storeError("failed to roll back to savepoint", rbErr)
		}
		return storeError("failed to insert divergencia", err)
	}

	if _, err := b.tx.ExecContext(ctx, `RELEASE SAVEPOINT div_insert`); err != nil {
		return storeError("failed to release savepoint", err)
	}

	return nil
}

func (b *divergenciaBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return storeError("failed to commit rebuild", err)
	}
	return nil
}

func (b *divergenciaBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return storeError("failed to roll back rebuild", err)
	}
	return nil
}

// GetByID retrieves a divergence by id
func (r *DivergenciaRepository) GetByID(ctx context.Context, id string) (*types.Divergencia, error) {
	if !isRowID(id) {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("divergencia not found: %s", id))
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+divergenciaColumns+` FROM divergencias WHERE id = $1`, id)

	divergencia, err := scanDivergencia(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("divergencia not found: %s", id))
		}
		return nil, storeError("failed to get divergencia", err)
	}

	return divergencia, nil
}

// UpdateStatus applies an operator status change
func (r *DivergenciaRepository) UpdateStatus(ctx context.Context, id string, update *types.DivergenciaStatusUpdate) error {
	if !isRowID(id) {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("divergencia not found: %s", id))
	}

	setClauses := []string{"status = $1"}
	args := []interface{}{string(update.Status)}

	switch {
	case update.ClearResolution:
		setClauses = append(setClauses, "data_resolucao = NULL", "resolvido_por = NULL")
	case update.DataResolucao != nil:
		args = append(args, *update.DataResolucao, nullIfNil(update.ResolvidoPor))
		setClauses = append(setClauses,
			fmt.Sprintf("data_resolucao = $%d", len(args)-1),
			fmt.Sprintf("resolvido_por = $%d", len(args)),
		)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE divergencias SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("failed to update divergencia status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("divergencia not found: %s", id))
	}

	return nil
}

// List returns one page of divergences in finding order
func (r *DivergenciaRepository) List(ctx context.Context, filters *types.DivergenciaFilters, page, perPage int) (*types.DivergenciaPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	where, args := divergenciaWhere(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM divergencias` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, storeError("failed to count divergencias", err)
	}

	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM divergencias%s ORDER BY ordem, id LIMIT $%d OFFSET $%d`,
		divergenciaColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list divergencias", err)
	}
	defer rows.Close()

	items := make([]*types.Divergencia, 0, perPage)
	for rows.Next() {
		divergencia, err := scanDivergencia(rows)
		if err != nil {
			return nil, storeError("failed to scan divergencia", err)
		}
		items = append(items, divergencia)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate divergencias", err)
	}

	return &types.DivergenciaPage{
		Items:      items,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// CountByStatus counts divergences in the given status
func (r *DivergenciaRepository) CountByStatus(ctx context.Context, status types.DivergenciaStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM divergencias WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, storeError("failed to count divergencias by status", err)
	}
	return count, nil
}

func divergenciaWhere(filters *types.DivergenciaFilters) (string, []interface{}) {
	if filters == nil {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	add := func(cond string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filters.Status != "" {
		add("status = $%d", string(filters.Status))
	}
	if filters.Tipo != "" {
		add("tipo_divergencia = $%d", string(filters.Tipo))
	}
	if filters.Prioridade != "" {
		add("prioridade = $%d", string(filters.Prioridade))
	}
	if filters.DataInicio != "" {
		add("COALESCE(data_execucao, data_atendimento) >= $%d", filters.DataInicio)
	}
	if filters.DataFim != "" {
		add("COALESCE(data_execucao, data_atendimento) <= $%d", filters.DataFim)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func marshalDetalhes(detalhes map[string]interface{}) (interface{}, error) {
	if len(detalhes) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(detalhes)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func scanDivergencia(row rowScanner) (*types.Divergencia, error) {
	divergencia := &types.Divergencia{}
	var tipo, prioridade, status string
	var dataExecucao, dataAtendimento, detalhes, fichaID, execucaoID, resolvidoPor sql.NullString
	var dataResolucao sql.NullTime

	err := row.Scan(
		&divergencia.ID,
		&divergencia.NumeroGuia,
		&tipo,
		&divergencia.Descricao,
		&divergencia.PacienteNome,
		&divergencia.CodigoFicha,
		&dataExecucao,
		&dataAtendimento,
		&divergencia.Carteirinha,
		&prioridade,
		&status,
		&detalhes,
		&fichaID,
		&execucaoID,
		&divergencia.DataIdentificacao,
		&dataResolucao,
		&resolvidoPor,
	)
	if err != nil {
		return nil, err
	}

	divergencia.TipoDivergencia = types.TipoDivergencia(tipo)
	divergencia.Prioridade = types.Prioridade(prioridade)
	divergencia.Status = types.DivergenciaStatus(status)
	divergencia.DataExecucao = ptrFromNull(dataExecucao)
	divergencia.DataAtendimento = ptrFromNull(dataAtendimento)
	divergencia.FichaID = ptrFromNull(fichaID)
	divergencia.ExecucaoID = ptrFromNull(execucaoID)
	divergencia.ResolvidoPor = ptrFromNull(resolvidoPor)
	if dataResolucao.Valid {
		t := dataResolucao.Time
		divergencia.DataResolucao = &t
	}

	if detalhes.Valid && detalhes.String != "" {
		if err := json.Unmarshal([]byte(detalhes.String), &divergencia.Detalhes); err != nil {
			return nil, fmt.Errorf("failed to decode detalhes: %w", err)
		}
	}

	return divergencia, nil
}
