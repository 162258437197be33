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

const guiaColumns = `id, numero_guia, paciente_nome, carteirinha, quantidade_autorizada,
		quantidade_executada, data_emissao, data_validade, status,
		codigo_procedimento, procedimento_nome, created_at, updated_at`

// GuiaRepository handles authorization records
type GuiaRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewGuiaRepository creates a new guia repository
func NewGuiaRepository(db *sql.DB, log *logger.Logger) *GuiaRepository {
	return &GuiaRepository{
		db:     db,
		logger: log,
	}
}

// List returns guias ordered by numero_guia
func (r *GuiaRepository) List(ctx context.Context, limit int) ([]*types.Guia, error) {
	return listGuias(ctx, r.db, limit)
}

func listGuias(ctx context.Context, q queryer, limit int) ([]*types.Guia, error) {
	query, args := limitClause(`SELECT `+guiaColumns+` FROM guias ORDER BY numero_guia`, nil, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list guias", err)
	}
	defer rows.Close()

	var guias []*types.Guia
	for rows.Next() {
		guia, err := scanGuia(rows)
		if err != nil {
			return nil, storeError("failed to scan guia", err)
		}
		guias = append(guias, guia)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate guias", err)
	}

	return guias, nil
}

// GetByNumero retrieves a guia by its authorization number
func (r *GuiaRepository) GetByNumero(ctx context.Context, numeroGuia string) (*types.Guia, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+guiaColumns+` FROM guias WHERE numero_guia = $1`, numeroGuia)

	guia, err := scanGuia(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("guia not found: %s", numeroGuia))
		}
		return nil, storeError("failed to get guia", err)
	}

	return guia, nil
}

// Upsert creates the guia or updates the one with the same numero_guia
func (r *GuiaRepository) Upsert(ctx context.Context, guia *types.Guia) (*types.Guia, error) {
	if guia.ID == "" {
		guia.ID = uuid.New().String()
	}
	if guia.Status == "" {
		guia.Status = types.GuiaPendente
	}
	now := time.Now()
	guia.CreatedAt = now
	guia.UpdatedAt = now

	query := `
		INSERT INTO guias (
			id, numero_guia, paciente_nome, carteirinha, quantidade_autorizada,
			quantidade_executada, data_emissao, data_validade, status,
			codigo_procedimento, procedimento_nome, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (numero_guia) DO UPDATE SET
			paciente_nome = EXCLUDED.paciente_nome,
			carteirinha = EXCLUDED.carteirinha,
			quantidade_autorizada = EXCLUDED.quantidade_autorizada,
			quantidade_executada = EXCLUDED.quantidade_executada,
			data_emissao = EXCLUDED.data_emissao,
			data_validade = EXCLUDED.data_validade,
			status = EXCLUDED.status,
			codigo_procedimento = EXCLUDED.codigo_procedimento,
			procedimento_nome = EXCLUDED.procedimento_nome,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		guia.ID,
		guia.NumeroGuia,
		guia.PacienteNome,
		guia.Carteirinha,
		guia.QuantidadeAutorizada,
		guia.QuantidadeExecutada,
		nullIfEmpty(guia.DataEmissao),
		nullIfEmpty(guia.DataValidade),
		string(guia.Status),
		nullIfEmpty(guia.CodigoProcedimento),
		nullIfEmpty(guia.ProcedimentoNome),
		guia.CreatedAt,
		guia.UpdatedAt,
	).Scan(&guia.ID, &guia.CreatedAt, &guia.UpdatedAt)
	if err != nil {
		return nil, storeError("failed to upsert guia", err)
	}

	r.logger.WithFields(map[string]interface{}{"numero_guia": guia.NumeroGuia}).Debug("Upserted guia")
	return guia, nil
}

// Delete removes a guia by number
func (r *GuiaRepository) Delete(ctx context.Context, numeroGuia string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM guias WHERE numero_guia = $1`, numeroGuia)
	if err != nil {
		return storeError("failed to delete guia", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("guia not found: %s", numeroGuia))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGuia(row rowScanner) (*types.Guia, error) {
	guia := &types.Guia{}
	var dataEmissao, dataValidade, codigoProcedimento, procedimentoNome sql.NullString
	var status string

	err := row.Scan(
		&guia.ID,
		&guia.NumeroGuia,
		&guia.PacienteNome,
		&guia.Carteirinha,
		&guia.QuantidadeAutorizada,
		&guia.QuantidadeExecutada,
		&dataEmissao,
		&dataValidade,
		&status,
		&codigoProcedimento,
		&procedimentoNome,
		&guia.CreatedAt,
		&guia.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	guia.DataEmissao = dataEmissao.String
	guia.DataValidade = dataValidade.String
	guia.Status = types.GuiaStatus(status)
	guia.CodigoProcedimento = codigoProcedimento.String
	guia.ProcedimentoNome = procedimentoNome.String
	return guia, nil
}
