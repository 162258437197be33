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

const fichaColumns = `id, codigo_ficha, numero_guia, paciente_nome, carteirinha,
		data_atendimento, possui_assinatura, arquivo_digitalizado, status,
		created_at, updated_at`

// FichaRepository handles attendance sheets
type FichaRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFichaRepository creates a new ficha repository
func NewFichaRepository(db *sql.DB, log *logger.Logger) *FichaRepository {
	return &FichaRepository{
		db:     db,
		logger: log,
	}
}

// List returns fichas ordered by codigo_ficha
func (r *FichaRepository) List(ctx context.Context, limit int) ([]*types.Ficha, error) {
	return listFichas(ctx, r.db, limit)
}

func listFichas(ctx context.Context, q queryer, limit int) ([]*types.Ficha, error) {
	query, args := limitClause(`SELECT `+fichaColumns+` FROM fichas ORDER BY codigo_ficha`, nil, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list fichas", err)
	}
	defer rows.Close()

	var fichas []*types.Ficha
	for rows.Next() {
		ficha, err := scanFicha(rows)
		if err != nil {
			return nil, storeError("failed to scan ficha", err)
		}
		fichas = append(fichas, ficha)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate fichas", err)
	}

	return fichas, nil
}

// GetByID retrieves a ficha by its generated id
func (r *FichaRepository) GetByID(ctx context.Context, id string) (*types.Ficha, error) {
	if !isRowID(id) {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("ficha not found: %s", id))
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+fichaColumns+` FROM fichas WHERE id = $1`, id)

	ficha, err := scanFicha(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("ficha not found: %s", id))
		}
		return nil, storeError("failed to get ficha", err)
	}

	return ficha, nil
}

// GetByCodigo retrieves a ficha by the code printed on the form
func (r *FichaRepository) GetByCodigo(ctx context.Context, codigoFicha string) (*types.Ficha, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fichaColumns+` FROM fichas WHERE codigo_ficha = $1`, codigoFicha)

	ficha, err := scanFicha(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("ficha not found with code: %s", codigoFicha))
		}
		return nil, storeError("failed to get ficha by code", err)
	}

	return ficha, nil
}

// UpsertByCodigo creates the ficha or replaces the one with the same code.
// A re-uploaded sheet goes back to its incoming status.
func (r *FichaRepository) UpsertByCodigo(ctx context.Context, ficha *types.Ficha) (*types.Ficha, error) {
	if ficha.ID == "" {
		ficha.ID = uuid.New().String()
	}
	if ficha.Status == "" {
		ficha.Status = types.FichaPendente
	}
	now := time.Now()
	ficha.CreatedAt = now
	ficha.UpdatedAt = now

	query := `
		INSERT INTO fichas (
			id, codigo_ficha, numero_guia, paciente_nome, carteirinha,
			data_atendimento, possui_assinatura, arquivo_digitalizado, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (codigo_ficha) DO UPDATE SET
			numero_guia = EXCLUDED.numero_guia,
			paciente_nome = EXCLUDED.paciente_nome,
			carteirinha = EXCLUDED.carteirinha,
			data_atendimento = EXCLUDED.data_atendimento,
			possui_assinatura = EXCLUDED.possui_assinatura,
			arquivo_digitalizado = EXCLUDED.arquivo_digitalizado,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		ficha.ID,
		ficha.CodigoFicha,
		ficha.NumeroGuia,
		ficha.PacienteNome,
		ficha.Carteirinha,
		nullIfEmpty(ficha.DataAtendimento),
		ficha.PossuiAssinatura,
		nullIfEmpty(ficha.ArquivoDigitalizado),
		string(ficha.Status),
		ficha.CreatedAt,
		ficha.UpdatedAt,
	).Scan(&ficha.ID, &ficha.CreatedAt, &ficha.UpdatedAt)
	if err != nil {
		return nil, storeError("failed to upsert ficha", err)
	}

	r.logger.WithFields(map[string]interface{}{"codigo_ficha": ficha.CodigoFicha}).Debug("Upserted ficha")
	return ficha, nil
}

// UpdateStatus sets the review status of a ficha
func (r *FichaRepository) UpdateStatus(ctx context.Context, id string, status types.FichaStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE fichas SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return storeError("failed to update ficha status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("ficha not found: %s", id))
	}

	return nil
}

// Delete removes a ficha by code
func (r *FichaRepository) Delete(ctx context.Context, codigoFicha string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM fichas WHERE codigo_ficha = $1`, codigoFicha)
	if err != nil {
		return storeError("failed to delete ficha", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("ficha not found with code: %s", codigoFicha))
	}

	r.logger.WithFields(map[string]interface{}{"codigo_ficha": codigoFicha}).Info("Deleted ficha")
	return nil
}

func scanFicha(row rowScanner) (*types.Ficha, error) {
	ficha := &types.Ficha{}
	var dataAtendimento, arquivo sql.NullString
	var status string

	err := row.Scan(
		&ficha.ID,
		&ficha.CodigoFicha,
		&ficha.NumeroGuia,
		&ficha.PacienteNome,
		&ficha.Carteirinha,
		&dataAtendimento,
		&ficha.PossuiAssinatura,
		&arquivo,
		&status,
		&ficha.CreatedAt,
		&ficha.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ficha.DataAtendimento = dataAtendimento.String
	ficha.ArquivoDigitalizado = arquivo.String
	ficha.Status = types.FichaStatus(status)
	return ficha, nil
}
