package repository

import (
	"context"

	"github.com/medrex/clinic-audit/pkg/types"
)

// A limit <= 0 on List means "return everything". The audit engine relies on
// this to read complete snapshots.

// GuiaRepositoryInterface defines the interface for authorization records
type GuiaRepositoryInterface interface {
	List(ctx context.Context, limit int) ([]*types.Guia, error)
	GetByNumero(ctx context.Context, numeroGuia string) (*types.Guia, error)
	Upsert(ctx context.Context, guia *types.Guia) (*types.Guia, error)
	Delete(ctx context.Context, numeroGuia string) error
}

// FichaRepositoryInterface defines the interface for attendance sheets
type FichaRepositoryInterface interface {
	List(ctx context.Context, limit int) ([]*types.Ficha, error)
	GetByID(ctx context.Context, id string) (*types.Ficha, error)
	GetByCodigo(ctx context.Context, codigoFicha string) (*types.Ficha, error)
	UpsertByCodigo(ctx context.Context, ficha *types.Ficha) (*types.Ficha, error)
	UpdateStatus(ctx context.Context, id string, status types.FichaStatus) error
	Delete(ctx context.Context, codigoFicha string) error
}

// ExecucaoRepositoryInterface defines the interface for insurance executions
type ExecucaoRepositoryInterface interface {
	List(ctx context.Context, limit int) ([]*types.Execucao, error)
	Create(ctx context.Context, execucao *types.Execucao) (*types.Execucao, error)
	DeleteAll(ctx context.Context) (int64, error)
	ReplaceAll(ctx context.Context, execucoes []*types.Execucao) (int, error)
}

// SnapshotRepositoryInterface reads every ficha, execucao and guia as of a
// single point in time
type SnapshotRepositoryInterface interface {
	Read(ctx context.Context) (*types.RecordSnapshot, error)
}

// DivergenciaBatch is an open rebuild of the divergence collection. Nothing
// is visible to readers until Commit. A failed Insert is rolled back on its
// own and leaves the batch usable.
type DivergenciaBatch interface {
	DeleteAll(ctx context.Context) (int64, error)
	Insert(ctx context.Context, divergencia *types.Divergencia, ordem int) error
	Commit() error
	Rollback() error
}

// DivergenciaRepositoryInterface defines the interface for discrepancies
type DivergenciaRepositoryInterface interface {
	BeginRebuild(ctx context.Context) (DivergenciaBatch, error)
	GetByID(ctx context.Context, id string) (*types.Divergencia, error)
	UpdateStatus(ctx context.Context, id string, update *types.DivergenciaStatusUpdate) error
	List(ctx context.Context, filters *types.DivergenciaFilters, page, perPage int) (*types.DivergenciaPage, error)
	CountByStatus(ctx context.Context, status types.DivergenciaStatus) (int, error)
}

// AuditoriaRepositoryInterface defines the interface for audit run summaries
type AuditoriaRepositoryInterface interface {
	ReplaceLast(ctx context.Context, run *types.AuditoriaExecucao) error
	GetLast(ctx context.Context) (*types.AuditoriaExecucao, error)
}
