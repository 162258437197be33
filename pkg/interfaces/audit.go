package interfaces

import (
	"context"

	"github.com/gorilla/mux"

	"github.com/medrex/clinic-audit/pkg/types"
)

// AuditService defines the interface for reconciliation runs and the
// divergence queue they produce
type AuditService interface {
	// Runs
	RunAudit(ctx context.Context, window *types.DateWindow) (*types.AuditResult, error)
	LastRun(ctx context.Context) (*types.AuditoriaExecucao, error)

	// Divergence queue
	ListDivergencias(ctx context.Context, filters *types.DivergenciaFilters, page, perPage int) (*types.DivergenciaPage, error)
	UpdateDivergenciaStatus(ctx context.Context, id string, status types.DivergenciaStatus, actor string) error

	RegisterRoutes(router *mux.Router)
}

// IngestService defines the interface for loading producer data
type IngestService interface {
	ImportFichas(ctx context.Context, fichas []*types.Ficha) *types.ImportReport
	ImportExecucoes(ctx context.Context, execucoes []*types.Execucao, substituir bool) (*types.ImportReport, error)
	ImportGuias(ctx context.Context, guias []*types.Guia) *types.ImportReport
	GetFicha(ctx context.Context, codigo string) (*types.Ficha, error)
	GetGuia(ctx context.Context, numero string) (*types.Guia, error)
	DeleteFicha(ctx context.Context, codigo, actor string) error
	DeleteGuia(ctx context.Context, numero, actor string) error

	RegisterRoutes(router *mux.Router)
}
