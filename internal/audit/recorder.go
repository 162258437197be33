package audit

import (
	"context"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/repository"
	"github.com/medrex/clinic-audit/pkg/types"
)

// Recorder keeps the latest run summary
type Recorder struct {
	auditorias repository.AuditoriaRepositoryInterface
	logger     *logger.Logger
}

// NewRecorder creates a new recorder
func NewRecorder(auditorias repository.AuditoriaRepositoryInterface, log *logger.Logger) *Recorder {
	return &Recorder{
		auditorias: auditorias,
		logger:     log,
	}
}

// Record stores run as the only summary
func (r *Recorder) Record(ctx context.Context, run *types.AuditoriaExecucao) error {
	run.DivergenciasPorTipo = types.ZeroFilledCounts(run.DivergenciasPorTipo)
	return r.auditorias.ReplaceLast(ctx, run)
}

// Last returns the latest summary, or zeroed defaults before the first run
func (r *Recorder) Last(ctx context.Context) (*types.AuditoriaExecucao, error) {
	run, err := r.auditorias.GetLast(ctx)
	if err != nil {
		if types.IsNotFound(err) {
			return types.EmptyAuditoria(), nil
		}
		return nil, err
	}
	run.DivergenciasPorTipo = types.ZeroFilledCounts(run.DivergenciasPorTipo)
	return run, nil
}
