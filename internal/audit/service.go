package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medrex/clinic-audit/internal/normalize"
	"github.com/medrex/clinic-audit/pkg/config"
	"github.com/medrex/clinic-audit/pkg/interfaces"
	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/monitoring"
	"github.com/medrex/clinic-audit/pkg/repository"
	"github.com/medrex/clinic-audit/pkg/types"
)

var _ interfaces.AuditService = (*Service)(nil)

// Repositories groups the record store handles the service reads and writes
type Repositories struct {
	Snapshots    repository.SnapshotRepositoryInterface
	Fichas       repository.FichaRepositoryInterface
	Divergencias repository.DivergenciaRepositoryInterface
	Auditorias   repository.AuditoriaRepositoryInterface
}

// Service runs audits and serves their results
type Service struct {
	config    *config.AuditConfig
	logger    *logger.Logger
	repos     Repositories
	matcher   *Matcher
	registrar *Registrar
	recorder  *Recorder
	gate      RunGate
	metrics   *monitoring.MetricsCollector
	now       func() time.Time
}

// New creates a new audit service
func New(cfg *config.AuditConfig, log *logger.Logger, repos Repositories, gate RunGate, metrics *monitoring.MetricsCollector) *Service {
	return &Service{
		config:    cfg,
		logger:    log,
		repos:     repos,
		matcher:   NewMatcher(log, cfg.Location()),
		registrar: NewRegistrar(repos.Divergencias, repos.Fichas, log),
		recorder:  NewRecorder(repos.Auditorias, log),
		gate:      gate,
		metrics:   metrics,
		now:       time.Now,
	}
}

// RunAudit rebuilds the divergence collection from the current records. The
// result is always populated; err carries the classified failure.
func (s *Service) RunAudit(ctx context.Context, window *types.DateWindow) (*types.AuditResult, error) {
	window, err := canonicalWindow(window)
	if err != nil {
		return failed(err), err
	}

	lease, err := s.gate.Acquire(ctx)
	if err != nil {
		if types.IsConcurrency(err) {
			s.metrics.RecordAuditRejected()
		}
		s.logger.WithComponent("audit").WithError(err).Warn("Audit run not started")
		return failed(err), err
	}
	defer func() {
		if relErr := lease.Release(context.Background()); relErr != nil {
			s.logger.WithComponent("audit").WithError(relErr).Error("Failed to release audit gate")
		}
	}()

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeoutDuration())
	defer cancel()
	runCtx = context.WithValue(runCtx, logger.RunIDKey, runID)

	runCtx, span := s.metrics.Tracing().StartSpan(runCtx, "audit.run", trace.WithAttributes(
		attribute.String("audit.run_id", runID),
		attribute.String("audit.data_inicio", windowBound(window, true)),
		attribute.String("audit.data_fim", windowBound(window, false)),
	))
	defer span.End()

	start := s.now()
	summary, rebuild, err := s.run(runCtx, runID, start, window)
	duration := s.now().Sub(start)

	if err != nil {
		s.metrics.Tracing().RecordError(span, err)
		s.metrics.RecordAuditRun(false, duration, nil, 0, 0)
		s.logger.AuditRun(runCtx, runID, false, duration.Milliseconds(), nil, map[string]interface{}{
			"error": err.Error(),
		})
		return failed(err), err
	}

	summary.DuracaoMs = duration.Milliseconds()
	span.SetAttributes(
		attribute.Int("audit.divergencias", summary.TotalDivergencias),
		attribute.Int("audit.falhas", rebuild.Falhas),
	)

	recErr := s.metrics.ObserveDB(runCtx, "record_run", func(ctx context.Context) error {
		return s.recorder.Record(ctx, summary)
	})
	if recErr != nil {
		// the rebuild is committed; only the summary is stale
		s.metrics.RecordSystemError("record_run_failed", "audit")
		s.logger.WithContext(runCtx).WithError(recErr).Error("Failed to record audit run summary")
	}

	s.metrics.RecordAuditRun(true, duration, summary.DivergenciasPorTipo, summary.TotalFichas, summary.TotalExecucoes)
	s.logger.AuditRun(runCtx, runID, true, summary.DuracaoMs, summary.DivergenciasPorTipo, map[string]interface{}{
		"total_divergencias": summary.TotalDivergencias,
		"falhas":             rebuild.Falhas,
	})

	return &types.AuditResult{
		Success:  true,
		Summary:  summary,
		Gravadas: rebuild.Gravadas,
		Falhas:   rebuild.Falhas,
	}, nil
}

func (s *Service) run(ctx context.Context, runID string, start time.Time, window *types.DateWindow) (*types.AuditoriaExecucao, *RebuildResult, error) {
	snap, err := s.readSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	// read before the rebuild replaces the collection
	var resolvidas int
	err = s.metrics.ObserveDB(ctx, "count_resolvidas", func(ctx context.Context) error {
		var countErr error
		resolvidas, countErr = s.repos.Divergencias.CountByStatus(ctx, types.DivergenciaResolvida)
		return countErr
	})
	if err != nil {
		return nil, nil, err
	}

	_, matchSpan := s.metrics.Tracing().StartSpan(ctx, "audit.match")
	match := s.matcher.Match(snap, start, window)
	matchSpan.SetAttributes(
		attribute.Int("audit.findings", len(match.Findings)),
		attribute.Int("audit.descartados", match.Descartados),
	)
	matchSpan.End()

	var rebuild *RebuildResult
	err = s.metrics.ObserveDB(ctx, "rebuild_divergencias", func(ctx context.Context) error {
		var rebuildErr error
		rebuild, rebuildErr = s.registrar.Rebuild(ctx, match.Findings, match.FichasByCode)
		return rebuildErr
	})
	if err != nil {
		return nil, nil, err
	}

	summary := &types.AuditoriaExecucao{
		ID:                  runID,
		DataExecucao:        start,
		TotalRegistros:      match.TotalFichas + match.TotalExecucoes,
		TotalDivergencias:   rebuild.Gravadas,
		DivergenciasPorTipo: types.ZeroFilledCounts(rebuild.PorTipo),
		TotalFichas:         match.TotalFichas,
		TotalExecucoes:      match.TotalExecucoes,
		TotalResolvidas:     resolvidas,
	}
	if !window.IsZero() {
		summary.DataInicio = strPtr(window.Inicio)
		summary.DataFim = strPtr(window.Fim)
	}

	return summary, rebuild, nil
}

// readSnapshot loads the three collections in full, as of one instant
func (s *Service) readSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := s.metrics.ObserveDB(ctx, "read_snapshot", func(ctx context.Context) error {
		var err error
		snap, err = s.repos.Snapshots.Read(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// windowBound renders one side of the window for span attributes
func windowBound(window *types.DateWindow, inicio bool) string {
	if window.IsZero() {
		return ""
	}
	if inicio {
		return window.Inicio
	}
	return window.Fim
}

// LastRun returns the latest run summary
func (s *Service) LastRun(ctx context.Context) (*types.AuditoriaExecucao, error) {
	return s.recorder.Last(ctx)
}

// ListDivergencias returns one filtered page. Page defaults to 1; perPage
// falls back to the configured default and is capped at the maximum.
func (s *Service) ListDivergencias(ctx context.Context, filters *types.DivergenciaFilters, page, perPage int) (*types.DivergenciaPage, error) {
	if filters == nil {
		filters = &types.DivergenciaFilters{}
	}
	if err := s.validateFilters(filters); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = s.config.DefaultPerPage
	}
	if perPage > s.config.MaxPerPage {
		perPage = s.config.MaxPerPage
	}

	return s.repos.Divergencias.List(ctx, filters, page, perPage)
}

// UpdateDivergenciaStatus applies an operator status change on behalf of actor
func (s *Service) UpdateDivergenciaStatus(ctx context.Context, id string, status types.DivergenciaStatus, actor string) error {
	err := s.registrar.UpdateStatus(ctx, id, status, actor)
	s.metrics.RecordStatusUpdate(string(status), err == nil)
	return err
}

func (s *Service) validateFilters(filters *types.DivergenciaFilters) error {
	if filters.Status != "" && !filters.Status.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidStatus, "invalid status filter",
			map[string]interface{}{"status": string(filters.Status)})
	}
	if filters.Tipo != "" && !filters.Tipo.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invalid tipo filter",
			map[string]interface{}{"tipo": string(filters.Tipo)})
	}
	if filters.Prioridade != "" && !filters.Prioridade.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invalid prioridade filter",
			map[string]interface{}{"prioridade": string(filters.Prioridade)})
	}

	window, err := canonicalWindow(&types.DateWindow{Inicio: filters.DataInicio, Fim: filters.DataFim})
	if err != nil {
		return err
	}
	if window != nil {
		filters.DataInicio = window.Inicio
		filters.DataFim = window.Fim
	}
	return nil
}

// canonicalWindow converts both bounds to stored form. Unparsable bounds and
// inverted ranges are rejected.
func canonicalWindow(window *types.DateWindow) (*types.DateWindow, error) {
	if window.IsZero() {
		return nil, nil
	}

	out := &types.DateWindow{}
	for _, bound := range []struct {
		name string
		in   string
		out  *string
	}{
		{"data_inicio", window.Inicio, &out.Inicio},
		{"data_fim", window.Fim, &out.Fim},
	} {
		if bound.in == "" {
			continue
		}
		t, ok := normalize.ParseDate(bound.in)
		if !ok {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid date",
				map[string]interface{}{bound.name: bound.in})
		}
		*bound.out = t.Format(normalize.StorageLayout)
	}

	if out.Inicio != "" && out.Fim != "" && out.Inicio > out.Fim {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "data_inicio is after data_fim",
			map[string]interface{}{"data_inicio": out.Inicio, "data_fim": out.Fim})
	}

	return out, nil
}

func failed(err error) *types.AuditResult {
	return &types.AuditResult{Success: false, Error: err.Error()}
}
