package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/medrex/clinic-audit/pkg/config"
	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/monitoring"
	"github.com/medrex/clinic-audit/pkg/types"
)

type testRepos struct {
	snapshots    *MockSnapshotRepository
	fichas       *MockFichaRepository
	divergencias *MockDivergenciaRepository
	auditorias   *MockAuditoriaRepository
}

// Test setup helper
func setupTestService() (*Service, *testRepos, *prometheus.Registry) {
	cfg := &config.AuditConfig{
		RunTimeout:     60,
		LockTTL:        120,
		DefaultPerPage: 50,
		MaxPerPage:     500,
	}
	repos := &testRepos{
		snapshots:    &MockSnapshotRepository{},
		fichas:       &MockFichaRepository{},
		divergencias: &MockDivergenciaRepository{},
		auditorias:   &MockAuditoriaRepository{},
	}
	reg := prometheus.NewRegistry()

	service := New(cfg, logger.New("error"), Repositories{
		Snapshots:    repos.snapshots,
		Fichas:       repos.fichas,
		Divergencias: repos.divergencias,
		Auditorias:   repos.auditorias,
	}, NewLocalGate(), monitoring.NewMetricsCollector("clinic-audit-test", reg))
	service.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	service.registrar.now = service.now

	return service, repos, reg
}

// expectSnapshot wires the snapshot read
func (r *testRepos) expectSnapshot(fichas []*types.Ficha, execucoes []*types.Execucao, guias []*types.Guia) {
	r.snapshots.On("Read", mock.Anything).Return(&types.RecordSnapshot{
		Fichas:    fichas,
		Execucoes: execucoes,
		Guias:     guias,
	}, nil)
}

func TestRunAudit_EmptyStore(t *testing.T) {
	service, repos, _ := setupTestService()
	batch := &MockDivergenciaBatch{}

	repos.expectSnapshot(nil, nil, nil)
	repos.divergencias.On("CountByStatus", mock.Anything, types.DivergenciaResolvida).Return(0, nil)
	repos.divergencias.On("BeginRebuild", mock.Anything).Return(batch, nil)
	batch.On("DeleteAll", mock.Anything).Return(int64(7), nil)
	batch.On("Commit").Return(nil)
	repos.auditorias.On("ReplaceLast", mock.Anything, mock.AnythingOfType("*types.AuditoriaExecucao")).Return(nil)

	result, err := service.RunAudit(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 0, result.Summary.TotalDivergencias)
	assert.Equal(t, 0, result.Summary.TotalRegistros)
	assert.Len(t, result.Summary.DivergenciasPorTipo, len(types.TiposDivergencia()))
	for tipo, count := range result.Summary.DivergenciasPorTipo {
		assert.Equal(t, 0, count, tipo)
	}
	assert.Nil(t, result.Summary.DataInicio)
	repos.auditorias.AssertExpectations(t)
}

func TestRunAudit_Summary(t *testing.T) {
	service, repos, _ := setupTestService()
	batch := &MockDivergenciaBatch{}

	repos.expectSnapshot(
		[]*types.Ficha{
			signedFicha("F001", "G1", "2024-01-05"),
			{ID: "ficha-F002", CodigoFicha: "F002", NumeroGuia: "G1", DataAtendimento: "2024-01-07"},
		},
		[]*types.Execucao{execucao("F001", "G1", "2024-01-06")},
		[]*types.Guia{{NumeroGuia: "G1", QuantidadeAutorizada: 10}},
	)
	repos.divergencias.On("CountByStatus", mock.Anything, types.DivergenciaResolvida).Return(3, nil)
	repos.divergencias.On("BeginRebuild", mock.Anything).Return(batch, nil)
	batch.On("DeleteAll", mock.Anything).Return(int64(0), nil)
	batch.On("Insert", mock.Anything, mock.AnythingOfType("*types.Divergencia"), mock.AnythingOfType("int")).Return(nil)
	batch.On("Commit").Return(nil)

	var recorded *types.AuditoriaExecucao
	repos.auditorias.On("ReplaceLast", mock.Anything, mock.AnythingOfType("*types.AuditoriaExecucao")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*types.AuditoriaExecucao) }).
		Return(nil)

	result, err := service.RunAudit(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Gravadas)
	assert.Equal(t, 0, result.Falhas)

	summary := result.Summary
	assert.Same(t, summary, recorded)
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, 3, summary.TotalRegistros)
	assert.Equal(t, 2, summary.TotalFichas)
	assert.Equal(t, 1, summary.TotalExecucoes)
	assert.Equal(t, 3, summary.TotalDivergencias)
	assert.Equal(t, 3, summary.TotalResolvidas)
	assert.Equal(t, 1, summary.DivergenciasPorTipo["data_divergente"])
	assert.Equal(t, 1, summary.DivergenciasPorTipo["ficha_sem_assinatura"])
	assert.Equal(t, 1, summary.DivergenciasPorTipo["ficha_sem_execucao"])
	assert.Equal(t, 0, summary.DivergenciasPorTipo["duplicidade"])
	batch.AssertNumberOfCalls(t, "Insert", 3)
}

func TestRunAudit_WindowIsCanonicalized(t *testing.T) {
	service, repos, _ := setupTestService()
	batch := &MockDivergenciaBatch{}

	repos.expectSnapshot(nil, nil, nil)
	repos.divergencias.On("CountByStatus", mock.Anything, types.DivergenciaResolvida).Return(0, nil)
	repos.divergencias.On("BeginRebuild", mock.Anything).Return(batch, nil)
	batch.On("DeleteAll", mock.Anything).Return(int64(0), nil)
	batch.On("Commit").Return(nil)
	repos.auditorias.On("ReplaceLast", mock.Anything, mock.Anything).Return(nil)

	result, err := service.RunAudit(context.Background(), &types.DateWindow{Inicio: "01/01/2024", Fim: "2024-01-31"})

	require.NoError(t, err)
	require.NotNil(t, result.Summary.DataInicio)
	assert.Equal(t, "2024-01-01", *result.Summary.DataInicio)
	assert.Equal(t, "2024-01-31", *result.Summary.DataFim)
}

func TestRunAudit_InvalidWindow(t *testing.T) {
	service, repos, _ := setupTestService()

	tests := []struct {
		name   string
		window *types.DateWindow
	}{
		{"unparsable", &types.DateWindow{Inicio: "janeiro"}},
		{"inverted", &types.DateWindow{Inicio: "2024-02-01", Fim: "2024-01-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.RunAudit(context.Background(), tt.window)

			assert.True(t, types.IsValidation(err))
			assert.False(t, result.Success)
			assert.NotEmpty(t, result.Error)
		})
	}
	repos.fichas.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestRunAudit_RejectedWhileRunning(t *testing.T) {
	service, repos, reg := setupTestService()
	ctx := context.Background()

	held, err := service.gate.Acquire(ctx)
	require.NoError(t, err)
	defer held.Release(ctx)

	result, err := service.RunAudit(ctx, nil)

	assert.True(t, types.IsConcurrency(err))
	assert.False(t, result.Success)
	repos.fichas.AssertNotCalled(t, "List", mock.Anything, mock.Anything)

	count, err := testutil.GatherAndCount(reg, "audit_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunAudit_SnapshotFailureLeavesStoreUntouched(t *testing.T) {
	service, repos, _ := setupTestService()

	repos.snapshots.On("Read", mock.Anything).Return(nil,
		types.NewStoreError(types.ErrCodeStoreFailure, "failed to list fichas", errors.New("connection refused")))

	result, err := service.RunAudit(context.Background(), nil)

	assert.True(t, types.IsStore(err))
	assert.False(t, result.Success)
	repos.divergencias.AssertNotCalled(t, "BeginRebuild", mock.Anything)
	repos.auditorias.AssertNotCalled(t, "ReplaceLast", mock.Anything, mock.Anything)

	// the gate is free again
	lease, err := service.gate.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(context.Background())
}

func TestRunAudit_RecorderFailureKeepsSuccess(t *testing.T) {
	service, repos, _ := setupTestService()
	batch := &MockDivergenciaBatch{}

	repos.expectSnapshot(nil, nil, nil)
	repos.divergencias.On("CountByStatus", mock.Anything, types.DivergenciaResolvida).Return(0, nil)
	repos.divergencias.On("BeginRebuild", mock.Anything).Return(batch, nil)
	batch.On("DeleteAll", mock.Anything).Return(int64(0), nil)
	batch.On("Commit").Return(nil)
	repos.auditorias.On("ReplaceLast", mock.Anything, mock.Anything).
		Return(types.NewStoreError(types.ErrCodeStoreFailure, "failed to record run", errors.New("disk full")))

	result, err := service.RunAudit(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRunAudit_Idempotent(t *testing.T) {
	service, repos, _ := setupTestService()
	batch := &MockDivergenciaBatch{}

	repos.expectSnapshot(
		[]*types.Ficha{{ID: "ficha-A", CodigoFicha: "A", NumeroGuia: "G1"}},
		[]*types.Execucao{execucao("B", "G1", "2024-01-05")},
		[]*types.Guia{{NumeroGuia: "G1", QuantidadeAutorizada: 0, DataValidade: "2020-01-01"}},
	)
	repos.divergencias.On("CountByStatus", mock.Anything, types.DivergenciaResolvida).Return(0, nil)
	repos.divergencias.On("BeginRebuild", mock.Anything).Return(batch, nil)
	batch.On("DeleteAll", mock.Anything).Return(int64(0), nil)
	batch.On("Commit").Return(nil)
	repos.auditorias.On("ReplaceLast", mock.Anything, mock.Anything).Return(nil)

	var inserted []types.Divergencia
	batch.On("Insert", mock.Anything, mock.AnythingOfType("*types.Divergencia"), mock.AnythingOfType("int")).
		Run(func(args mock.Arguments) { inserted = append(inserted, *args.Get(1).(*types.Divergencia)) }).
		Return(nil)

	_, err := service.RunAudit(context.Background(), nil)
	require.NoError(t, err)
	first := inserted
	inserted = nil

	_, err = service.RunAudit(context.Background(), nil)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.Equal(t, first, inserted)
}

func TestLastRun(t *testing.T) {
	service, repos, _ := setupTestService()
	ctx := context.Background()

	repos.auditorias.On("GetLast", ctx).Return(&types.AuditoriaExecucao{
		ID:                  "run-1",
		TotalDivergencias:   4,
		DivergenciasPorTipo: map[string]int{"guia_vencida": 4},
	}, nil)

	run, err := service.LastRun(ctx)

	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 4, run.DivergenciasPorTipo["guia_vencida"])
	assert.Equal(t, 0, run.DivergenciasPorTipo["data_divergente"])
}

func TestListDivergencias_Pagination(t *testing.T) {
	tests := []struct {
		name        string
		page        int
		perPage     int
		wantPage    int
		wantPerPage int
	}{
		{"defaults", 0, 0, 1, 50},
		{"explicit", 3, 20, 3, 20},
		{"capped", 1, 10000, 1, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repos, _ := setupTestService()
			ctx := context.Background()

			repos.divergencias.On("List", ctx, mock.AnythingOfType("*types.DivergenciaFilters"), tt.wantPage, tt.wantPerPage).
				Return(&types.DivergenciaPage{Page: tt.wantPage, PerPage: tt.wantPerPage}, nil)

			page, err := service.ListDivergencias(ctx, nil, tt.page, tt.perPage)

			require.NoError(t, err)
			assert.Equal(t, tt.wantPerPage, page.PerPage)
			repos.divergencias.AssertExpectations(t)
		})
	}
}

func TestListDivergencias_Filters(t *testing.T) {
	service, repos, _ := setupTestService()
	ctx := context.Background()

	repos.divergencias.On("List", ctx, mock.MatchedBy(func(f *types.DivergenciaFilters) bool {
		return f.DataInicio == "2024-01-05" && f.DataFim == "2024-01-31" && f.Status == types.DivergenciaPendente
	}), 1, 50).Return(&types.DivergenciaPage{}, nil)

	_, err := service.ListDivergencias(ctx, &types.DivergenciaFilters{
		Status:     types.DivergenciaPendente,
		DataInicio: "05/01/2024",
		DataFim:    "2024-01-31",
	}, 1, 0)

	require.NoError(t, err)
	repos.divergencias.AssertExpectations(t)
}

func TestListDivergencias_InvalidFilters(t *testing.T) {
	service, repos, _ := setupTestService()

	tests := []struct {
		name    string
		filters *types.DivergenciaFilters
	}{
		{"status", &types.DivergenciaFilters{Status: "aberta"}},
		{"tipo", &types.DivergenciaFilters{Tipo: "assinatura"}},
		{"prioridade", &types.DivergenciaFilters{Prioridade: "BAIXA"}},
		{"date", &types.DivergenciaFilters{DataInicio: "ontem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ListDivergencias(context.Background(), tt.filters, 1, 10)
			assert.True(t, types.IsValidation(err))
		})
	}
	repos.divergencias.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateDivergenciaStatus(t *testing.T) {
	service, repos, _ := setupTestService()
	ctx := context.Background()

	repos.divergencias.On("GetByID", ctx, "div-1").Return(&types.Divergencia{ID: "div-1"}, nil)
	repos.divergencias.On("UpdateStatus", ctx, "div-1", mock.Anything).Return(nil)

	err := service.UpdateDivergenciaStatus(ctx, "div-1", types.DivergenciaEmAnalise, "ana")

	require.NoError(t, err)
	repos.divergencias.AssertExpectations(t)
}

func TestRunAudit_Spans(t *testing.T) {
	service, repos, _ := setupTestService()
	recorder := tracetest.NewSpanRecorder()
	service.metrics.SetTracing(monitoring.NewTracingManagerWithProvider("test",
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))))
	batch := &MockDivergenciaBatch{}

	repos.expectSnapshot(nil, []*types.Execucao{{ID: "e1", CodigoFicha: "F9", NumeroGuia: "G9", DataExecucao: "2024-01-05"}}, nil)
	repos.divergencias.On("CountByStatus", mock.Anything, types.DivergenciaResolvida).Return(0, nil)
	repos.divergencias.On("BeginRebuild", mock.Anything).Return(batch, nil)
	batch.On("DeleteAll", mock.Anything).Return(int64(0), nil)
	batch.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	batch.On("Commit").Return(nil)
	repos.auditorias.On("ReplaceLast", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := service.RunAudit(context.Background(), nil)
	require.NoError(t, err)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		byName[span.Name()] = span
	}
	root, ok := byName["audit.run"]
	require.True(t, ok)
	assert.Equal(t, codes.Unset, root.Status().Code)

	for _, name := range []string{"db.read_snapshot", "db.count_resolvidas", "audit.match", "db.rebuild_divergencias", "db.record_run"} {
		span, ok := byName[name]
		require.True(t, ok, name)
		assert.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID(), name)
	}
	assert.Equal(t, codes.Error, byName["db.record_run"].Status().Code)
}

func TestRunAudit_FailedRunMarksSpan(t *testing.T) {
	service, repos, _ := setupTestService()
	recorder := tracetest.NewSpanRecorder()
	service.metrics.SetTracing(monitoring.NewTracingManagerWithProvider("test",
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))))

	repos.snapshots.On("Read", mock.Anything).Return(nil,
		types.NewStoreError(types.ErrCodeStoreFailure, "failed to begin snapshot", errors.New("connection refused")))

	_, err := service.RunAudit(context.Background(), nil)
	require.Error(t, err)

	var root sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "audit.run" {
			root = span
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, codes.Error, root.Status().Code)
}
