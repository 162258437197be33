package audit

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/medrex/clinic-audit/pkg/repository"
	"github.com/medrex/clinic-audit/pkg/types"
)

// MockFichaRepository is a mock implementation of FichaRepositoryInterface
type MockFichaRepository struct {
	mock.Mock
}

func (m *MockFichaRepository) List(ctx context.Context, limit int) ([]*types.Ficha, error) {
	args := m.Called(ctx, limit)
	fichas, _ := args.Get(0).([]*types.Ficha)
	return fichas, args.Error(1)
}

func (m *MockFichaRepository) GetByID(ctx context.Context, id string) (*types.Ficha, error) {
	args := m.Called(ctx, id)
	ficha, _ := args.Get(0).(*types.Ficha)
	return ficha, args.Error(1)
}

func (m *MockFichaRepository) GetByCodigo(ctx context.Context, codigoFicha string) (*types.Ficha, error) {
	args := m.Called(ctx, codigoFicha)
	ficha, _ := args.Get(0).(*types.Ficha)
	return ficha, args.Error(1)
}

func (m *MockFichaRepository) UpsertByCodigo(ctx context.Context, ficha *types.Ficha) (*types.Ficha, error) {
	args := m.Called(ctx, ficha)
	out, _ := args.Get(0).(*types.Ficha)
	return out, args.Error(1)
}

func (m *MockFichaRepository) UpdateStatus(ctx context.Context, id string, status types.FichaStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockFichaRepository) Delete(ctx context.Context, codigoFicha string) error {
	args := m.Called(ctx, codigoFicha)
	return args.Error(0)
}

// MockSnapshotRepository is a mock implementation of SnapshotRepositoryInterface
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Read(ctx context.Context) (*types.RecordSnapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(*types.RecordSnapshot)
	return snap, args.Error(1)
}

// MockDivergenciaRepository is a mock implementation of DivergenciaRepositoryInterface
type MockDivergenciaRepository struct {
	mock.Mock
}

func (m *MockDivergenciaRepository) BeginRebuild(ctx context.Context) (repository.DivergenciaBatch, error) {
	args := m.Called(ctx)
	batch, _ := args.Get(0).(repository.DivergenciaBatch)
	return batch, args.Error(1)
}

func (m *MockDivergenciaRepository) GetByID(ctx context.Context, id string) (*types.Divergencia, error) {
	args := m.Called(ctx, id)
	divergencia, _ := args.Get(0).(*types.Divergencia)
	return divergencia, args.Error(1)
}

func (m *MockDivergenciaRepository) UpdateStatus(ctx context.Context, id string, update *types.DivergenciaStatusUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockDivergenciaRepository) List(ctx context.Context, filters *types.DivergenciaFilters, page, perPage int) (*types.DivergenciaPage, error) {
	args := m.Called(ctx, filters, page, perPage)
	result, _ := args.Get(0).(*types.DivergenciaPage)
	return result, args.Error(1)
}

func (m *MockDivergenciaRepository) CountByStatus(ctx context.Context, status types.DivergenciaStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

// MockDivergenciaBatch is a mock implementation of DivergenciaBatch
type MockDivergenciaBatch struct {
	mock.Mock
}

func (m *MockDivergenciaBatch) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDivergenciaBatch) Insert(ctx context.Context, divergencia *types.Divergencia, ordem int) error {
	args := m.Called(ctx, divergencia, ordem)
	return args.Error(0)
}

func (m *MockDivergenciaBatch) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDivergenciaBatch) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockAuditoriaRepository is a mock implementation of AuditoriaRepositoryInterface
type MockAuditoriaRepository struct {
	mock.Mock
}

func (m *MockAuditoriaRepository) ReplaceLast(ctx context.Context, run *types.AuditoriaExecucao) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockAuditoriaRepository) GetLast(ctx context.Context) (*types.AuditoriaExecucao, error) {
	args := m.Called(ctx)
	run, _ := args.Get(0).(*types.AuditoriaExecucao)
	return run, args.Error(1)
}
