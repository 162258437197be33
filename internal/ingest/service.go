package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medrex/clinic-audit/internal/normalize"
	"github.com/medrex/clinic-audit/pkg/interfaces"
	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/monitoring"
	"github.com/medrex/clinic-audit/pkg/repository"
	"github.com/medrex/clinic-audit/pkg/types"
)

var _ interfaces.IngestService = (*Service)(nil)

// Service loads producer data into the record store. Every record passes
// through the normalizer and validator before it is written.
type Service struct {
	logger         *logger.Logger
	normalizer     *normalize.Normalizer
	fichas         repository.FichaRepositoryInterface
	execucoes      repository.ExecucaoRepositoryInterface
	guias          repository.GuiaRepositoryInterface
	metrics        *monitoring.MetricsCollector
	maxUploadBytes int64
}

// New creates a new ingestion service
func New(
	log *logger.Logger,
	fichas repository.FichaRepositoryInterface,
	execucoes repository.ExecucaoRepositoryInterface,
	guias repository.GuiaRepositoryInterface,
	metrics *monitoring.MetricsCollector,
	maxUploadBytes int64,
) *Service {
	return &Service{
		logger:         log,
		normalizer:     normalize.New(log),
		fichas:         fichas,
		execucoes:      execucoes,
		guias:          guias,
		metrics:        metrics,
		maxUploadBytes: maxUploadBytes,
	}
}

// ImportFichas upserts each sheet by codigo_ficha. A re-uploaded sheet goes
// back to pendente.
func (s *Service) ImportFichas(ctx context.Context, fichas []*types.Ficha) *types.ImportReport {
	report := &types.ImportReport{}

	for i, ficha := range fichas {
		s.normalizer.Ficha(ficha)
		if err := normalize.ValidateFicha(ficha); err != nil {
			report.Reject(i, err)
			continue
		}

		ficha.ID = ""
		ficha.Status = types.FichaPendente
		if _, err := s.fichas.UpsertByCodigo(ctx, ficha); err != nil {
			report.Reject(i, err)
			continue
		}
		report.Importados++
	}

	s.finish(ctx, "fichas", report)
	return report
}

// ImportExecucoes stores executions. With substituir the collection is
// replaced atomically by the valid records; a store failure then fails the
// whole request.
func (s *Service) ImportExecucoes(ctx context.Context, execucoes []*types.Execucao, substituir bool) (*types.ImportReport, error) {
	report := &types.ImportReport{}
	valid := make([]*types.Execucao, 0, len(execucoes))

	for i, execucao := range execucoes {
		s.normalizer.Execucao(execucao)
		if err := normalize.ValidateExecucao(execucao); err != nil {
			report.Reject(i, err)
			continue
		}
		execucao.ID = ""
		valid = append(valid, execucao)
	}

	if substituir {
		n, err := s.execucoes.ReplaceAll(ctx, valid)
		if err != nil {
			s.metrics.RecordSystemError("ingest_replace_failed", "ingest")
			return nil, err
		}
		report.Importados = n
		s.finish(ctx, "execucoes", report)
		return report, nil
	}

	for _, execucao := range valid {
		if _, err := s.execucoes.Create(ctx, execucao); err != nil {
			report.Ignorados++
			report.Erros = append(report.Erros, fmt.Sprintf("execucao %s: %v", describeExecucao(execucao), err))
			continue
		}
		report.Importados++
	}

	s.finish(ctx, "execucoes", report)
	return report, nil
}

// ImportGuias upserts each authorization by numero_guia
func (s *Service) ImportGuias(ctx context.Context, guias []*types.Guia) *types.ImportReport {
	report := &types.ImportReport{}

	for i, guia := range guias {
		s.normalizer.Guia(guia)
		if err := normalize.ValidateGuia(guia); err != nil {
			report.Reject(i, err)
			continue
		}
		if guia.Status == "" {
			guia.Status = types.GuiaPendente
		}
		if !guia.Status.Valid() {
			report.Reject(i, types.NewValidationError(types.ErrCodeInvalidStatus, "invalid guia status",
				map[string]interface{}{"status": string(guia.Status)}))
			continue
		}

		guia.ID = ""
		if _, err := s.guias.Upsert(ctx, guia); err != nil {
			report.Reject(i, err)
			continue
		}
		report.Importados++
	}

	s.finish(ctx, "guias", report)
	return report
}

// DeleteFicha removes one sheet by code
func (s *Service) DeleteFicha(ctx context.Context, codigo, actor string) error {
	err := s.fichas.Delete(ctx, codigo)
	s.logger.Audit(actor, "delete_ficha", "ficha:"+codigo, err == nil, nil)
	return err
}

// GetFicha returns one sheet by code
func (s *Service) GetFicha(ctx context.Context, codigo string) (*types.Ficha, error) {
	return s.fichas.GetByCodigo(ctx, codigo)
}

// GetGuia returns one authorization by number
func (s *Service) GetGuia(ctx context.Context, numero string) (*types.Guia, error) {
	return s.guias.GetByNumero(ctx, numero)
}

// DeleteGuia removes one authorization by number
func (s *Service) DeleteGuia(ctx context.Context, numero, actor string) error {
	err := s.guias.Delete(ctx, numero)
	s.logger.Audit(actor, "delete_guia", "guia:"+numero, err == nil, nil)
	return err
}

// DecodeFichas decodes a ficha payload. Elements that fail to decode are
// returned as nil so row numbers stay aligned.
func DecodeFichas(raw []byte) ([]*types.Ficha, error) {
	return decodeList[types.Ficha](raw)
}

// DecodeExecucoes decodes an execucao payload
func DecodeExecucoes(raw []byte) ([]*types.Execucao, error) {
	return decodeList[types.Execucao](raw)
}

// DecodeGuias decodes a guia payload
func DecodeGuias(raw []byte) ([]*types.Guia, error) {
	return decodeList[types.Guia](raw)
}

func decodeList[T any](raw []byte) ([]*T, error) {
	items, err := normalize.UnwrapList(raw)
	if err != nil {
		return nil, err
	}

	out := make([]*T, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out[i] = &v
	}
	return out, nil
}

func (s *Service) finish(ctx context.Context, collection string, report *types.ImportReport) {
	s.metrics.RecordIngest(collection, report.Importados, report.Ignorados)
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"component":  "ingest",
		"collection": collection,
		"importados": report.Importados,
		"ignorados":  report.Ignorados,
	}).Info("Import finished")
}

func describeExecucao(e *types.Execucao) string {
	if e.CodigoFicha != "" {
		return e.CodigoFicha
	}
	return "guia " + e.NumeroGuia
}
