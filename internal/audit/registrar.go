package audit

import (
	"context"
	"time"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/repository"
	"github.com/medrex/clinic-audit/pkg/types"
)

// RebuildResult reports what a rebuild wrote
type RebuildResult struct {
	Gravadas int
	Falhas   int
	PorTipo  map[string]int
}

// Registrar makes the divergence collection mirror a list of findings
type Registrar struct {
	divergencias repository.DivergenciaRepositoryInterface
	fichas       repository.FichaRepositoryInterface
	logger       *logger.Logger
	now          func() time.Time
}

// NewRegistrar creates a new registrar
func NewRegistrar(divergencias repository.DivergenciaRepositoryInterface, fichas repository.FichaRepositoryInterface, log *logger.Logger) *Registrar {
	return &Registrar{
		divergencias: divergencias,
		fichas:       fichas,
		logger:       log,
		now:          time.Now,
	}
}

// Rebuild replaces every divergence with findings, in order. fichas backfills
// ficha_id and data_atendimento by code. Nothing is visible until the whole
// batch commits; single insert failures are logged and counted.
func (r *Registrar) Rebuild(ctx context.Context, findings []Finding, fichas map[string]*types.Ficha) (*RebuildResult, error) {
	batch, err := r.divergencias.BeginRebuild(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := batch.Rollback(); rbErr != nil {
				r.logger.WithComponent("registrar").WithError(rbErr).Error("Failed to roll back rebuild")
			}
		}
	}()

	removed, err := batch.DeleteAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &RebuildResult{PorTipo: make(map[string]int)}
	identified := r.now()

	for i := range findings {
		if err := ctx.Err(); err != nil {
			return nil, types.NewStoreError(types.ErrCodeStoreFailure, "rebuild interrupted", err)
		}

		finding := findings[i]
		if finding.Tipo == "" {
			r.logger.WithFields(map[string]interface{}{
				"component":    "registrar",
				"codigo_ficha": finding.CodigoFicha,
				"numero_guia":  finding.NumeroGuia,
			}).WithError(types.NewValidationError(types.ErrCodeMissingDivergence, "finding has no tipo_divergencia", nil)).
				Warn("Skipping finding")
			result.Falhas++
			continue
		}

		enrich(&finding, fichas)
		divergencia := finding.toDivergencia()
		divergencia.DataIdentificacao = identified

		if err := batch.Insert(ctx, divergencia, i); err != nil {
			r.logger.WithFields(map[string]interface{}{
				"component":        "registrar",
				"tipo_divergencia": divergencia.TipoDivergencia,
				"codigo_ficha":     divergencia.CodigoFicha,
				"numero_guia":      divergencia.NumeroGuia,
			}).WithError(err).Error("Failed to insert divergencia, skipping")
			result.Falhas++
			continue
		}

		result.Gravadas++
		result.PorTipo[string(divergencia.TipoDivergencia)]++
	}

	if err := batch.Commit(); err != nil {
		return nil, err
	}
	committed = true

	r.logger.WithFields(map[string]interface{}{
		"component": "registrar",
		"removidas": removed,
		"gravadas":  result.Gravadas,
		"falhas":    result.Falhas,
	}).Info("Divergence collection rebuilt")

	return result, nil
}

// enrich backfills ficha linkage the finding was produced without
func enrich(finding *Finding, fichas map[string]*types.Ficha) {
	if finding.CodigoFicha == "" {
		return
	}
	ficha, ok := fichas[finding.CodigoFicha]
	if !ok || ficha == nil {
		return
	}
	if finding.FichaID == nil {
		finding.FichaID = strPtr(ficha.ID)
	}
	if finding.DataAtendimento == nil {
		finding.DataAtendimento = strPtr(ficha.DataAtendimento)
	}
}

// UpdateStatus applies an operator status change. Resolving stamps the
// resolution and marks the linked ficha conferida; reopening clears it.
func (r *Registrar) UpdateStatus(ctx context.Context, id string, status types.DivergenciaStatus, actor string) error {
	if !status.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidStatus, "invalid divergencia status",
			map[string]interface{}{"status": string(status)})
	}

	divergencia, err := r.divergencias.GetByID(ctx, id)
	if err != nil {
		return err
	}

	update := &types.DivergenciaStatusUpdate{Status: status}
	switch status {
	case types.DivergenciaResolvida:
		now := r.now()
		update.DataResolucao = &now
		update.ResolvidoPor = strPtr(actor)
	case types.DivergenciaPendente:
		update.ClearResolution = true
	}

	if err := r.divergencias.UpdateStatus(ctx, id, update); err != nil {
		r.logger.Audit(actor, "update_divergencia_status", "divergencia:"+id, false, map[string]interface{}{
			"status": string(status),
			"error":  err.Error(),
		})
		return err
	}

	if status == types.DivergenciaResolvida && divergencia.FichaID != nil {
		if err := r.fichas.UpdateStatus(ctx, *divergencia.FichaID, types.FichaConferida); err != nil {
			if !types.IsNotFound(err) {
				return err
			}
			r.logger.WithFields(map[string]interface{}{
				"component":      "registrar",
				"divergencia_id": id,
				"ficha_id":       *divergencia.FichaID,
			}).Warn("Linked ficha no longer exists, status not propagated")
		}
	}

	r.logger.Audit(actor, "update_divergencia_status", "divergencia:"+id, true, map[string]interface{}{
		"status":          string(status),
		"previous_status": string(divergencia.Status),
	})

	return nil
}
