package normalize

import (
	"strings"

	"github.com/medrex/clinic-audit/pkg/types"
)

// ValidateFicha rejects sheets that cannot be matched at all
func ValidateFicha(f *types.Ficha) error {
	if f == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "ficha is nil", nil)
	}
	if strings.TrimSpace(f.CodigoFicha) == "" {
		return types.NewValidationError(types.ErrCodeMissingCodigo, "ficha has no codigo_ficha",
			map[string]interface{}{"numero_guia": f.NumeroGuia, "paciente_nome": f.PacienteNome})
	}
	return nil
}

// ValidateExecucao rejects executions carrying neither join key. An execution
// with a guia but no ficha code is still valid.
func ValidateExecucao(e *types.Execucao) error {
	if e == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "execucao is nil", nil)
	}
	if strings.TrimSpace(e.CodigoFicha) == "" && strings.TrimSpace(e.NumeroGuia) == "" {
		return types.NewValidationError(types.ErrCodeMissingCodigo, "execucao has neither codigo_ficha nor numero_guia",
			map[string]interface{}{"id": e.ID, "paciente_nome": e.PacienteNome})
	}
	return nil
}

// ValidateGuia rejects authorizations without a number or with negative counts
func ValidateGuia(g *types.Guia) error {
	if g == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "guia is nil", nil)
	}
	if strings.TrimSpace(g.NumeroGuia) == "" {
		return types.NewValidationError(types.ErrCodeMissingGuia, "guia has no numero_guia",
			map[string]interface{}{"paciente_nome": g.PacienteNome})
	}
	if g.QuantidadeAutorizada < 0 || g.QuantidadeExecutada < 0 {
		return types.NewValidationError(types.ErrCodeValidationFailed, "guia quantities must not be negative",
			map[string]interface{}{
				"numero_guia":           g.NumeroGuia,
				"quantidade_autorizada": g.QuantidadeAutorizada,
				"quantidade_executada":  g.QuantidadeExecutada,
			})
	}
	return nil
}
