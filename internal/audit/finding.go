package audit

import "github.com/medrex/clinic-audit/pkg/types"

// Fallbacks for mandatory fields a finding could not be attributed to
const (
	PacienteNaoIdentificado = "PACIENTE NÃO IDENTIFICADO"
	SemGuia                 = "SEM_GUIA"
)

// Finding is a discrepancy found by the matcher, before persistence
type Finding struct {
	Tipo            types.TipoDivergencia
	Prioridade      types.Prioridade
	NumeroGuia      string
	Descricao       string
	PacienteNome    string
	CodigoFicha     string
	Carteirinha     string
	DataExecucao    *string
	DataAtendimento *string
	Detalhes        map[string]interface{}
	FichaID         *string
	ExecucaoID      *string
}

// toDivergencia applies defaults and builds the record to insert
func (f *Finding) toDivergencia() *types.Divergencia {
	d := &types.Divergencia{
		NumeroGuia:      f.NumeroGuia,
		TipoDivergencia: f.Tipo,
		Descricao:       f.Descricao,
		PacienteNome:    f.PacienteNome,
		CodigoFicha:     f.CodigoFicha,
		Carteirinha:     f.Carteirinha,
		DataExecucao:    f.DataExecucao,
		DataAtendimento: f.DataAtendimento,
		Prioridade:      f.Prioridade,
		Status:          types.DivergenciaPendente,
		Detalhes:        f.Detalhes,
		FichaID:         f.FichaID,
		ExecucaoID:      f.ExecucaoID,
	}

	if d.Prioridade == "" {
		d.Prioridade = types.PrioridadeMedia
	}
	if d.NumeroGuia == "" {
		d.NumeroGuia = SemGuia
	}
	if d.PacienteNome == "" {
		d.PacienteNome = PacienteNaoIdentificado
	}
	return d
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
