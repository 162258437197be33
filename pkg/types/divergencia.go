package types

import "time"

// TipoDivergencia classifies a discrepancy
type TipoDivergencia string

const (
	TipoDataDivergente     TipoDivergencia = "data_divergente"
	TipoFichaSemAssinatura TipoDivergencia = "ficha_sem_assinatura"
	TipoExecucaoSemFicha   TipoDivergencia = "execucao_sem_ficha"
	TipoFichaSemExecucao   TipoDivergencia = "ficha_sem_execucao"
	TipoQuantidadeExcedida TipoDivergencia = "quantidade_excedida"
	TipoGuiaVencida        TipoDivergencia = "guia_vencida"

	// TipoDuplicidade is reserved in run summaries; no rule emits it yet.
	TipoDuplicidade TipoDivergencia = "duplicidade"
)

// TiposDivergencia lists every known type in reporting order
func TiposDivergencia() []TipoDivergencia {
	return []TipoDivergencia{
		TipoDataDivergente,
		TipoFichaSemAssinatura,
		TipoExecucaoSemFicha,
		TipoFichaSemExecucao,
		TipoQuantidadeExcedida,
		TipoGuiaVencida,
		TipoDuplicidade,
	}
}

// Valid reports whether t is a known type
func (t TipoDivergencia) Valid() bool {
	for _, known := range TiposDivergencia() {
		if t == known {
			return true
		}
	}
	return false
}

// Prioridade of a divergence
type Prioridade string

const (
	PrioridadeAlta  Prioridade = "ALTA"
	PrioridadeMedia Prioridade = "MEDIA"
)

// Valid reports whether p is a known priority
func (p Prioridade) Valid() bool {
	return p == PrioridadeAlta || p == PrioridadeMedia
}

// DivergenciaStatus is the operator-driven review state. Transitions between
// the four values are not constrained.
type DivergenciaStatus string

const (
	DivergenciaPendente  DivergenciaStatus = "pendente"
	DivergenciaEmAnalise DivergenciaStatus = "em_analise"
	DivergenciaResolvida DivergenciaStatus = "resolvida"
	DivergenciaCancelada DivergenciaStatus = "cancelada"
)

// Valid reports whether s is one of the four enumerated statuses
func (s DivergenciaStatus) Valid() bool {
	switch s {
	case DivergenciaPendente, DivergenciaEmAnalise, DivergenciaResolvida, DivergenciaCancelada:
		return true
	}
	return false
}

// Divergencia is a persisted discrepancy between fichas, execucoes and guias
type Divergencia struct {
	ID                string                 `json:"id" db:"id"`
	NumeroGuia        string                 `json:"numero_guia" db:"numero_guia"`
	TipoDivergencia   TipoDivergencia        `json:"tipo_divergencia" db:"tipo_divergencia"`
	Descricao         string                 `json:"descricao" db:"descricao"`
	PacienteNome      string                 `json:"paciente_nome" db:"paciente_nome"`
	CodigoFicha       string                 `json:"codigo_ficha" db:"codigo_ficha"`
	DataExecucao      *string                `json:"data_execucao,omitempty" db:"data_execucao"`
	DataAtendimento   *string                `json:"data_atendimento,omitempty" db:"data_atendimento"`
	Carteirinha       string                 `json:"carteirinha" db:"carteirinha"`
	Prioridade        Prioridade             `json:"prioridade" db:"prioridade"`
	Status            DivergenciaStatus      `json:"status" db:"status"`
	Detalhes          map[string]interface{} `json:"detalhes,omitempty" db:"detalhes"`
	FichaID           *string                `json:"ficha_id,omitempty" db:"ficha_id"`
	ExecucaoID        *string                `json:"execucao_id,omitempty" db:"execucao_id"`
	DataIdentificacao time.Time              `json:"data_identificacao" db:"data_identificacao"`
	DataResolucao     *time.Time             `json:"data_resolucao,omitempty" db:"data_resolucao"`
	ResolvidoPor      *string                `json:"resolvido_por,omitempty" db:"resolvido_por"`
}

// DivergenciaFilters narrows a divergence listing. DataInicio/DataFim apply to
// the session date (execution date, falling back to attendance date).
type DivergenciaFilters struct {
	Status     DivergenciaStatus `json:"status,omitempty"`
	Tipo       TipoDivergencia   `json:"tipo,omitempty"`
	Prioridade Prioridade        `json:"prioridade,omitempty"`
	DataInicio string            `json:"data_inicio,omitempty"`
	DataFim    string            `json:"data_fim,omitempty"`
}

// DivergenciaPage is one page of a filtered listing
type DivergenciaPage struct {
	Items      []*Divergencia `json:"items"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
}

// DivergenciaStatusUpdate carries an operator status change. ClearResolution
// nulls data_resolucao and resolvido_por.
type DivergenciaStatusUpdate struct {
	Status          DivergenciaStatus
	DataResolucao   *time.Time
	ResolvidoPor    *string
	ClearResolution bool
}
