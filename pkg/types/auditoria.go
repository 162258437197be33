package types

import "time"

// AuditoriaExecucao is the summary of one audit run
type AuditoriaExecucao struct {
	ID                  string         `json:"id,omitempty" db:"id"`
	DataExecucao        time.Time      `json:"data_execucao" db:"data_execucao"`
	DataInicio          *string        `json:"data_inicio,omitempty" db:"data_inicio"`
	DataFim             *string        `json:"data_fim,omitempty" db:"data_fim"`
	TotalRegistros      int            `json:"total_protocolos" db:"total_protocolos"`
	TotalDivergencias   int            `json:"total_divergencias" db:"total_divergencias"`
	DivergenciasPorTipo map[string]int `json:"divergencias_por_tipo" db:"divergencias_por_tipo"`
	TotalFichas         int            `json:"total_fichas" db:"total_fichas"`
	TotalExecucoes      int            `json:"total_execucoes" db:"total_execucoes"`
	TotalResolvidas     int            `json:"total_resolvidas" db:"total_resolvidas"`
	DuracaoMs           int64          `json:"duracao_ms" db:"duracao_ms"`
}

// ZeroFilledCounts returns a map with every known divergence type set to
// zero, merged with the actual counts.
func ZeroFilledCounts(actual map[string]int) map[string]int {
	out := make(map[string]int, len(TiposDivergencia())+len(actual))
	for _, t := range TiposDivergencia() {
		out[string(t)] = 0
	}
	for k, v := range actual {
		out[k] = v
	}
	return out
}

// EmptyAuditoria is the summary reported before any run exists
func EmptyAuditoria() *AuditoriaExecucao {
	return &AuditoriaExecucao{DivergenciasPorTipo: ZeroFilledCounts(nil)}
}

// AuditResult is returned to callers of a run
type AuditResult struct {
	Success bool               `json:"success"`
	Summary *AuditoriaExecucao `json:"summary,omitempty"`
	// Gravadas and Falhas count divergence inserts in the rebuild.
	Gravadas int    `json:"gravadas"`
	Falhas   int    `json:"falhas"`
	Error    string `json:"error,omitempty"`
}
