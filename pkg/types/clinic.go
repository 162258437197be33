package types

import (
	"fmt"
	"time"
)

// Dates on clinic records are stored as text in the canonical YYYY-MM-DD form.
// An empty string means the source did not carry the date.

// GuiaStatus represents the lifecycle of an insurance authorization
type GuiaStatus string

const (
	GuiaPendente    GuiaStatus = "pendente"
	GuiaEmAndamento GuiaStatus = "em_andamento"
	GuiaConcluida   GuiaStatus = "concluida"
	GuiaCancelada   GuiaStatus = "cancelada"
)

// Valid reports whether s is one of the known guia statuses
func (s GuiaStatus) Valid() bool {
	switch s {
	case GuiaPendente, GuiaEmAndamento, GuiaConcluida, GuiaCancelada:
		return true
	}
	return false
}

// Guia is an insurance authorization permitting a bounded number of sessions
type Guia struct {
	ID                   string     `json:"id" db:"id"`
	NumeroGuia           string     `json:"numero_guia" db:"numero_guia"`
	PacienteNome         string     `json:"paciente_nome" db:"paciente_nome"`
	Carteirinha          string     `json:"paciente_carteirinha" db:"carteirinha"`
	QuantidadeAutorizada int        `json:"quantidade_autorizada" db:"quantidade_autorizada"`
	QuantidadeExecutada  int        `json:"quantidade_executada" db:"quantidade_executada"`
	DataEmissao          string     `json:"data_emissao,omitempty" db:"data_emissao"`
	DataValidade         string     `json:"data_validade,omitempty" db:"data_validade"`
	Status               GuiaStatus `json:"status" db:"status"`
	CodigoProcedimento   string     `json:"codigo_procedimento,omitempty" db:"codigo_procedimento"`
	ProcedimentoNome     string     `json:"procedimento_nome,omitempty" db:"procedimento_nome"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// FichaStatus represents the review state of an attendance sheet
type FichaStatus string

const (
	FichaPendente  FichaStatus = "pendente"
	FichaConferida FichaStatus = "conferida"
)

// Ficha is a digitized attendance sheet for one session
type Ficha struct {
	ID                  string      `json:"id" db:"id"`
	CodigoFicha         string      `json:"codigo_ficha" db:"codigo_ficha"`
	NumeroGuia          string      `json:"numero_guia" db:"numero_guia"`
	PacienteNome        string      `json:"paciente_nome" db:"paciente_nome"`
	Carteirinha         string      `json:"paciente_carteirinha" db:"carteirinha"`
	DataAtendimento     string      `json:"data_atendimento,omitempty" db:"data_atendimento"`
	PossuiAssinatura    bool        `json:"possui_assinatura" db:"possui_assinatura"`
	ArquivoDigitalizado string      `json:"arquivo_digitalizado,omitempty" db:"arquivo_digitalizado"`
	Status              FichaStatus `json:"status" db:"status"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// Execucao is a session recorded by the insurance system
type Execucao struct {
	ID           string    `json:"id" db:"id"`
	NumeroGuia   string    `json:"numero_guia" db:"numero_guia"`
	CodigoFicha  string    `json:"codigo_ficha,omitempty" db:"codigo_ficha"`
	PacienteNome string    `json:"paciente_nome" db:"paciente_nome"`
	Carteirinha  string    `json:"paciente_carteirinha" db:"carteirinha"`
	DataExecucao string    `json:"data_execucao,omitempty" db:"data_execucao"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// RecordSnapshot is the full content of the three source collections as
// of one point in time
type RecordSnapshot struct {
	Fichas    []*Ficha
	Execucoes []*Execucao
	Guias     []*Guia
}

// DateWindow is an optional inclusive range of session dates (YYYY-MM-DD).
// Either bound may be empty.
type DateWindow struct {
	Inicio string `json:"data_inicio,omitempty"`
	Fim    string `json:"data_fim,omitempty"`
}

// IsZero reports whether neither bound is set
func (w *DateWindow) IsZero() bool {
	return w == nil || (w.Inicio == "" && w.Fim == "")
}

// Contains reports whether the canonical date d falls inside the window.
// Callers decide how to treat records without a date.
func (w *DateWindow) Contains(d string) bool {
	if w.IsZero() {
		return true
	}
	if w.Inicio != "" && d < w.Inicio {
		return false
	}
	if w.Fim != "" && d > w.Fim {
		return false
	}
	return true
}

// ImportReport summarizes a bulk ingestion request
type ImportReport struct {
	Importados int      `json:"importados"`
	Ignorados  int      `json:"ignorados"`
	Erros      []string `json:"erros,omitempty"`
}

// Reject counts the zero-based row as ignored and records why
func (r *ImportReport) Reject(row int, err error) {
	r.Ignorados++
	r.Erros = append(r.Erros, fmt.Sprintf("registro %d: %v", row+1, err))
}
