package normalize

import (
	"strings"

	"github.com/medrex/clinic-audit/pkg/types"
)

// Ficha trims identifiers and canonicalizes the attendance date in place
func (n *Normalizer) Ficha(f *types.Ficha) {
	if f == nil {
		return
	}
	f.CodigoFicha = strings.TrimSpace(f.CodigoFicha)
	f.NumeroGuia = strings.TrimSpace(f.NumeroGuia)
	f.PacienteNome = strings.TrimSpace(f.PacienteNome)
	f.Carteirinha = strings.TrimSpace(f.Carteirinha)
	f.DataAtendimento = n.FormatDateString(f.DataAtendimento)
}

// Execucao trims identifiers and canonicalizes the execution date in place
func (n *Normalizer) Execucao(e *types.Execucao) {
	if e == nil {
		return
	}
	e.NumeroGuia = strings.TrimSpace(e.NumeroGuia)
	e.CodigoFicha = strings.TrimSpace(e.CodigoFicha)
	e.PacienteNome = strings.TrimSpace(e.PacienteNome)
	e.Carteirinha = strings.TrimSpace(e.Carteirinha)
	e.DataExecucao = n.FormatDateString(e.DataExecucao)
}

// Guia trims identifiers and canonicalizes both dates in place
func (n *Normalizer) Guia(g *types.Guia) {
	if g == nil {
		return
	}
	g.NumeroGuia = strings.TrimSpace(g.NumeroGuia)
	g.PacienteNome = strings.TrimSpace(g.PacienteNome)
	g.Carteirinha = strings.TrimSpace(g.Carteirinha)
	g.DataEmissao = n.FormatDateString(g.DataEmissao)
	g.DataValidade = n.FormatDateString(g.DataValidade)
}
