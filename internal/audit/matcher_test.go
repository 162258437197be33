package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

var matchNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestMatcher() *Matcher {
	return NewMatcher(logger.New("error"), time.UTC)
}

func signedFicha(code, guia, date string) *types.Ficha {
	return &types.Ficha{
		ID:                  "ficha-" + code,
		CodigoFicha:         code,
		NumeroGuia:          guia,
		PacienteNome:        "Maria Souza",
		Carteirinha:         "123456",
		DataAtendimento:     date,
		PossuiAssinatura:    true,
		ArquivoDigitalizado: code + ".pdf",
		Status:              types.FichaPendente,
	}
}

func execucao(code, guia, date string) *types.Execucao {
	return &types.Execucao{
		ID:           "exec-" + code + "-" + date,
		CodigoFicha:  code,
		NumeroGuia:   guia,
		PacienteNome: "Maria Souza",
		Carteirinha:  "123456",
		DataExecucao: date,
	}
}

func countByTipo(findings []Finding) map[types.TipoDivergencia]int {
	counts := make(map[types.TipoDivergencia]int)
	for _, f := range findings {
		counts[f.Tipo]++
	}
	return counts
}

func TestMatch_DateMismatch(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Fichas:    []*types.Ficha{signedFicha("F001", "G1", "2024-01-05")},
		Execucoes: []*types.Execucao{execucao("F001", "G1", "2024-01-06")},
	}, matchNow, nil)

	require.Len(t, result.Findings, 1)
	finding := result.Findings[0]
	assert.Equal(t, types.TipoDataDivergente, finding.Tipo)
	assert.Equal(t, types.PrioridadeMedia, finding.Prioridade)
	assert.Equal(t, "G1", finding.NumeroGuia)
	assert.Equal(t, "2024-01-06", *finding.DataExecucao)
	assert.Equal(t, "2024-01-05", *finding.DataAtendimento)
	assert.Equal(t, "2024-01-06", finding.Detalhes["data_execucao"])
	assert.Equal(t, "2024-01-05", finding.Detalhes["data_atendimento"])
	assert.Equal(t, "ficha-F001", *finding.FichaID)
	assert.NotNil(t, finding.ExecucaoID)
	assert.Contains(t, finding.Descricao, "06/01/2024")
	assert.Contains(t, finding.Descricao, "05/01/2024")
}

func TestMatch_SameDayAcrossFormats(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Fichas:    []*types.Ficha{signedFicha("F001", "G1", "05/01/2024")},
		Execucoes: []*types.Execucao{execucao("F001", "G1", "2024-01-05T14:30:00")},
	}, matchNow, nil)

	assert.Empty(t, result.Findings)
}

func TestMatch_UnsignedFichaWithoutGuia(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Fichas: []*types.Ficha{{
			ID:               "ficha-F002",
			CodigoFicha:      "F002",
			PossuiAssinatura: false,
		}},
	}, matchNow, nil)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, types.TipoFichaSemAssinatura, result.Findings[0].Tipo)
	assert.Equal(t, types.PrioridadeAlta, result.Findings[0].Prioridade)
}

func TestMatch_SignedFichaWithoutFile(t *testing.T) {
	m := newTestMatcher()
	ficha := signedFicha("F010", "G10", "2024-01-05")
	ficha.ArquivoDigitalizado = ""

	result := m.Match(&Snapshot{
		Fichas:    []*types.Ficha{ficha},
		Execucoes: []*types.Execucao{execucao("F010", "G10", "2024-01-05")},
	}, matchNow, nil)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, types.TipoFichaSemAssinatura, result.Findings[0].Tipo)
	assert.Contains(t, result.Findings[0].Descricao, "sem arquivo digitalizado")
}

func TestMatch_ExecucaoWithoutFicha(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Execucoes: []*types.Execucao{execucao("F003", "G3", "2024-01-05")},
	}, matchNow, nil)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, types.TipoExecucaoSemFicha, result.Findings[0].Tipo)
	assert.Equal(t, "F003", result.Findings[0].CodigoFicha)
	assert.Equal(t, "G3", result.Findings[0].NumeroGuia)
}

func TestMatch_ExecucaoWithoutGuiaIsNotPaired(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Execucoes: []*types.Execucao{execucao("F050", "", "2024-01-05")},
	}, matchNow, nil)

	assert.Empty(t, result.Findings)
	assert.Equal(t, 1, result.TotalExecucoes)
	assert.Equal(t, 0, result.Descartados)
}

func TestMatch_ExecucaoWithoutCodeIsOrphan(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Execucoes: []*types.Execucao{execucao("", "G7", "2024-01-05")},
	}, matchNow, nil)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, types.TipoExecucaoSemFicha, result.Findings[0].Tipo)
	assert.Equal(t, 1, result.TotalExecucoes)
}

func TestMatch_ExpiredGuia(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Execucoes: []*types.Execucao{execucao("F040", "G4", "2024-01-05")},
		Guias: []*types.Guia{{
			NumeroGuia:           "G4",
			QuantidadeAutorizada: 5,
			DataValidade:         "2020-01-01",
		}},
	}, matchNow, nil)

	counts := countByTipo(result.Findings)
	assert.Equal(t, 1, counts[types.TipoGuiaVencida])
	assert.Equal(t, 1, counts[types.TipoExecucaoSemFicha])
}

func TestMatch_GuiaExpiryUsesLocation(t *testing.T) {
	guia := &types.Guia{NumeroGuia: "G9", QuantidadeAutorizada: 1, DataValidade: "2024-05-31"}
	now := time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC)

	inUTC := NewMatcher(logger.New("error"), time.UTC).
		Match(&Snapshot{Guias: []*types.Guia{guia}}, now, nil)
	assert.Equal(t, 1, countByTipo(inUTC.Findings)[types.TipoGuiaVencida])

	// still the 31st three hours behind UTC
	local := NewMatcher(logger.New("error"), time.FixedZone("BRT", -3*60*60)).
		Match(&Snapshot{Guias: []*types.Guia{guia}}, now, nil)
	assert.Empty(t, local.Findings)
}

func TestMatch_UnparsableValidadeSkipsExpiry(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Guias: []*types.Guia{{NumeroGuia: "G8", QuantidadeAutorizada: 1, DataValidade: "amanhã"}},
	}, matchNow, nil)

	assert.Empty(t, result.Findings)
}

func TestMatch_QuantityBoundary(t *testing.T) {
	build := func(sessions int) *Snapshot {
		snap := &Snapshot{
			Guias: []*types.Guia{{NumeroGuia: "G5", QuantidadeAutorizada: 3}},
		}
		for i := 0; i < sessions; i++ {
			code := string(rune('A' + i))
			snap.Fichas = append(snap.Fichas, signedFicha(code, "G5", "2024-01-05"))
			snap.Execucoes = append(snap.Execucoes, execucao(code, "G5", "2024-01-05"))
		}
		return snap
	}

	t.Run("at limit", func(t *testing.T) {
		result := newTestMatcher().Match(build(3), matchNow, nil)
		assert.Equal(t, 0, countByTipo(result.Findings)[types.TipoQuantidadeExcedida])
	})

	t.Run("over limit", func(t *testing.T) {
		result := newTestMatcher().Match(build(4), matchNow, nil)
		counts := countByTipo(result.Findings)
		require.Equal(t, 1, counts[types.TipoQuantidadeExcedida])

		for _, f := range result.Findings {
			if f.Tipo == types.TipoQuantidadeExcedida {
				assert.Equal(t, 3, f.Detalhes["quantidade_autorizada"])
				assert.Equal(t, 4, f.Detalhes["quantidade_executada"])
				assert.Equal(t, 1, f.Detalhes["excedente"])
			}
		}
	})
}

func TestMatch_SymmetricDifference(t *testing.T) {
	m := newTestMatcher()

	result := m.Match(&Snapshot{
		Fichas: []*types.Ficha{
			signedFicha("A", "G1", "2024-01-05"),
			signedFicha("B", "G1", "2024-01-06"),
		},
		Execucoes: []*types.Execucao{
			execucao("B", "G1", "2024-01-06"),
			execucao("C", "G1", "2024-01-07"),
		},
	}, matchNow, nil)

	byCode := make(map[string][]types.TipoDivergencia)
	for _, f := range result.Findings {
		byCode[f.CodigoFicha] = append(byCode[f.CodigoFicha], f.Tipo)
	}

	assert.Equal(t, []types.TipoDivergencia{types.TipoFichaSemExecucao}, byCode["A"])
	assert.Empty(t, byCode["B"])
	assert.Equal(t, []types.TipoDivergencia{types.TipoExecucaoSemFicha}, byCode["C"])
}

func TestMatch_DateMismatchNotSuppressed(t *testing.T) {
	m := newTestMatcher()
	ficha := signedFicha("F020", "G2", "2024-01-05")
	ficha.PossuiAssinatura = false

	result := m.Match(&Snapshot{
		Fichas:    []*types.Ficha{ficha},
		Execucoes: []*types.Execucao{execucao("F020", "G2", "2024-01-09")},
		Guias:     []*types.Guia{{NumeroGuia: "G2", QuantidadeAutorizada: 0, DataValidade: "2020-01-01"}},
	}, matchNow, nil)

	counts := countByTipo(result.Findings)
	assert.Equal(t, 1, counts[types.TipoDataDivergente])
	assert.Equal(t, 1, counts[types.TipoFichaSemAssinatura])
	assert.Equal(t, 1, counts[types.TipoQuantidadeExcedida])
	assert.Equal(t, 1, counts[types.TipoGuiaVencida])
}

func TestMatch_Idempotent(t *testing.T) {
	snap := &Snapshot{
		Fichas: []*types.Ficha{
			signedFicha("Z", "G1", "2024-01-05"),
			signedFicha("M", "G2", "2024-01-05"),
			{ID: "ficha-U", CodigoFicha: "U", NumeroGuia: "G1"},
		},
		Execucoes: []*types.Execucao{
			execucao("M", "G2", "2024-01-08"),
			execucao("Q", "G1", "2024-01-09"),
			execucao("", "G2", "2024-01-10"),
		},
		Guias: []*types.Guia{
			{NumeroGuia: "G2", QuantidadeAutorizada: 1, DataValidade: "2020-01-01"},
			{NumeroGuia: "G1", QuantidadeAutorizada: 0},
		},
	}

	first := newTestMatcher().Match(snap, matchNow, nil)
	second := newTestMatcher().Match(snap, matchNow, nil)

	require.NotEmpty(t, first.Findings)
	assert.Equal(t, first.Findings, second.Findings)
}

func TestMatch_ExecucoesWithoutCodeOrderedByGuiaThenDate(t *testing.T) {
	result := newTestMatcher().Match(&Snapshot{
		Execucoes: []*types.Execucao{
			execucao("", "G9", "2024-01-10"),
			execucao("", "G1", "2024-01-12"),
			execucao("", "G1", "2024-01-02"),
		},
	}, matchNow, nil)

	require.Len(t, result.Findings, 3)
	var got []string
	for _, f := range result.Findings {
		assert.Equal(t, types.TipoExecucaoSemFicha, f.Tipo)
		got = append(got, f.NumeroGuia+" "+*f.DataExecucao)
	}
	assert.Equal(t, []string{"G1 2024-01-02", "G1 2024-01-12", "G9 2024-01-10"}, got)
}

func TestMatch_EmptySnapshot(t *testing.T) {
	result := newTestMatcher().Match(&Snapshot{}, matchNow, nil)

	assert.Empty(t, result.Findings)
	assert.Equal(t, 0, result.TotalFichas)
	assert.Equal(t, 0, result.TotalExecucoes)

	assert.Empty(t, newTestMatcher().Match(nil, matchNow, nil).Findings)
}

func TestMatch_DiscardsMalformedRecords(t *testing.T) {
	result := newTestMatcher().Match(&Snapshot{
		Fichas:    []*types.Ficha{nil, {CodigoFicha: ""}},
		Execucoes: []*types.Execucao{{PacienteNome: "sem referência"}},
		Guias:     []*types.Guia{{NumeroGuia: ""}, {NumeroGuia: "G1", QuantidadeAutorizada: -1}},
	}, matchNow, nil)

	assert.Empty(t, result.Findings)
	assert.Equal(t, 5, result.Descartados)
}

func TestMatch_DuplicateCodeLastWriteWins(t *testing.T) {
	result := newTestMatcher().Match(&Snapshot{
		Fichas: []*types.Ficha{signedFicha("F1", "G1", "2024-01-06")},
		Execucoes: []*types.Execucao{
			execucao("F1", "G1", "2024-01-05"),
			execucao("F1", "G1", "2024-01-06"),
		},
	}, matchNow, nil)

	assert.Empty(t, result.Findings)
	assert.Equal(t, 2, result.TotalExecucoes)
}

func TestMatch_Window(t *testing.T) {
	snap := &Snapshot{
		Fichas: []*types.Ficha{
			{ID: "1", CodigoFicha: "JAN", NumeroGuia: "G1", DataAtendimento: "2024-01-05"},
			{ID: "2", CodigoFicha: "MAR", NumeroGuia: "G1", DataAtendimento: "2024-03-01"},
			{ID: "3", CodigoFicha: "NODATE", NumeroGuia: "G1"},
		},
	}
	window := &types.DateWindow{Inicio: "2024-01-01", Fim: "2024-01-31"}

	result := newTestMatcher().Match(snap, matchNow, window)

	codes := make(map[string]bool)
	for _, f := range result.Findings {
		codes[f.CodigoFicha] = true
	}
	assert.True(t, codes["JAN"])
	assert.True(t, codes["NODATE"])
	assert.False(t, codes["MAR"])
	assert.Equal(t, 2, result.TotalFichas)
}

func TestMatch_FichasByCode(t *testing.T) {
	ficha := signedFicha("F1", "G1", "2024-01-05")
	result := newTestMatcher().Match(&Snapshot{Fichas: []*types.Ficha{ficha}}, matchNow, nil)

	assert.Same(t, ficha, result.FichasByCode["F1"])
}

func TestSafely_RecoversPanic(t *testing.T) {
	m := newTestMatcher()

	findings, ok := m.safely("codigo_ficha", "F1", func() []Finding {
		panic("boom")
	})

	assert.False(t, ok)
	assert.Nil(t, findings)
}

func TestFinding_Defaults(t *testing.T) {
	finding := Finding{Tipo: types.TipoExecucaoSemFicha}

	d := finding.toDivergencia()

	assert.Equal(t, types.PrioridadeMedia, d.Prioridade)
	assert.Equal(t, types.DivergenciaPendente, d.Status)
	assert.Equal(t, SemGuia, d.NumeroGuia)
	assert.Equal(t, PacienteNaoIdentificado, d.PacienteNome)
	assert.Equal(t, "", d.CodigoFicha)
	assert.Nil(t, d.DataExecucao)
	assert.Nil(t, d.FichaID)
}
