package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/medrex/clinic-audit/internal/normalize"
	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

// Snapshot is the complete input of one run
type Snapshot = types.RecordSnapshot

// MatchResult is the ordered output of a matching pass
type MatchResult struct {
	Findings       []Finding
	FichasByCode   map[string]*types.Ficha
	TotalFichas    int
	TotalExecucoes int
	Descartados    int
}

// Matcher cross-checks fichas, execucoes and guias
type Matcher struct {
	logger   *logger.Logger
	location *time.Location
}

// NewMatcher creates a matcher evaluating expiry in loc
func NewMatcher(log *logger.Logger, loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{
		logger:   log,
		location: loc,
	}
}

type matchIndex struct {
	fichaByCode     map[string]*types.Ficha
	execByCode      map[string]*types.Execucao
	execCountByCode map[string]int
	execByGuia      map[string][]*types.Execucao
	semCodigo       []*types.Execucao
	codes           []string
}

// Match runs every rule over snap. now is the run clock; window, when set,
// restricts session rules to codes with a session date inside it.
func (m *Matcher) Match(snap *Snapshot, now time.Time, window *types.DateWindow) *MatchResult {
	result := &MatchResult{FichasByCode: map[string]*types.Ficha{}}
	if snap == nil {
		return result
	}

	idx := m.buildIndex(snap, result)
	result.FichasByCode = idx.fichaByCode

	for _, code := range idx.codes {
		ficha := idx.fichaByCode[code]
		execucao := idx.execByCode[code]

		if !inWindow(window, fichaDate(ficha), execDate(execucao)) {
			continue
		}
		if ficha != nil {
			result.TotalFichas++
		}
		result.TotalExecucoes += idx.execCountByCode[code]

		findings, ok := m.safely("codigo_ficha", code, func() []Finding {
			return m.matchCode(code, ficha, execucao)
		})
		if ok {
			result.Findings = append(result.Findings, findings...)
		}
	}

	for _, execucao := range idx.semCodigo {
		if !inWindow(window, "", execucao.DataExecucao) {
			continue
		}
		result.TotalExecucoes++

		findings, ok := m.safely("execucao_id", execucao.ID, func() []Finding {
			return []Finding{execucaoSemFicha(execucao)}
		})
		if ok {
			result.Findings = append(result.Findings, findings...)
		}
	}

	guias := make([]*types.Guia, 0, len(snap.Guias))
	for _, guia := range snap.Guias {
		if err := normalize.ValidateGuia(guia); err != nil {
			m.discard("guia", err)
			result.Descartados++
			continue
		}
		guias = append(guias, guia)
	}
	sort.SliceStable(guias, func(i, j int) bool { return guias[i].NumeroGuia < guias[j].NumeroGuia })

	today := now.In(m.location).Format(normalize.StorageLayout)
	for _, guia := range guias {
		guia := guia
		findings, ok := m.safely("numero_guia", guia.NumeroGuia, func() []Finding {
			return m.matchGuia(guia, idx.execByGuia[guia.NumeroGuia], today)
		})
		if ok {
			result.Findings = append(result.Findings, findings...)
		}
	}

	return result
}

func (m *Matcher) buildIndex(snap *Snapshot, result *MatchResult) *matchIndex {
	idx := &matchIndex{
		fichaByCode:     make(map[string]*types.Ficha),
		execByCode:      make(map[string]*types.Execucao),
		execCountByCode: make(map[string]int),
		execByGuia:      make(map[string][]*types.Execucao),
	}
	seen := make(map[string]struct{})

	for _, ficha := range snap.Fichas {
		if err := normalize.ValidateFicha(ficha); err != nil {
			m.discard("ficha", err)
			result.Descartados++
			continue
		}
		idx.fichaByCode[ficha.CodigoFicha] = ficha
		seen[ficha.CodigoFicha] = struct{}{}
	}

	for _, execucao := range snap.Execucoes {
		if err := normalize.ValidateExecucao(execucao); err != nil {
			m.discard("execucao", err)
			result.Descartados++
			continue
		}
		if execucao.NumeroGuia != "" {
			idx.execByGuia[execucao.NumeroGuia] = append(idx.execByGuia[execucao.NumeroGuia], execucao)
		}
		if execucao.CodigoFicha == "" {
			idx.semCodigo = append(idx.semCodigo, execucao)
			continue
		}
		idx.execByCode[execucao.CodigoFicha] = execucao
		idx.execCountByCode[execucao.CodigoFicha]++
		seen[execucao.CodigoFicha] = struct{}{}
	}

	idx.codes = make([]string, 0, len(seen))
	for code := range seen {
		idx.codes = append(idx.codes, code)
	}
	sort.Strings(idx.codes)

	sort.SliceStable(idx.semCodigo, func(i, j int) bool {
		a, b := idx.semCodigo[i], idx.semCodigo[j]
		if a.NumeroGuia != b.NumeroGuia {
			return a.NumeroGuia < b.NumeroGuia
		}
		return a.DataExecucao < b.DataExecucao
	})

	return idx
}

func (m *Matcher) matchCode(code string, ficha *types.Ficha, execucao *types.Execucao) []Finding {
	var findings []Finding

	if ficha != nil && execucao != nil &&
		ficha.DataAtendimento != "" && execucao.DataExecucao != "" &&
		!normalize.SameDay(ficha.DataAtendimento, execucao.DataExecucao) {
		findings = append(findings, Finding{
			Tipo:       types.TipoDataDivergente,
			Prioridade: types.PrioridadeMedia,
			NumeroGuia: firstNonEmpty(ficha.NumeroGuia, execucao.NumeroGuia),
			Descricao: fmt.Sprintf("Data de execução %s difere da data de atendimento %s na ficha %s",
				normalize.DisplayDate(execucao.DataExecucao), normalize.DisplayDate(ficha.DataAtendimento), code),
			PacienteNome:    firstNonEmpty(ficha.PacienteNome, execucao.PacienteNome),
			CodigoFicha:     code,
			Carteirinha:     firstNonEmpty(ficha.Carteirinha, execucao.Carteirinha),
			DataExecucao:    strPtr(execucao.DataExecucao),
			DataAtendimento: strPtr(ficha.DataAtendimento),
			Detalhes: map[string]interface{}{
				"data_execucao":    execucao.DataExecucao,
				"data_atendimento": ficha.DataAtendimento,
			},
			FichaID:    strPtr(ficha.ID),
			ExecucaoID: strPtr(execucao.ID),
		})
	}

	if ficha != nil && (!ficha.PossuiAssinatura || ficha.ArquivoDigitalizado == "") {
		motivo := "sem assinatura do paciente"
		if ficha.PossuiAssinatura {
			motivo = "sem arquivo digitalizado"
		}
		findings = append(findings, Finding{
			Tipo:            types.TipoFichaSemAssinatura,
			Prioridade:      types.PrioridadeAlta,
			NumeroGuia:      ficha.NumeroGuia,
			Descricao:       fmt.Sprintf("Ficha %s %s", code, motivo),
			PacienteNome:    ficha.PacienteNome,
			CodigoFicha:     code,
			Carteirinha:     ficha.Carteirinha,
			DataAtendimento: strPtr(ficha.DataAtendimento),
			Detalhes: map[string]interface{}{
				"possui_assinatura":    ficha.PossuiAssinatura,
				"arquivo_digitalizado": ficha.ArquivoDigitalizado != "",
			},
			FichaID: strPtr(ficha.ID),
		})
	}

	switch {
	case ficha == nil && execucao != nil:
		if execucao.NumeroGuia == "" {
			m.unattributed(code, "execucao")
			break
		}
		findings = append(findings, execucaoSemFicha(execucao))
	case execucao == nil && ficha != nil:
		if ficha.NumeroGuia == "" {
			m.unattributed(code, "ficha")
			break
		}
		findings = append(findings, Finding{
			Tipo:            types.TipoFichaSemExecucao,
			Prioridade:      types.PrioridadeAlta,
			NumeroGuia:      ficha.NumeroGuia,
			Descricao:       fmt.Sprintf("Ficha %s sem execução registrada no convênio", code),
			PacienteNome:    ficha.PacienteNome,
			CodigoFicha:     code,
			Carteirinha:     ficha.Carteirinha,
			DataAtendimento: strPtr(ficha.DataAtendimento),
			FichaID:         strPtr(ficha.ID),
		})
	}

	return findings
}

func execucaoSemFicha(execucao *types.Execucao) Finding {
	descricao := "Execução registrada no convênio sem ficha correspondente"
	if execucao.CodigoFicha != "" {
		descricao = fmt.Sprintf("Execução com ficha %s sem ficha correspondente", execucao.CodigoFicha)
	}
	return Finding{
		Tipo:         types.TipoExecucaoSemFicha,
		Prioridade:   types.PrioridadeAlta,
		NumeroGuia:   execucao.NumeroGuia,
		Descricao:    descricao,
		PacienteNome: execucao.PacienteNome,
		CodigoFicha:  execucao.CodigoFicha,
		Carteirinha:  execucao.Carteirinha,
		DataExecucao: strPtr(execucao.DataExecucao),
		ExecucaoID:   strPtr(execucao.ID),
	}
}

func (m *Matcher) matchGuia(guia *types.Guia, linked []*types.Execucao, today string) []Finding {
	var findings []Finding

	if executadas := len(linked); executadas > guia.QuantidadeAutorizada {
		findings = append(findings, Finding{
			Tipo:       types.TipoQuantidadeExcedida,
			Prioridade: types.PrioridadeAlta,
			NumeroGuia: guia.NumeroGuia,
			Descricao: fmt.Sprintf("Guia %s com %d execuções para %d sessões autorizadas",
				guia.NumeroGuia, executadas, guia.QuantidadeAutorizada),
			PacienteNome: guia.PacienteNome,
			Carteirinha:  guia.Carteirinha,
			Detalhes: map[string]interface{}{
				"quantidade_autorizada": guia.QuantidadeAutorizada,
				"quantidade_executada":  executadas,
				"excedente":             executadas - guia.QuantidadeAutorizada,
			},
		})
	}

	if guia.DataValidade != "" {
		validade, ok := normalize.ParseDate(guia.DataValidade)
		if !ok {
			m.logger.WithFields(map[string]interface{}{
				"component":     "matcher",
				"numero_guia":   guia.NumeroGuia,
				"data_validade": guia.DataValidade,
			}).Warn("Unparsable data_validade, expiry not checked")
			return findings
		}
		if stored := validade.Format(normalize.StorageLayout); stored < today {
			findings = append(findings, Finding{
				Tipo:         types.TipoGuiaVencida,
				Prioridade:   types.PrioridadeAlta,
				NumeroGuia:   guia.NumeroGuia,
				Descricao:    fmt.Sprintf("Guia %s vencida em %s", guia.NumeroGuia, normalize.DisplayDate(stored)),
				PacienteNome: guia.PacienteNome,
				Carteirinha:  guia.Carteirinha,
				Detalhes: map[string]interface{}{
					"data_validade": stored,
				},
			})
		}
	}

	return findings
}

// safely runs one record's rules; a panic drops that record's findings only
func (m *Matcher) safely(key, value string, fn func() []Finding) (findings []Finding, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(map[string]interface{}{
				"component": "matcher",
				key:         value,
				"panic":     fmt.Sprint(r),
			}).Error("Failed to match record, skipping")
			findings, ok = nil, false
		}
	}()
	return fn(), true
}

func (m *Matcher) discard(kind string, err error) {
	m.logger.WithFields(map[string]interface{}{
		"component": "matcher",
		"record":    kind,
	}).WithError(err).Warn("Discarding malformed record")
}

func (m *Matcher) unattributed(code, side string) {
	m.logger.WithFields(map[string]interface{}{
		"component":    "matcher",
		"codigo_ficha": code,
		"record":       side,
	}).Info("Record without numero_guia excluded from pairing checks")
}

func fichaDate(f *types.Ficha) string {
	if f == nil {
		return ""
	}
	return f.DataAtendimento
}

func execDate(e *types.Execucao) string {
	if e == nil {
		return ""
	}
	return e.DataExecucao
}

// inWindow keeps a code when any of its parsable dates falls inside window.
// Codes with no parsable date at all are kept.
func inWindow(window *types.DateWindow, dates ...string) bool {
	if window.IsZero() {
		return true
	}
	parsed := false
	for _, d := range dates {
		t, ok := normalize.ParseDate(d)
		if !ok {
			continue
		}
		parsed = true
		if window.Contains(t.Format(normalize.StorageLayout)) {
			return true
		}
	}
	return !parsed
}
