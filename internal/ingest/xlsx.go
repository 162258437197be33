package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/medrex/clinic-audit/internal/normalize"
	"github.com/medrex/clinic-audit/pkg/types"
)

// headerScanRows bounds how far down the sheet the header row is searched
const headerScanRows = 15

type column int

const (
	colNumeroGuia column = iota
	colCodigoFicha
	colPacienteNome
	colCarteirinha
	colDataExecucao
)

// headerAliases maps folded header text to the column it names. Insurer
// exports differ in wording, so several spellings are accepted.
var headerAliases = map[string]column{
	"guia":                 colNumeroGuia,
	"numero guia":          colNumeroGuia,
	"numero da guia":       colNumeroGuia,
	"n guia":               colNumeroGuia,
	"no guia":              colNumeroGuia,
	"codigo ficha":         colCodigoFicha,
	"codigo da ficha":      colCodigoFicha,
	"cod ficha":            colCodigoFicha,
	"ficha":                colCodigoFicha,
	"paciente":             colPacienteNome,
	"paciente nome":        colPacienteNome,
	"nome paciente":        colPacienteNome,
	"nome do paciente":     colPacienteNome,
	"beneficiario":         colPacienteNome,
	"carteirinha":          colCarteirinha,
	"paciente carteirinha": colCarteirinha,
	"carteira":             colCarteirinha,
	"matricula":            colCarteirinha,
	"data":                 colDataExecucao,
	"data execucao":        colDataExecucao,
	"data da execucao":     colDataExecucao,
	"data de execucao":     colDataExecucao,
	"data realizacao":      colDataExecucao,
	"data atendimento":     colDataExecucao,
}

var headerFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
	"º", "o", "°", "o",
	"_", " ", ".", " ", "-", " ", ":", " ",
)

// foldHeader lowercases, strips accents and punctuation and collapses spaces
func foldHeader(s string) string {
	folded := headerFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(folded), " ")
}

// SheetParser reads insurer protocol exports into execucoes
type SheetParser struct {
	normalizer *normalize.Normalizer
}

// NewSheetParser creates a parser that canonicalizes dates with n
func NewSheetParser(n *normalize.Normalizer) *SheetParser {
	return &SheetParser{normalizer: n}
}

// ParseExecucoes reads the first sheet of an .xlsx workbook. Rows that carry
// neither a guia nor a ficha code are reported in rejected, keyed by their
// 1-based sheet row.
func (p *SheetParser) ParseExecucoes(r io.Reader) (execucoes []*types.Execucao, rejected []string, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "failed to open spreadsheet",
			map[string]interface{}{"error": err.Error()})
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "spreadsheet has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "failed to read sheet",
			map[string]interface{}{"sheet": sheets[0], "error": err.Error()})
	}

	headerRow, columns := findHeader(rows)
	if headerRow < 0 {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"no header row with a guia or ficha column found", map[string]interface{}{"sheet": sheets[0]})
	}

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}

		execucao := &types.Execucao{
			NumeroGuia:   cell(row, columns, colNumeroGuia),
			CodigoFicha:  cell(row, columns, colCodigoFicha),
			PacienteNome: cell(row, columns, colPacienteNome),
			Carteirinha:  cell(row, columns, colCarteirinha),
			DataExecucao: p.sheetDate(cell(row, columns, colDataExecucao)),
		}
		p.normalizer.Execucao(execucao)

		if err := normalize.ValidateExecucao(execucao); err != nil {
			rejected = append(rejected, fmt.Sprintf("linha %d: %v", i+1, err))
			continue
		}
		execucoes = append(execucoes, execucao)
	}

	return execucoes, rejected, nil
}

// findHeader returns the index of the first row naming a guia or ficha
// column, with the position of every recognized column.
func findHeader(rows [][]string) (int, map[column]int) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		columns := make(map[column]int)
		for j, text := range rows[i] {
			col, ok := headerAliases[foldHeader(text)]
			if !ok {
				continue
			}
			if _, taken := columns[col]; !taken {
				columns[col] = j
			}
		}

		_, hasGuia := columns[colNumeroGuia]
		_, hasFicha := columns[colCodigoFicha]
		if hasGuia || hasFicha {
			return i, columns
		}
	}
	return -1, nil
}

// sheetDate converts an Excel serial date to stored form. Text dates are left
// for the normalizer.
func (p *SheetParser) sheetDate(raw string) string {
	if raw == "" || strings.ContainsAny(raw, "/-") {
		return raw
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || serial <= 0 {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return raw
	}
	return t.Format(normalize.StorageLayout)
}

func cell(row []string, columns map[column]int, col column) string {
	j, ok := columns[col]
	if !ok || j >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[j])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
