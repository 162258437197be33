package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/medrex/clinic-audit/pkg/types"
)

// sheetField is the multipart field carrying the spreadsheet
const sheetField = "arquivo"

// RegisterRoutes configures the ingestion routes on router
func (s *Service) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/fichas", s.importFichasHandler).Methods("POST")
	api.HandleFunc("/fichas/{codigo}", s.getFichaHandler).Methods("GET")
	api.HandleFunc("/fichas/{codigo}", s.deleteFichaHandler).Methods("DELETE")
	api.HandleFunc("/execucoes", s.importExecucoesHandler).Methods("POST")
	api.HandleFunc("/execucoes/planilha", s.importPlanilhaHandler).Methods("POST")
	api.HandleFunc("/guias", s.importGuiasHandler).Methods("POST")
	api.HandleFunc("/guias/{numero}", s.getGuiaHandler).Methods("GET")
	api.HandleFunc("/guias/{numero}", s.deleteGuiaHandler).Methods("DELETE")

	s.logger.WithComponent("ingest").Info("Ingestion routes configured")
}

func (s *Service) importFichasHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readBody(w, r)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	fichas, err := DecodeFichas(raw)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, s.ImportFichas(r.Context(), fichas))
}

func (s *Service) importExecucoesHandler(w http.ResponseWriter, r *http.Request) {
	substituir, err := boolParam(r.URL.Query().Get("substituir"))
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid substituir flag", nil))
		return
	}

	raw, err := s.readBody(w, r)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	execucoes, err := DecodeExecucoes(raw)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	report, err := s.ImportExecucoes(r.Context(), execucoes, substituir)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, report)
}

// importPlanilhaHandler replaces every execucao with the rows of an uploaded
// insurer export
func (s *Service) importPlanilhaHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid multipart upload",
			map[string]interface{}{"error": err.Error()}))
		return
	}

	file, header, err := r.FormFile(sheetField)
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "missing spreadsheet",
			map[string]interface{}{"field": sheetField}))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "only .xlsx files are accepted",
			map[string]interface{}{"filename": header.Filename}))
		return
	}

	execucoes, rejected, err := NewSheetParser(s.normalizer).ParseExecucoes(file)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	report, err := s.ImportExecucoes(r.Context(), execucoes, true)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}
	report.Ignorados += len(rejected)
	report.Erros = append(rejected, report.Erros...)

	s.writeJSONResponse(w, http.StatusOK, report)
}

func (s *Service) importGuiasHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readBody(w, r)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	guias, err := DecodeGuias(raw)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, s.ImportGuias(r.Context(), guias))
}

func (s *Service) getFichaHandler(w http.ResponseWriter, r *http.Request) {
	ficha, err := s.GetFicha(r.Context(), mux.Vars(r)["codigo"])
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, ficha)
}

func (s *Service) getGuiaHandler(w http.ResponseWriter, r *http.Request) {
	guia, err := s.GetGuia(r.Context(), mux.Vars(r)["numero"])
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, guia)
}

func (s *Service) deleteGuiaHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteGuia(r.Context(), mux.Vars(r)["numero"], r.Header.Get("X-User-ID")); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) deleteFichaHandler(w http.ResponseWriter, r *http.Request) {
	codigo := mux.Vars(r)["codigo"]

	if err := s.DeleteFicha(r.Context(), codigo, r.Header.Get("X-User-ID")); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readBody reads a JSON payload bounded by the upload limit
func (s *Service) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "payload too large",
				map[string]interface{}{"limit": tooLarge.Limit})
		}
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "failed to read request body",
			map[string]interface{}{"error": err.Error()})
	}
	return raw, nil
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse maps err onto a status code and a structured body
func (s *Service) writeErrorResponse(w http.ResponseWriter, err error) {
	var clinicErr *types.ClinicError
	if !errors.As(err, &clinicErr) {
		s.logger.WithError(err).Error("Internal server error")
		s.writeJSONResponse(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   types.ErrCodeInternalError,
			"message": "An internal error occurred",
		})
		return
	}

	statusCode := http.StatusInternalServerError
	switch clinicErr.Type {
	case types.ErrorTypeValidation:
		statusCode = http.StatusBadRequest
	case types.ErrorTypeNotFound:
		statusCode = http.StatusNotFound
	case types.ErrorTypeConflict:
		statusCode = http.StatusConflict
	case types.ErrorTypeStore:
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":   clinicErr.Code,
		"message": clinicErr.Message,
		"details": clinicErr.Details,
	})
}
