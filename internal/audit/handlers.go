package audit

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medrex/clinic-audit/pkg/types"
)

// RegisterRoutes configures the audit and divergence routes on router
func (s *Service) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	// Audit runs
	api.HandleFunc("/auditoria/executar", s.runAuditHandler).Methods("POST")
	api.HandleFunc("/auditoria/ultima", s.lastRunHandler).Methods("GET")

	// Divergences
	api.HandleFunc("/divergencias", s.listDivergenciasHandler).Methods("GET")
	api.HandleFunc("/divergencias/{id}/status", s.updateStatusHandler).Methods("PUT")

	s.logger.WithComponent("audit").Info("Audit routes configured")
}

// runAuditHandler triggers a run. The window may come in the JSON body or
// as query parameters.
func (s *Service) runAuditHandler(w http.ResponseWriter, r *http.Request) {
	var window types.DateWindow
	if err := json.NewDecoder(r.Body).Decode(&window); err != nil && !errors.Is(err, io.EOF) {
		s.writeRunError(w, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid request body",
			map[string]interface{}{"error": err.Error()}))
		return
	}
	if v := r.URL.Query().Get("data_inicio"); v != "" {
		window.Inicio = v
	}
	if v := r.URL.Query().Get("data_fim"); v != "" {
		window.Fim = v
	}

	result, err := s.RunAudit(r.Context(), &window)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

func (s *Service) lastRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.LastRun(r.Context())
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, run)
}

func (s *Service) listDivergenciasHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := &types.DivergenciaFilters{
		Status:     types.DivergenciaStatus(query.Get("status")),
		Tipo:       types.TipoDivergencia(query.Get("tipo")),
		Prioridade: types.Prioridade(query.Get("prioridade")),
		DataInicio: query.Get("data_inicio"),
		DataFim:    query.Get("data_fim"),
	}

	page, err := intParam(query.Get("page"))
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid page", nil))
		return
	}
	perPage, err := intParam(query.Get("per_page"))
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid per_page", nil))
		return
	}

	result, err := s.ListDivergencias(r.Context(), filters, page, perPage)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

type statusRequest struct {
	Status types.DivergenciaStatus `json:"status"`
}

func (s *Service) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid request body",
			map[string]interface{}{"error": err.Error()}))
		return
	}

	if err := s.UpdateDivergenciaStatus(r.Context(), id, req.Status, getUserIDFromRequest(r)); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
		"status":  req.Status,
	})
}

// getUserIDFromRequest reads the operator identity set by the gateway
func getUserIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
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
	statusCode, body := s.errorBody(err)
	s.writeJSONResponse(w, statusCode, body)
}

// writeRunError keeps the run result's success flag on failed runs
func (s *Service) writeRunError(w http.ResponseWriter, err error) {
	statusCode, body := s.errorBody(err)
	body["success"] = false
	s.writeJSONResponse(w, statusCode, body)
}

func (s *Service) errorBody(err error) (int, map[string]interface{}) {
	var clinicErr *types.ClinicError
	if !errors.As(err, &clinicErr) {
		s.logger.WithError(err).Error("Internal server error")
		return http.StatusInternalServerError, map[string]interface{}{
			"error":   types.ErrCodeInternalError,
			"message": "An internal error occurred",
		}
	}

	statusCode := statusCodeFromErrorType(clinicErr.Type)
	if statusCode >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}

	return statusCode, map[string]interface{}{
		"error":   clinicErr.Code,
		"message": clinicErr.Message,
		"details": clinicErr.Details,
	}
}

func statusCodeFromErrorType(errorType types.ErrorType) int {
	switch errorType {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeConcurrency, types.ErrorTypeConflict:
		return http.StatusConflict
	case types.ErrorTypeStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
