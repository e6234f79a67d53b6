package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"circleburo/internal/database"
	"circleburo/internal/monitoring"
	"circleburo/internal/service"

	"github.com/gorilla/mux"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	State  *sessionView      `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// errorStatus HTTP код для ошибок сервисного слоя.
func errorStatus(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, service.ErrDateUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrFormCompleted):
		return http.StatusConflict
	case errors.Is(err, database.ErrLeadNotFound), errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConfirmationRequired):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrSubmissionFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError отвечает по ошибке сервиса; 5xx уходят в лог и Sentry.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error, state *sessionView) {
	code := errorStatus(err)
	resp := errorResponse{Error: err.Error(), State: state}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "validation failed"
		resp.Fields = verr.Fields
	}

	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", requestID(r)).
			Str("path", r.URL.Path).
			Int("status", code).
			Msg("request failed")
		monitoring.CaptureRequestError(err, r, code)
		resp.Error = "internal error"
		if code == http.StatusServiceUnavailable {
			resp.Error = service.ErrSubmissionFailed.Error()
		}
	}
	writeJSON(w, code, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func jsonLine(payload any) ([]byte, error) {
	return json.Marshal(payload)
}
