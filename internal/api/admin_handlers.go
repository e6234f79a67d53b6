package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"circleburo/internal/export"
	"circleburo/internal/models"
	"circleburo/internal/service"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *HTTPServer) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, expiresAt, err := s.auth.Login(req.Password)
	if err != nil {
		s.log.Warn().Str("request_id", requestID(r)).Str("remote", clientIP(r)).Msg("admin login failed")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

type leadsResponse struct {
	Leads    []*models.Lead    `json:"leads"`
	Stats    service.LeadStats `json:"stats"`
	Banner   string            `json:"banner,omitempty"`
	LoadedAt time.Time         `json:"loaded_at"`
	Sort     service.SortState `json:"sort"`
}

// parseView фильтр и сортировка из query: search, status, date, sort, order, toggle.
func parseView(r *http.Request) (service.LeadFilter, service.SortState, error) {
	q := r.URL.Query()
	filter, err := service.ParseLeadFilter(q.Get("search"), q.Get("status"), q.Get("date"))
	if err != nil {
		return filter, service.SortState{}, err
	}

	sortState := service.DefaultSort()
	if raw := q.Get("sort"); raw != "" {
		key, err := service.ParseSortKey(raw)
		if err != nil {
			return filter, sortState, err
		}
		sortState = service.SortState{Key: key, Desc: strings.EqualFold(q.Get("order"), "desc")}
	}
	// toggle: клик по заголовку поверх текущей сортировки
	if raw := q.Get("toggle"); raw != "" {
		key, err := service.ParseSortKey(raw)
		if err != nil {
			return filter, sortState, err
		}
		sortState = sortState.Toggle(key)
	}
	return filter, sortState, nil
}

// ensureLoaded первая загрузка списка по требованию.
func (s *HTTPServer) ensureLoaded(r *http.Request) {
	if s.deps.Leads.LoadedAt().IsZero() {
		_ = s.deps.Leads.Load(r.Context())
	}
}

func (s *HTTPServer) leadsView(w http.ResponseWriter, r *http.Request) {
	filter, sortState, err := parseView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := s.deps.Leads
	writeJSON(w, http.StatusOK, leadsResponse{
		Leads:    m.View(filter, sortState),
		Stats:    m.Stats(),
		Banner:   m.Banner(),
		LoadedAt: m.LoadedAt(),
		Sort:     sortState,
	})
}

func (s *HTTPServer) handleListLeads(w http.ResponseWriter, r *http.Request) {
	s.ensureLoaded(r)
	s.leadsView(w, r)
}

// handleRefreshLeads при ошибке загрузки отдаёт прежний список с баннером.
func (s *HTTPServer) handleRefreshLeads(w http.ResponseWriter, r *http.Request) {
	_ = s.deps.Leads.Load(r.Context())
	s.leadsView(w, r)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lead, err := s.deps.Leads.UpdateStatus(r.Context(), id, status, changedBy(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *HTTPServer) handleSaveNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	lead, err := s.deps.Leads.SaveNotes(r.Context(), id, req.Notes, changedBy(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *HTTPServer) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	if err := s.deps.Leads.DeleteLead(r.Context(), id, confirmed, changedBy(r.Context())); err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.exportLeads(w, r, "csv", "text/csv; charset=utf-8", export.WriteCSV)
}

func (s *HTTPServer) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.exportLeads(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.WriteXLSX)
}

// exportLeads выгружает ровно то, что видно в таблице с теми же фильтрами.
func (s *HTTPServer) exportLeads(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(io.Writer, []*models.Lead, *time.Location) error) {
	filter, sortState, err := parseView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.ensureLoaded(r)

	availability := s.deps.Booking.Availability()
	var buf bytes.Buffer
	if err := write(&buf, s.deps.Leads.View(filter, sortState), availability.Location()); err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(availability.Now(), ext)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
