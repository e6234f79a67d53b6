package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"circleburo/internal/models"

	"github.com/gorilla/mux"
)

// sessionView состояние формы плюс свободные слоты выбранного дня.
type sessionView struct {
	*models.FormState
	AvailableTimes []string `json:"available_times"`
}

func (s *HTTPServer) viewOf(st *models.FormState) *sessionView {
	view := &sessionView{FormState: st, AvailableTimes: []string{}}
	if date, ok := st.Date(); ok {
		view.AvailableTimes = s.deps.Booking.Availability().AvailableTimes(st.BookedSlots, date)
	}
	return view
}

func (s *HTTPServer) handleSlotDates(w http.ResponseWriter, _ *http.Request) {
	availability := s.deps.Booking.Availability()
	dates := availability.AvailableDates()
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, d.Format(models.DateLayout))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"today": availability.Today().Format(models.DateLayout),
		"dates": keys,
		"slots": models.TimeSlots,
	})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	availability := s.deps.Booking.Availability()
	if !availability.IsDateAvailable(date) {
		writeError(w, http.StatusUnprocessableEntity, "date unavailable")
		return
	}

	booked, err := availability.LoadBookedSlots(r.Context(), date)
	writeJSON(w, http.StatusOK, map[string]any{
		"date":            date.Format(models.DateLayout),
		"booked":          booked,
		"available_times": availability.AvailableTimes(booked, date),
		"degraded":        err != nil,
	})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Sessions.Create(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, s.viewOf(st))
}

// handleGetSession на шаге подтверждения заодно подтягивает актуальный статус заявки.
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := mux.Vars(r)["sid"]
	unlock := s.deps.Sessions.Lock(sid)
	defer unlock()

	st, err := s.deps.Sessions.Get(ctx, sid)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	changed, err := s.deps.Booking.RefreshStatus(ctx, st)
	if err != nil {
		s.log.Debug().Err(err).Int64("lead_id", st.BookingID).Msg("refresh booking status")
	}
	if changed {
		if err := s.deps.Sessions.Save(ctx, st); err != nil {
			s.log.Warn().Err(err).Str("session_id", sid).Msg("save refreshed session")
		}
	}
	writeJSON(w, http.StatusOK, s.viewOf(st))
}

// mutateSession меняет форму под блокировкой сессии и сохраняет её даже при ошибке шага:
// ошибки полей и баннер живут в самой форме.
func (s *HTTPServer) mutateSession(w http.ResponseWriter, r *http.Request, okStatus int,
	fn func(ctx context.Context, st *models.FormState) (any, error)) {
	ctx := r.Context()
	sid := mux.Vars(r)["sid"]

	unlock := s.deps.Sessions.Lock(sid)
	defer unlock()

	st, err := s.deps.Sessions.Get(ctx, sid)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}

	extra, opErr := fn(ctx, st)
	if err := s.deps.Sessions.Save(ctx, st); err != nil {
		s.writeServiceError(w, r, fmt.Errorf("save session: %w", err), nil)
		return
	}
	if opErr != nil {
		s.writeServiceError(w, r, opErr, s.viewOf(st))
		return
	}

	if extra != nil {
		writeJSON(w, okStatus, extra)
		return
	}
	writeJSON(w, okStatus, s.viewOf(st))
}

type selectDateRequest struct {
	Date string `json:"date"`
}

func (s *HTTPServer) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var req selectDateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := models.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	s.mutateSession(w, r, http.StatusOK, func(ctx context.Context, st *models.FormState) (any, error) {
		return nil, s.deps.Booking.SelectDate(ctx, st, date)
	})
}

type selectTimeRequest struct {
	Time string `json:"time"`
}

func (s *HTTPServer) handleSelectTime(w http.ResponseWriter, r *http.Request) {
	var req selectTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mutateSession(w, r, http.StatusOK, func(_ context.Context, st *models.FormState) (any, error) {
		return nil, s.deps.Booking.SelectTime(st, req.Time)
	})
}

// contactRequest поля необязательны: можно прислать только имя или только телефон.
type contactRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (s *HTTPServer) handleSetContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mutateSession(w, r, http.StatusOK, func(_ context.Context, st *models.FormState) (any, error) {
		if req.Name != nil {
			if err := s.deps.Booking.SetName(st, *req.Name); err != nil {
				return nil, err
			}
		}
		if req.Phone != nil {
			if err := s.deps.Booking.SetPhone(st, *req.Phone); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

type submitResponse struct {
	Lead  *models.Lead `json:"lead"`
	State *sessionView `json:"state"`
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	if err := s.deps.Sessions.CheckSubmitLimit(r.Context(), sid); err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}

	s.mutateSession(w, r, http.StatusCreated, func(ctx context.Context, st *models.FormState) (any, error) {
		lead, err := s.deps.Booking.Submit(ctx, st)
		if err != nil {
			return nil, err
		}
		return submitResponse{Lead: lead, State: s.viewOf(st)}, nil
	})
}

func (s *HTTPServer) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s.mutateSession(w, r, http.StatusOK, func(_ context.Context, st *models.FormState) (any, error) {
		s.deps.Booking.Reset(st)
		return nil, nil
	})
}

type statusResponse struct {
	ID     int64         `json:"id"`
	Status models.Status `json:"status"`
	Label  string        `json:"label"`
}

func newStatusResponse(id int64, status models.Status) statusResponse {
	return statusResponse{ID: id, Status: status, Label: status.Label()}
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	status, err := s.deps.Poller.Poll(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(id, status))
}

// handleWatchBooking SSE поток статуса: текущий статус сразу, дальше только изменения.
// Поток живёт, пока клиент не отключится.
func (s *HTTPServer) handleWatchBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	ctx := r.Context()
	current, err := s.deps.Poller.Poll(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}

	rc := http.NewResponseController(w)
	// WriteTimeout сервера к потоку не относится
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(status models.Status) {
		if err := writeSSE(w, "status", newStatusResponse(id, status)); err != nil {
			s.log.Debug().Err(err).Int64("lead_id", id).Msg("sse write failed")
			return
		}
		_ = rc.Flush()
	}

	send(current)
	s.deps.Poller.Watch(ctx, id, current, send)
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := jsonLine(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
