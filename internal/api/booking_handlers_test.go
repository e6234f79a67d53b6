package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"circleburo/internal/events"
	"circleburo/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotDates(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/slots/dates", nil, "")
	requireStatus(t, rec, http.StatusOK)

	resp := decode[struct {
		Today string   `json:"today"`
		Dates []string `json:"dates"`
		Slots []string `json:"slots"`
	}](t, rec)
	assert.Equal(t, "2026-10-15", resp.Today)
	require.Len(t, resp.Dates, 30)
	assert.Equal(t, "2026-10-15", resp.Dates[0])
	assert.Equal(t, "2026-10-19", resp.Dates[2])
	assert.NotContains(t, resp.Dates, "2026-10-17")
	assert.Len(t, resp.Slots, 10)
}

func TestSlotsForDate(t *testing.T) {
	env := newTestEnv(t)
	env.seedLead(t, "Анна", nextMonday, "10:00", models.StatusPending)
	env.seedLead(t, "Борис", nextMonday, "11:00", models.StatusCancelled)

	rec := env.do(t, http.MethodGet, "/api/v1/slots?date="+nextMonday, nil, "")
	requireStatus(t, rec, http.StatusOK)
	resp := decode[struct {
		Booked         []models.BookedSlot `json:"booked"`
		AvailableTimes []string            `json:"available_times"`
		Degraded       bool                `json:"degraded"`
	}](t, rec)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Booked, 1)
	assert.Equal(t, "10:00", resp.Booked[0].Time)
	assert.NotContains(t, resp.AvailableTimes, "10:00")
	assert.Contains(t, resp.AvailableTimes, "11:00")
	assert.Len(t, resp.AvailableTimes, 9)

	// сегодня прошедшие слоты не предлагаются
	rec = env.do(t, http.MethodGet, "/api/v1/slots?date=2026-10-15", nil, "")
	requireStatus(t, rec, http.StatusOK)
	today := decode[struct {
		AvailableTimes []string `json:"available_times"`
	}](t, rec)
	assert.Equal(t, []string{"11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00"}, today.AvailableTimes)

	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/slots", nil, ""), http.StatusBadRequest)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/slots?date=19.10.2026", nil, ""), http.StatusBadRequest)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/slots?date=2026-10-17", nil, ""), http.StatusUnprocessableEntity)
}

func TestBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	var published []string
	env.bus.Subscribe(func(e *events.Event) error {
		published = append(published, e.Type)
		return nil
	}, events.AllLeadEvents...)

	sid := env.newSession(t)
	base := "/api/v1/booking/sessions/" + sid

	rec := env.do(t, http.MethodPut, base+"/date", map[string]string{"date": nextMonday}, "")
	requireStatus(t, rec, http.StatusOK)
	view := decode[formView](t, rec)
	assert.Equal(t, nextMonday, view.SelectedDate)
	assert.Len(t, view.AvailableTimes, 10)

	rec = env.do(t, http.MethodPut, base+"/time", map[string]string{"time": "10:00"}, "")
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "10:00", decode[formView](t, rec).SelectedTime)

	rec = env.do(t, http.MethodPut, base+"/contact", map[string]string{"name": "анна иванова", "phone": "8 701 123 45 67"}, "")
	requireStatus(t, rec, http.StatusOK)
	view = decode[formView](t, rec)
	assert.Equal(t, "Анна Иванова", view.Name)
	assert.Equal(t, "+7 701 123 45 67", view.Phone)

	rec = env.do(t, http.MethodPost, base+"/submit", nil, "")
	requireStatus(t, rec, http.StatusCreated)
	submitted := decode[struct {
		Lead  models.Lead `json:"lead"`
		State formView    `json:"state"`
	}](t, rec)
	assert.NotZero(t, submitted.Lead.ID)
	assert.Equal(t, "77011234567", submitted.Lead.Phone)
	assert.Equal(t, models.StatusPending, submitted.Lead.Status)
	assert.Equal(t, models.StepConfirmation, submitted.State.Step)
	assert.Equal(t, submitted.Lead.ID, submitted.State.BookingID)
	assert.NotContains(t, submitted.State.AvailableTimes, "10:00")
	assert.Equal(t, []string{events.EventLeadCreated}, published)

	// форма сохранена в сессии
	rec = env.do(t, http.MethodGet, base, nil, "")
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, models.StepConfirmation, decode[formView](t, rec).Step)

	// сотрудник подтвердил, форма видит новый статус
	require.NoError(t, env.db.UpdateLeadStatus(context.Background(), submitted.Lead.ID, models.StatusPending, models.StatusConfirmed, testNow))
	rec = env.do(t, http.MethodGet, base, nil, "")
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, models.StatusConfirmed, decode[formView](t, rec).Status)

	// после отправки форма не редактируется
	requireStatus(t, env.do(t, http.MethodPut, base+"/time", map[string]string{"time": "11:00"}, ""), http.StatusConflict)

	rec = env.do(t, http.MethodGet, "/api/v1/bookings/"+itoa(submitted.Lead.ID)+"/status", nil, "")
	requireStatus(t, rec, http.StatusOK)
	status := decode[statusResponse](t, rec)
	assert.Equal(t, models.StatusConfirmed, status.Status)
	assert.Equal(t, models.StatusConfirmed.Label(), status.Label)

	// сброс возвращает к первому шагу
	rec = env.do(t, http.MethodDelete, base, nil, "")
	requireStatus(t, rec, http.StatusOK)
	view = decode[formView](t, rec)
	assert.Equal(t, models.StepSelect, view.Step)
	assert.Empty(t, view.SelectedDate)
	assert.Zero(t, view.BookingID)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	rec := env.do(t, http.MethodPost, "/api/v1/booking/sessions/"+sid+"/submit", nil, "")
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decode[errorView](t, rec)
	assert.Equal(t, "validation failed", resp.Error)
	assert.Contains(t, resp.Fields, models.FieldName)
	assert.Contains(t, resp.Fields, models.FieldPhone)
	assert.Contains(t, resp.Fields, models.FieldSlot)
	require.NotNil(t, resp.State)
	assert.Equal(t, resp.Fields, resp.State.FieldErrors)

	// ошибки полей сохраняются в форме
	rec = env.do(t, http.MethodGet, "/api/v1/booking/sessions/"+sid, nil, "")
	assert.Len(t, decode[formView](t, rec).FieldErrors, 3)
}

func TestSelectTimeOffGrid(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	rec := env.do(t, http.MethodPut, "/api/v1/booking/sessions/"+sid+"/time", map[string]string{"time": "19:00"}, "")
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	assert.Contains(t, decode[errorView](t, rec).Fields, models.FieldSlot)
}

func TestSelectDateRejected(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)
	base := "/api/v1/booking/sessions/" + sid

	requireStatus(t, env.do(t, http.MethodPut, base+"/date", map[string]string{"date": "2026-10-17"}, ""), http.StatusUnprocessableEntity)
	requireStatus(t, env.do(t, http.MethodPut, base+"/date", map[string]string{"date": "2026-10-14"}, ""), http.StatusUnprocessableEntity)
	requireStatus(t, env.do(t, http.MethodPut, base+"/date", map[string]string{"date": "bad"}, ""), http.StatusBadRequest)
	requireStatus(t, env.do(t, http.MethodPut, base+"/date", map[string]any{"day": 1}, ""), http.StatusBadRequest)
}

func TestSubmitSlotTaken(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)
	base := "/api/v1/booking/sessions/" + sid

	requireStatus(t, env.do(t, http.MethodPut, base+"/date", map[string]string{"date": nextMonday}, ""), http.StatusOK)
	requireStatus(t, env.do(t, http.MethodPut, base+"/time", map[string]string{"time": "10:00"}, ""), http.StatusOK)
	requireStatus(t, env.do(t, http.MethodPut, base+"/contact", map[string]string{"name": "Анна", "phone": "77011234567"}, ""), http.StatusOK)

	// слот заняли после выбора времени
	env.seedLead(t, "Борис", nextMonday, "10:00", models.StatusConfirmed)

	rec := env.do(t, http.MethodPost, base+"/submit", nil, "")
	requireStatus(t, rec, http.StatusConflict)
	resp := decode[errorView](t, rec)
	require.NotNil(t, resp.State)
	assert.NotEmpty(t, resp.State.Error)
	assert.Equal(t, models.StepSelect, resp.State.Step)
	assert.NotContains(t, resp.State.AvailableTimes, "10:00")
}

func TestSubmitRateLimited(t *testing.T) {
	env := newTestEnv(t, withSubmitLimit(1))
	sid := env.newSession(t)
	submit := "/api/v1/booking/sessions/" + sid + "/submit"

	requireStatus(t, env.do(t, http.MethodPost, submit, nil, ""), http.StatusUnprocessableEntity)
	requireStatus(t, env.do(t, http.MethodPost, submit, nil, ""), http.StatusTooManyRequests)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/booking/sessions/"+uuid.NewString(), nil, ""), http.StatusNotFound)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/booking/sessions/nope", nil, ""), http.StatusNotFound)
	requireStatus(t, env.do(t, http.MethodPut, "/api/v1/booking/sessions/nope/time", map[string]string{"time": "10:00"}, ""), http.StatusNotFound)
}

func TestBookingStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/bookings/999/status", nil, ""), http.StatusNotFound)
	requireStatus(t, env.do(t, http.MethodGet, "/api/v1/bookings/999/watch", nil, ""), http.StatusNotFound)
}

func TestWatchBookingStream(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, "Анна", nextMonday, "10:00", models.StatusPending)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/bookings/"+itoa(lead.ID)+"/watch", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Equal(t, models.StatusPending, first.Status)

	require.NoError(t, env.db.UpdateLeadStatus(context.Background(), lead.ID, models.StatusPending, models.StatusConfirmed, time.Now()))
	second := readEvent(t, reader)
	assert.Equal(t, models.StatusConfirmed, second.Status)
	assert.Equal(t, lead.ID, second.ID)
}

func readEvent(t *testing.T, r *bufio.Reader) statusResponse {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" && data != "" {
			break
		}
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = rest
		}
	}
	var out statusResponse
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	return out
}
