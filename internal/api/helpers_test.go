package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"circleburo/internal/config"
	"circleburo/internal/database"
	"circleburo/internal/events"
	"circleburo/internal/models"
	"circleburo/internal/repository"
	"circleburo/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	almaty = time.FixedZone("ALMT", 5*3600)
	// четверг, 15 октября 2026, 10:30 по Алматы
	testNow = time.Date(2026, 10, 15, 10, 30, 0, 0, almaty)
)

const (
	nextMonday = "2026-10-19"
	adminPass  = "secret-pass"
)

type testEnv struct {
	srv *HTTPServer
	db  *database.DB
	bus *events.EventBus
}

type envOption func(*config.APIConfig, *int)

func withRateLimit(rps float64, burst int) envOption {
	return func(c *config.APIConfig, _ *int) {
		c.RateLimit = config.APIRateLimitConfig{RPS: rps, Burst: burst}
	}
}

func withSubmitLimit(n int) envOption {
	return func(_ *config.APIConfig, limit *int) { *limit = n }
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := nopLogger()

	db, err := database.NewDB(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.APIConfig{
		HTTP: config.APIHTTPConfig{AllowedOrigins: []string{"https://circleburo.kz"}},
		Admin: config.AdminConfig{
			Password:  adminPass,
			JWTSecret: "0123456789abcdef0123456789abcdef",
			TokenTTL:  time.Hour,
		},
	}
	submitLimit := 5
	for _, opt := range opts {
		opt(&cfg, &submitLimit)
	}

	bus := events.NewEventBus()
	availability := service.NewAvailabilityService(db, almaty, 30, logger)
	availability.SetClock(func() time.Time { return testNow })

	leads := service.NewLeadManager(db, bus, almaty, logger)
	leads.SetClock(func() time.Time { return testNow })

	deps := Deps{
		Booking:  service.NewBookingService(db, availability, bus, logger),
		Sessions: service.NewFormSessions(repository.NewMemoryStateRepository(time.Hour), submitLimit, time.Minute, logger),
		Poller:   service.NewStatusPoller(db, 10*time.Millisecond, logger),
		Leads:    leads,
		Store:    db,
	}
	return &testEnv{srv: NewHTTPServer(cfg, deps, logger), db: db, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, _, err := e.srv.auth.Login(adminPass)
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedLead(t *testing.T, name, date, slot string, status models.Status) *models.Lead {
	t.Helper()
	d, err := models.ParseDate(date)
	require.NoError(t, err)
	lead := &models.Lead{Name: name, Phone: "77011234567", MeetingDate: d, MeetingTime: slot, Status: status}
	require.NoError(t, e.db.CreateLead(context.Background(), lead))
	return lead
}

// formView ответ ручек формы.
type formView struct {
	SessionID      string              `json:"session_id"`
	Step           models.FormStep     `json:"step"`
	SelectedDate   string              `json:"selected_date"`
	SelectedTime   string              `json:"selected_time"`
	Name           string              `json:"name"`
	Phone          string              `json:"phone"`
	BookedSlots    []models.BookedSlot `json:"booked_slots"`
	BookingID      int64               `json:"booking_id"`
	Status         models.Status       `json:"status"`
	FieldErrors    map[string]string   `json:"field_errors"`
	Error          string              `json:"error"`
	AvailableTimes []string            `json:"available_times"`
}

type errorView struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
	State  *formView         `json:"state"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/booking/sessions", nil, "")
	requireStatus(t, rec, http.StatusCreated)
	return decode[formView](t, rec).SessionID
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
