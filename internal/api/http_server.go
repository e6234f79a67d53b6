package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"circleburo/internal/config"
	"circleburo/internal/metrics"
	"circleburo/internal/monitoring"
	"circleburo/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// corsMaxAge сколько секунд браузер кэширует ответ на preflight.
const corsMaxAge = 600

// Deps сервисы, которые обслуживает HTTP API.
type Deps struct {
	Booking  *service.BookingService
	Sessions *service.FormSessions
	Poller   *service.StatusPoller
	Leads    *service.LeadManager
	Store    Pinger
}

// HTTPServer публичный API формы записи и админка заявок.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	auth    *AdminAuth
	limiter *rateLimiter
	handler http.Handler
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		auth:    NewAdminAuth(cfg.Admin),
		limiter: newRateLimiter(cfg.RateLimit),
		log:     zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	// CORS снаружи роутера: preflight OPTIONS не совпадает ни с одним маршрутом
	srv.handler = srv.corsMiddleware(srv.routes())
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return srv
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.requestIDMiddleware, s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	public := r.PathPrefix("/api/v1").Subrouter()
	public.Use(s.limiter.Middleware)

	public.HandleFunc("/slots/dates", s.handleSlotDates).Methods(http.MethodGet)
	public.HandleFunc("/slots", s.handleSlots).Methods(http.MethodGet)

	public.HandleFunc("/booking/sessions", s.handleCreateSession).Methods(http.MethodPost)
	public.HandleFunc("/booking/sessions/{sid}", s.handleGetSession).Methods(http.MethodGet)
	public.HandleFunc("/booking/sessions/{sid}", s.handleResetSession).Methods(http.MethodDelete)
	public.HandleFunc("/booking/sessions/{sid}/date", s.handleSelectDate).Methods(http.MethodPut)
	public.HandleFunc("/booking/sessions/{sid}/time", s.handleSelectTime).Methods(http.MethodPut)
	public.HandleFunc("/booking/sessions/{sid}/contact", s.handleSetContact).Methods(http.MethodPut)
	public.HandleFunc("/booking/sessions/{sid}/submit", s.handleSubmit).Methods(http.MethodPost)

	public.HandleFunc("/bookings/{id:[0-9]+}/status", s.handleBookingStatus).Methods(http.MethodGet)
	public.HandleFunc("/bookings/{id:[0-9]+}/watch", s.handleWatchBooking).Methods(http.MethodGet)

	public.HandleFunc("/admin/login", s.handleAdminLogin).Methods(http.MethodPost)

	admin := r.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(s.auth.Middleware)
	admin.HandleFunc("/leads", s.handleListLeads).Methods(http.MethodGet)
	admin.HandleFunc("/leads/refresh", s.handleRefreshLeads).Methods(http.MethodPost)
	admin.HandleFunc("/leads/export.csv", s.handleExportCSV).Methods(http.MethodGet)
	admin.HandleFunc("/leads/export.xlsx", s.handleExportXLSX).Methods(http.MethodGet)
	admin.HandleFunc("/leads/{id:[0-9]+}/status", s.handleUpdateStatus).Methods(http.MethodPut)
	admin.HandleFunc("/leads/{id:[0-9]+}/notes", s.handleSaveNotes).Methods(http.MethodPut)
	admin.HandleFunc("/leads/{id:[0-9]+}", s.handleDeleteLead).Methods(http.MethodDelete)

	return r
}

// Handler обработчик целиком, для тестов и встраивания.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// RunLimiterSweeper чистит лимитеры неактивных клиентов до отмены ctx.
func (s *HTTPServer) RunLimiterSweeper(ctx context.Context) {
	s.limiter.Run(ctx, 5*time.Minute, 30*time.Minute)
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type requestIDKey struct{}

func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.IncHTTP(route, recorder.status)

		s.log.Info().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				s.log.Error().Err(err).Str("path", r.URL.Path).Msg("http handler panic")
				monitoring.CaptureRequestError(err, r, http.StatusInternalServerError)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware разрешает запросы сайта с перечисленных origin; пустой список закрывает CORS.
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.cfg.HTTP.AllowedOrigins))
	for _, o := range s.cfg.HTTP.AllowedOrigins {
		allowed[o] = true
	}

	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.HTTP.AllowedOrigins),
		handlers.AllowedOriginValidator(func(origin string) bool {
			return allowed["*"] || allowed[origin]
		}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-Id"}),
		handlers.ExposedHeaders([]string{"X-Request-Id", "Content-Disposition"}),
		handlers.MaxAge(corsMaxAge),
		handlers.OptionStatusCode(http.StatusNoContent),
	)(next)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
