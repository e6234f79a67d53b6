package monitoring

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"circleburo/internal/config"

	"github.com/getsentry/sentry-go"
)

// InitSentry включает отправку ошибок; без DSN ничего не делает и возвращает false.
func InitSentry(cfg config.SentryConfig, app config.AppConfig) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      app.Environment,
		Release:          app.Name + "@" + app.Version,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}
	return true, nil
}

// Flush дожидается отправки буфера перед выходом.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureError отправляет ошибку с дополнительным контекстом; без клиента ничего не делает.
func CaptureError(err error, extra map[string]interface{}) {
	hub := sentry.CurrentHub()
	if hub == nil || hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range extra {
			scope.SetExtra(k, v)
		}
		hub.CaptureException(err)
	})
}

// CaptureRequestError ошибка обработчика с данными запроса.
func CaptureRequestError(err error, r *http.Request, status int) {
	CaptureError(err, map[string]interface{}{
		"method":  r.Method,
		"url":     r.URL.String(),
		"status":  status,
		"headers": safeHeaders(r.Header),
	})
}

func safeHeaders(h http.Header) map[string]interface{} {
	safe := make(map[string]interface{}, len(h))
	for k, v := range h {
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Cookie") {
			safe[k] = "[FILTERED]"
		} else {
			safe[k] = v
		}
	}
	return safe
}
