// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/observability"
)

// requireIdentity resolves the session cookie to a logged-in identity. When
// it returns false the reply has been written.
func (a *api) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.SessionIdentity, bool) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		a.writeMessage(w, r, http.StatusUnauthorized, msgUnauthorized)
		return nil, false
	}

	id, err := a.accounts.Authenticate(r.Context(), cookie.Value)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return id, true
}

// optionalIdentity resolves the session cookie if there is one, anonymous
// sessions included. Failures are logged and treated as no session.
func (a *api) optionalIdentity(r *http.Request) *auth.SessionIdentity {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return nil
	}
	id, err := a.accounts.Resume(r.Context(), cookie.Value)
	if err != nil {
		a.logger.DebugContext(r.Context(), "ignoring session cookie", "error", err)
		return nil
	}
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}

// logRequests writes one record per request.
func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"route", routeOf(r),
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func recordMetrics(m *observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		route := routeOf(r)
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
