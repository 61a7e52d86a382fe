package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"envelopes/internal/events"
	"envelopes/internal/format"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

// dashboardActivityLimit is how many journal entries the dashboard shows.
const dashboardActivityLimit = 10

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	names := make([]string, 0, len(s.readiness))
	for name := range s.readiness {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.readiness[name](ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	idempotencyStats := s.idempotency.Stats()
	snapshot := s.svc.List(r.Context())

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", traceMetrics.InFlight)
	metric("http_client_errors_total", "counter", "Responses with a 4xx status", traceMetrics.ClientErrors)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_ms", "gauge", "Average response time in milliseconds", traceMetrics.AverageResponseTime().Milliseconds())

	metric("envelopes", "gauge", "Envelopes currently in the ledger", len(snapshot.Envelopes))
	metric("ledger_total_budget", "gauge", "Sum of all envelope budgets", fmt.Sprintf("%.2f", snapshot.TotalBudget))

	metric("idempotency_entries", "gauge", "Stored idempotent responses", idempotencyStats.Size)
	metric("idempotency_replays_total", "counter", "Responses replayed for a reused Idempotency-Key", atomic.LoadInt64(&s.replays))

	metric("rate_limit_allowed_total", "counter", "Mutating requests admitted by the rate limiter", rateLimitMetrics.Allowed)
	metric("rate_limit_rejected_total", "counter", "Mutating requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	metric("rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)

	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests blocked by the security detector", securityMetrics.BlockedRequests)

	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.startedAt).Seconds()))
}

type envelopeRow struct {
	ID     int64
	Title  string
	Budget string
	Share  string
	Width  int
}

type activityRow struct {
	When    string
	Type    string
	Amount  string
	Targets string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	snapshot := s.svc.List(r.Context())

	data := struct {
		Currency       string
		Total          string
		Count          int
		Envelopes      []envelopeRow
		Activity       []activityRow
		JournalEnabled bool
	}{
		Currency: s.currency,
		Total:    format.Money(snapshot.TotalBudget, s.currency),
		Count:    len(snapshot.Envelopes),
	}

	for _, env := range snapshot.Envelopes {
		data.Envelopes = append(data.Envelopes, envelopeRow{
			ID:     env.ID,
			Title:  env.Title,
			Budget: format.Money(env.Budget, s.currency),
			Share:  format.Percent(env.Budget, snapshot.TotalBudget),
			Width:  barWidth(env.Budget, snapshot.TotalBudget),
		})
	}

	recent, err := s.svc.Activity(r.Context(), dashboardActivityLimit)
	switch {
	case errors.Is(err, services.ErrNoJournal):
	case err != nil:
		s.logger.ErrorContext(r.Context(), "Activity lookup failed", log.FieldError, err)
	default:
		data.JournalEnabled = true
		for _, evt := range recent {
			data.Activity = append(data.Activity, s.activityRow(evt))
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed", log.FieldError, err, "template", "index.html")
		http.Error(w, "template rendering failed", http.StatusInternalServerError)
	}
}

func (s *Server) activityRow(evt events.Event) activityRow {
	targets := ""
	for i, id := range evt.EnvelopeIDs {
		if i > 0 {
			targets += ", "
		}
		targets += fmt.Sprintf("#%d", id)
	}
	return activityRow{
		When:    evt.OccurredAt.Local().Format("2006-01-02 15:04:05"),
		Type:    string(evt.Type),
		Amount:  format.Money(evt.Amount, s.currency),
		Targets: targets,
	}
}

// barWidth is the share of total as a rounded percentage, at least 2 so
// small non-zero budgets stay visible.
func barWidth(part, total float64) int {
	if total <= 0 || part <= 0 {
		return 0
	}
	width := int(part/total*100 + 0.5)
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}
