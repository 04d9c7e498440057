/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logging:    Structured request log (zap)
  4. Metrics:    Prometheus request counters and latency
  5. CORS:       Cross-origin requests for the admin/dashboard frontend

ROUTE GROUPS:
  /healthz              Liveness + database ping
  /metrics              Prometheus scrape endpoint
  /api/roles/*          Roles, KPIs, formulas
  /api/kpis/*           KPI by ID
  /api/formulas/*       Formula presets
  /api/evaluate         Ad-hoc formula evaluation
  /api/users/*          Users, actuals, dashboard
  /api/positions/*      Headcount plan
  /api/forecast/*       Payout forecast
  /api/scenarios/*      Demo scenarios
  /*                    Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from web/dist/ when present.
  Falls back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/kpi-bonus/logging"
	"github.com/warp/kpi-bonus/metrics"
)

// NewRouter creates a new router with all routes configured. An empty
// corsOrigins list allows the local dev frontends.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(h.Logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Role routes
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.ListRoles)
			r.Post("/", h.CreateRole)
			r.Get("/{id}", h.GetRole)
			r.Put("/{id}", h.UpdateRole)
			r.Delete("/{id}", h.DeleteRole)
			r.Get("/{id}/kpis", h.ListRoleKPIs)
			r.Post("/{id}/kpis", h.CreateKPI)
			r.Get("/{id}/kpis/{kpiID}/formula", h.GetFormula)
			r.Put("/{id}/kpis/{kpiID}/formula", h.PutFormula)
			r.Delete("/{id}/kpis/{kpiID}/formula", h.DeleteFormula)
		})

		// KPI routes
		r.Route("/kpis", func(r chi.Router) {
			r.Get("/{id}", h.GetKPI)
			r.Put("/{id}", h.UpdateKPI)
			r.Delete("/{id}", h.DeleteKPI)
		})

		r.Get("/formulas/default", h.DefaultFormula)
		r.Post("/evaluate", h.Evaluate)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}/actuals", h.SaveActuals)
			r.Get("/{id}/dashboard", h.GetDashboard)
			r.Post("/{id}/dashboard/simulate", h.SimulateDashboard)
		})

		// Forecast routes
		r.Route("/positions", func(r chi.Router) {
			r.Get("/", h.ListPositions)
			r.Post("/", h.CreatePosition)
			r.Delete("/{id}", h.DeletePosition)
		})
		r.Route("/forecast", func(r chi.Router) {
			r.Post("/", h.Forecast)
			r.Get("/runs", h.ListForecastRuns)
			r.Get("/schedule", h.GetForecastSchedule)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Serve static files
	// First try ./web/dist (development), then relative to the executable
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}

	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>KPI Bonus</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>KPI Bonus API</h1>
<p>The frontend is not built. Run <code>cd web && npm install && npm run build</code></p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/roles">/api/roles</a> - List roles</li>
<li><a href="/api/users">/api/users</a> - List users</li>
<li><a href="/api/forecast/runs">/api/forecast/runs</a> - Forecast history</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}
