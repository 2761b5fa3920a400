package app

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"examlms/internal/app/observability"
	"examlms/internal/assignment"
	"examlms/internal/auth"
	"examlms/internal/db"
	"examlms/internal/exam"
	"examlms/internal/report"
	"examlms/internal/roster"
)

func NewRouter(cfg Config, conn *sql.DB, driver db.Driver, events exam.CompletionPublisher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(conn)
	r.Use(collector.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)
	r.Use(RateLimitMiddleware(limiter))
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authMW := auth.NewMiddleware(cfg.JWTSecret)

	rosterSvc := roster.NewService(conn)
	rosterHandler := roster.NewHandler(rosterSvc)

	examSvc := exam.NewService(conn, driver, rosterSvc, events)
	examHandler := exam.NewHandler(examSvc)

	reportHandler := report.NewHandler(report.NewService(examSvc))
	assignmentHandler := assignment.NewHandler(assignment.NewService())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secure chi.Router) {
			secure.Use(authMW.RequireAuth)

			secure.Route("/exams", func(ex chi.Router) {
				ex.Group(func(staff chi.Router) {
					staff.Use(authMW.RequireRoles(auth.RoleTeacher, auth.RoleAdmin))
					staff.Post("/", examHandler.CreateExam)
					staff.Put("/{id}", examHandler.UpdateExam)
					staff.Post("/{id}/publish", examHandler.Publish)
					staff.Post("/{id}/archive", examHandler.Archive)
					staff.Post("/{id}/cancel", examHandler.Cancel)
					staff.Post("/{id}/access-token", examHandler.GenerateAccessToken)
					staff.Put("/{id}/assignments", rosterHandler.ReplaceAssignments)
					staff.Get("/{id}/assignments", rosterHandler.ListAssignments)
					staff.Get("/{id}/report.xlsx", reportHandler.ExamReport)
				})

				ex.Get("/{id}", examHandler.GetExam)
				ex.Get("/{id}/results", examHandler.ListResults)

				ex.Group(func(student chi.Router) {
					student.Use(authMW.RequireRoles(auth.RoleStudent))
					student.Post("/{id}/attempts/start", examHandler.Start)
					student.Put("/{id}/attempts/answers/{questionID}", examHandler.SubmitAnswer)
					student.Post("/{id}/attempts/complete", examHandler.Complete)
					student.Get("/{id}/attempts/current", examHandler.CurrentAttempt)
				})
			})

			secure.Post("/assignments/grade", assignmentHandler.Grade)
		})
	})

	return r
}
