package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type Deps struct {
	Service         *exam.Service
	Users           authmw.UserLookup
	Auth            *authmw.AuthService
	Log             zerolog.Logger
	CORSOrigins     []string
	EnableLocalAuth bool
	RequestTimeout  time.Duration
	// Ready reports whether backing storage is reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter mounts the public and bearer-protected routes.
func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Requests(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.Users))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				d.Log.Warn().Err(err).Msg("readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	svc, lgr := d.Service, d.Log

	// Protected API (JWT → stored role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		pr.Use(authmw.AttachRoleFromStore(d.Users, lgr))

		pr.With(rbac.Require("exam:view")).Get("/exams", ListExamsHandler(svc, lgr))
		pr.With(rbac.Require("exam:create")).Post("/exams", CreateExamHandler(svc, lgr))
		pr.With(rbac.Require("exam:create")).Get("/exams/mine", MyExamsHandler(svc, lgr))
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}", GetExamHandler(svc, lgr))
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}/student", GetStudentExamHandler(svc, lgr))
		pr.With(rbac.Require("exam:delete-own")).Delete("/exams/{examID}", DeleteExamHandler(svc, lgr))
		pr.With(rbac.Require("attempt:view-all")).Get("/exams/{examID}/results", ExamResultsHandler(svc, lgr))

		// Student flow
		pr.With(rbac.Require("attempt:create")).Post("/attempts", StartAttemptHandler(svc, lgr))
		pr.With(rbac.Require("attempt:view-own")).Get("/attempts", ListMyAttemptsHandler(svc, lgr))
		pr.With(rbac.Require("attempt:view-own")).Get("/attempts/{attemptID}", GetAttemptHandler(svc, lgr))
		pr.With(rbac.Require("attempt:save")).Post("/attempts/{attemptID}/answers", SubmitAnswerHandler(svc, lgr))
		pr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/complete", CompleteAttemptHandler(svc, lgr))
	})
	return r
}
