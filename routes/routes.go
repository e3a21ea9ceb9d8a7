package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  log.Logger,
			NoColor: true,
		}),
		middleware.Recoverer,
		middleware.StripSlashes,
		app.Metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins: app.Config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
	)
	root.NotFound(notFound)
	root.MethodNotAllowed(methodNotAllowed)

	root.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	api.NotFound(notFound)
	api.MethodNotAllowed(methodNotAllowed)
	api.Use(middlewares.Identify(app.Config.TokenSecret, app.Accounts))

	api.Post("/register", Register(app))
	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	// open to anonymous respondents, even with a stale Authorization header
	api.Get(`/forms/{id:^\d+$}/shape`, PublicGetForm(app))
	api.Post(`/forms/{id:^\d+$}/responses`, PublicSubmitResponse(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.Authenticated)

		r.Get("/me", GetMe(app))
		r.Patch("/me", UpdateMe(app))

		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Get(`/forms/{id:^\d+$}`, GetFormResponses(app))
		r.Get(`/forms/{id:^\d+$}/responses`, GetFormResponses(app))
		r.Delete(`/forms/{id:^\d+$}`, DeleteForm(app))

		r.Route("/accounts", func(r chi.Router) {
			r.Use(middlewares.Admin)

			r.Get("/", ListAccounts(app))
			r.Post("/", CreateAccount(app))
			r.Patch(`/{id:^\d+$}`, UpdateAccount(app))
		})
	})

	return api
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httpx.WriteStatus(w, r, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.WriteStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed")
}
