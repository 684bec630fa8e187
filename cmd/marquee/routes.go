package main

import (
	"net/http"

	"marquee/api"
	"marquee/handlers"
	"marquee/utils"
)

func (app *application) routes() http.Handler {
	cfg := app.settings
	authPath := cfg.Auth.Path
	cookieName := cfg.Auth.CookieName

	authHandler := handlers.NewAuthHandler(app.accounts, app.sessions, app.renderer,
		handlers.CookieOptions{Name: cookieName, Secure: cfg.Auth.SecureCookie}, authPath)
	titleHandler := handlers.NewTitleHandler(app.titles, app.sessions, app.renderer, cookieName, authPath)
	logsHandler := handlers.NewLogsHandler(app.fs, cfg.Log.File)
	accountsHandler := handlers.NewAccountsHandler(app.accounts)

	r := utils.NewRouter(utils.NewOriginPolicy(cfg.Server.AllowedOrigins))
	r.HandleFunc("/version", handlers.GetVersion).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static", handlers.NewStaticHandler())).Methods(http.MethodGet)

	// Sign-in pages
	r.HandleFunc(authPath, authHandler.LoginForm).Methods(http.MethodGet)
	r.Handle(authPath, api.RateLimit(app.loginLimiter, http.HandlerFunc(authHandler.LoginSubmit))).Methods(http.MethodPost)
	r.HandleFunc(authPath+"/logout", authHandler.LogoutSubmit).Methods(http.MethodPost)

	// Pages behind the session gate. Title pages run the gate in their loader.
	gate := api.RequireSession(app.sessions, cookieName, authPath)
	r.Handle("/", gate(http.HandlerFunc(authHandler.Home))).Methods(http.MethodGet)
	r.HandleFunc("/movie/{id}", titleHandler.MoviePage).Methods(http.MethodGet)
	r.HandleFunc("/movie", titleHandler.MoviePage).Methods(http.MethodGet)
	r.HandleFunc("/tv/{id}", titleHandler.TVPage).Methods(http.MethodGet)
	r.HandleFunc("/tv", titleHandler.TVPage).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Handle("/auth/login", api.RateLimit(app.loginLimiter, http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost, http.MethodOptions)

	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(api.AccountAuthMiddleware(app.sessions, cookieName))
	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/auth/refresh", authHandler.Refresh).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/auth/password", authHandler.ChangePassword).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/accounts", accountsHandler.Create).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/titles/batch", titleHandler.Batch).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/titles/{mediaType}/{id}", titleHandler.Details).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/titles/{mediaType}/{id}/enrichment", titleHandler.Enrichment).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/logs", logsHandler.Tail).Methods(http.MethodGet, http.MethodOptions)

	return api.RequestLogger(api.ClientAddress(app.proxies)(r))
}
