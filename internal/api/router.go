package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/swapmeet/swapmeet/internal/auth"
	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/model"
)

// Deps are the services the API is built on.
type Deps struct {
	DB             *db.DB
	Tokens         *auth.Tokens
	Registry       *exchange.Registry
	Coordinator    *exchange.Coordinator
	Ledger         exchange.KarmaLedger
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, Tokens: d.Tokens}
	usersHandler := &UsersHandler{DB: d.DB}
	itemsHandler := &ItemsHandler{Registry: d.Registry}
	offersHandler := &OffersHandler{Coordinator: d.Coordinator}
	karmaHandler := &KarmaHandler{Ledger: d.Ledger}

	authMW := AuthMiddleware(d.Tokens, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public.
	mux.HandleFunc("GET /healthz", healthz(d.DB))
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/user/{userId}", authMW(http.HandlerFunc(itemsHandler.ListByUser)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))

	// Offers.
	mux.Handle("POST /api/offers", authMW(http.HandlerFunc(offersHandler.Create)))
	mux.Handle("GET /api/offers/item/{itemId}", authMW(http.HandlerFunc(offersHandler.ListByItem)))
	mux.Handle("GET /api/offers/user/{userId}", authMW(http.HandlerFunc(offersHandler.ListByUser)))
	mux.Handle("PUT /api/offers/{id}", authMW(http.HandlerFunc(offersHandler.SetStatus)))
	mux.Handle("DELETE /api/offers/{id}", authMW(http.HandlerFunc(offersHandler.Delete)))

	// Karma.
	mux.Handle("GET /api/karma/{userId}", authMW(http.HandlerFunc(karmaHandler.Get)))

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var h http.Handler = mux
	h = RequestTimeout(timeout)(h)
	h = LoggingMiddleware(h)
	h = middleware.Recoverer(h)
	h = middleware.RealIP(h)
	h = middleware.RequestID(h)
	return h
}

func healthz(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
