package api

import (
	"net/http"

	"github.com/AlexZinkM/split-custody/internal/handler"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/AlexZinkM/split-custody/docs"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Wallets  *handler.WalletHandler
	Deposits *handler.DepositHandler
	Health   *handler.HealthHandler
}

// SetupRouter sets up router with handlers
func SetupRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(recoverer(logger))

	// Swagger UI
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	r.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)

	// Wallet endpoints
	r.HandleFunc("/wallets", h.Wallets.Enroll).Methods(http.MethodPost)
	r.HandleFunc("/wallets", h.Wallets.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/wallets/rotate", h.Wallets.Rotate).Methods(http.MethodPost)
	r.HandleFunc("/wallets/sign", h.Wallets.Sign).Methods(http.MethodPost)

	// Deposit endpoints
	r.HandleFunc("/deposits", h.Deposits.Create).Methods(http.MethodPost)
	r.HandleFunc("/deposits/{id}", h.Deposits.Get).Methods(http.MethodGet)
	r.HandleFunc("/deposits/{id}", h.Deposits.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/deposits/{id}/detect", h.Deposits.Detect).Methods(http.MethodPost)
	r.HandleFunc("/deposits/{id}/complete", h.Deposits.Complete).Methods(http.MethodPost)

	return r
}

// recoverer turns a handler panic into a 500 without leaking the panic value.
func recoverer(logger *zap.Logger) mux.MiddlewareFunc {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal error","kind":"internal"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
