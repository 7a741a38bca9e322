package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/config"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/deps"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/middleware"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=server.go -destination=../mocks/mock_server.go -package=mocks

type Accounts interface {
	CreateAccount(ctx context.Context, acc model.NewAccount, passwordHash string) (model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (model.Account, string, error)
	UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) (model.Account, error)
	Ping(ctx context.Context) error
}

type Wallet interface {
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	ListEntries(ctx context.Context, accountID int64, filter model.EntryFilter) ([]model.LedgerEntry, error)
	Deposit(ctx context.Context, actor model.Actor, accountID int64, amount decimal.Decimal, description string) (model.LedgerEntry, error)
	Adjust(ctx context.Context, actor model.Actor, accountID int64, amount decimal.Decimal, description string) (model.LedgerEntry, error)
}

type Orders interface {
	PlaceOrder(ctx context.Context, req model.PlaceOrder) (model.Order, error)
	RefundOrder(ctx context.Context, actor model.Actor, orderID int64) (model.LedgerEntry, error)
	CancelOrder(ctx context.Context, actor model.Actor, orderID int64) (model.LedgerEntry, error)
	AdvanceOrder(ctx context.Context, orderID int64, progress model.OrderProgress) (model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (model.Order, error)
	ListOrders(ctx context.Context, accountID int64, page model.Page) ([]model.Order, error)
}

type Catalog interface {
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	CreateService(ctx context.Context, svc model.Service) (model.Service, error)
	UpdateService(ctx context.Context, svc model.Service) (model.Service, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	CreateProvider(ctx context.Context, p model.Provider) (model.Provider, error)
}

type Server struct {
	accounts Accounts
	wallet   Wallet
	orders   Orders
	catalog  Catalog
	config   *config.Config
	deps     *deps.Deps
}

func NewServer(accounts Accounts, wallet Wallet, orders Orders, catalog Catalog, config *config.Config, deps *deps.Deps) *Server {
	return &Server{
		accounts: accounts,
		wallet:   wallet,
		orders:   orders,
		catalog:  catalog,
		config:   config,
		deps:     deps,
	}
}

func (srv *Server) buildRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Content-Encoding", "Accept-Encoding"},
		ExposedHeaders: []string{"Authorization"},
		MaxAge:         300,
	}))

	// promhttp сам сжимает ответ, поэтому вне gzip-группы
	router.Get("/health", srv.HealthHandler)
	router.Method(http.MethodGet, "/metrics", srv.deps.Metrics.Handler())

	router.Group(func(r chi.Router) {
		// распаковываем до логирования, иначе redact не видит полей
		r.Use(middleware.DecompressMiddleware)
		r.Use(middleware.LogMiddleware(srv.deps.Logger))
		r.Use(middleware.CompressMiddleware(srv.deps.Logger))

		r.Post("/api/user/register", srv.RegisterHandler)
		r.Post("/api/user/login", srv.LoginHandler)

		// авторизованные ручки
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(srv.accounts, srv.deps.TokenManager))

			r.Get("/api/user/balance", srv.GetBalanceHandler)
			r.Get("/api/user/entries", srv.GetEntriesHandler)
			r.Get("/api/user/orders", srv.GetOrdersHandler)
			r.Post("/api/user/orders", srv.PlaceOrderHandler)
			r.Get("/api/user/orders/{id}", srv.GetOrderHandler)
			r.Put("/api/user/profile", srv.UpdateProfileHandler)
			r.Get("/api/services", srv.GetServicesHandler)

			r.Route("/api/admin", func(r chi.Router) {
				r.Use(middleware.AdminOnly)

				r.Get("/accounts/{id}", srv.AdminGetAccountHandler)
				r.Put("/accounts/{id}", srv.AdminUpdateAccountHandler)
				r.Get("/accounts/{id}/entries", srv.AdminGetEntriesHandler)
				r.Post("/accounts/{id}/deposits", srv.DepositHandler)
				r.Post("/accounts/{id}/adjustments", srv.AdjustHandler)

				r.Post("/orders/{id}/refund", srv.RefundOrderHandler)
				r.Post("/orders/{id}/cancel", srv.CancelOrderHandler)
				r.Patch("/orders/{id}/status", srv.AdvanceOrderHandler)

				r.Get("/services", srv.AdminGetServicesHandler)
				r.Post("/services", srv.CreateServiceHandler)
				r.Put("/services/{id}", srv.UpdateServiceHandler)

				r.Get("/providers", srv.GetProvidersHandler)
				r.Post("/providers", srv.CreateProviderHandler)
			})
		})
	})

	return router
}

// Run serves until ctx is done, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              srv.config.RunAddress,
		Handler:           srv.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.deps.Logger.Infof("listening on %s", srv.config.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (srv *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := srv.accounts.Ping(ctx); err != nil {
		srv.deps.Logger.Warnf("health check: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
