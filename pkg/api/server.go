// Package api exposes the ledger over HTTP with JSON bodies.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the part of *ledger.Engine the API serves.
type Ledger interface {
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (ledger.Transaction, error)
	Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (ledger.Transaction, error)
	Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (ledger.Transaction, error)
	Balance(ctx context.Context, id int64) (decimal.Decimal, error)
	TransferTargets(ctx context.Context, id int64) ([]ledger.AccountView, error)
	History(ctx context.Context, id int64) ([]ledger.Transaction, error)
}

// AccountCreator opens accounts. *ledger.Provisioner satisfies it.
type AccountCreator interface {
	CreateAccount(ctx context.Context, number, ownerUsername string) (ledger.Account, error)
}

// AccountViews serves account views through the view cache. *views.Reader
// satisfies it.
type AccountViews interface {
	Account(ctx context.Context, id int64) (ledger.AccountView, error)
	Put(ctx context.Context, view ledger.AccountView) error
}

// UserRegistry adds users to the user directory.
type UserRegistry interface {
	Add(ctx context.Context, username, email string) (ledger.User, error)
}

// Server provides the HTTP endpoints of the ledger.
type Server struct {
	ledger   Ledger
	accounts AccountCreator
	views    AccountViews
	users    UserRegistry
	status   func() map[string]string

	logger  *logging.Logger
	config  ServerConfig
	router  *mux.Router
	server  *http.Server
	started time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// RequestTimeout bounds the ledger call made by each request.
	RequestTimeout time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Dependencies are the components a Server routes requests to.
type Dependencies struct {
	Ledger   Ledger
	Accounts AccountCreator
	Views    AccountViews

	// Users enables POST /users when set.
	Users UserRegistry

	// Status reports component states (circuit breakers) on GET /status.
	Status func() map[string]string

	// Registerer receives the HTTP metrics. Nil disables them.
	Registerer prometheus.Registerer

	// Gatherer is served on GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// LogLevel is served on GET and PUT /log/level when set.
	LogLevel http.Handler

	// Logger defaults to the global logger.
	Logger *logging.Logger
}

// NewServer creates a server. It returns an error when the HTTP metrics
// cannot be registered.
func NewServer(deps Dependencies, config ServerConfig) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = logging.L()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultServerConfig().RequestTimeout
	}

	s := &Server{
		ledger:   deps.Ledger,
		accounts: deps.Accounts,
		views:    deps.Views,
		users:    deps.Users,
		status:   deps.Status,
		logger:   deps.Logger.Named("api"),
		config:   config,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}

	s.router.Use(requestID)
	s.router.Use(s.logRequests)
	if deps.Registerer != nil {
		m, err := newHTTPMetrics(deps.Registerer)
		if err != nil {
			return nil, err
		}
		s.router.Use(m.middleware)
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if deps.LogLevel != nil {
		s.router.Handle("/log/level", deps.LogLevel).Methods(http.MethodGet, http.MethodPut)
	}

	s.router.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	s.router.HandleFunc("/accounts/{id:[0-9]+}", s.handleGetAccount).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/balance", s.handleBalance).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/transfer-targets", s.handleTransferTargets).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/transactions", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/deposit", s.handleDeposit).Methods(http.MethodPost)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/transfer", s.handleTransfer).Methods(http.MethodPost)
	if deps.Users != nil {
		s.router.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine. Listen failures are sent on
// the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
