// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/currency"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

// Service interfaces for dependency injection and testing

// AuthServiceInterface defines the interface for auth operations
type AuthServiceInterface interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, *models.User, error)
	ParseToken(token string) (*service.Claims, error)
}

// SettlementServiceInterface defines the interface for trade settlement
type SettlementServiceInterface interface {
	Buy(ctx context.Context, req service.TradeRequest) (*service.TradeResult, error)
	Sell(ctx context.Context, req service.TradeRequest) (*service.TradeResult, error)
}

// PortfolioServiceInterface defines the interface for portfolio operations
type PortfolioServiceInterface interface {
	Create(ctx context.Context, in service.CreatePortfolioInput) (*models.Portfolio, error)
	List(ctx context.Context, ownerID string) ([]*models.Portfolio, error)
	Get(ctx context.Context, ownerID, id string) (*models.Portfolio, error)
	Rename(ctx context.Context, ownerID, id, name string) error
	SetDefault(ctx context.Context, ownerID, id string) error
	Delete(ctx context.Context, ownerID, id string) error
	Holdings(ctx context.Context, ownerID, id string) ([]*models.Share, error)
	Value(ctx context.Context, ownerID, id string) (*service.PortfolioValue, error)
}

// UserServiceInterface defines the interface for account operations
type UserServiceInterface interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Shares(ctx context.Context, userID string) ([]*models.Share, error)
	TradeLogs(ctx context.Context, userID string, limit, offset int) (*service.TradeLogPage, error)
}

// ValuationServiceInterface defines the interface for on-demand refresh
type ValuationServiceInterface interface {
	RefreshOwner(ctx context.Context, ownerID string) error
	ChangePreferredCurrency(ctx context.Context, userID string, code types.CurrencyCode) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	auth       AuthServiceInterface
	settlement SettlementServiceInterface
	portfolios PortfolioServiceInterface
	users      UserServiceInterface
	valuation  ValuationServiceInterface
	quotes     marketdata.Provider
	converter  currency.Converter
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	UserRPS         int // Requests per second per authenticated user
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	auth AuthServiceInterface,
	settlement SettlementServiceInterface,
	portfolios PortfolioServiceInterface,
	users UserServiceInterface,
	valuation ValuationServiceInterface,
	quotes marketdata.Provider,
	converter currency.Converter,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		auth:       auth,
		settlement: settlement,
		portfolios: portfolios,
		users:      users,
		valuation:  valuation,
		quotes:     quotes,
		converter:  converter,
		config:     config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.UserRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes(rateLimiter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(rateLimiter *RateLimiter) {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Auth endpoints (no token required)
	s.router.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	s.router.HandleFunc("/auth/login", s.handleLogin).Methods("POST")

	// Everything else requires a verified identity
	authed := s.router.PathPrefix("/").Subrouter()
	authed.Use(AuthMiddleware(s.auth))
	authed.Use(RateLimitMiddleware(rateLimiter))

	// Market data endpoints
	authed.HandleFunc("/api/price/{tag}", s.handlePrice).Methods("GET")
	authed.HandleFunc("/api/search/{query}", s.handleSearch).Methods("GET")
	authed.HandleFunc("/api/convert", s.handleConvert).Methods("GET")

	// Trade endpoints
	authed.HandleFunc("/buy/{tag}", s.handleBuy).Methods("POST")
	authed.HandleFunc("/sell/{tag}", s.handleSell).Methods("POST")

	// Portfolio endpoints
	authed.HandleFunc("/user/portfolio", s.handleCreatePortfolio).Methods("POST")
	authed.HandleFunc("/user/portfolio", s.handleListPortfolios).Methods("GET")
	authed.HandleFunc("/user/portfolio/{id}", s.handleGetPortfolio).Methods("GET")
	authed.HandleFunc("/user/portfolio/{id}", s.handleUpdatePortfolio).Methods("PUT", "PATCH")
	authed.HandleFunc("/user/portfolio/{id}", s.handleDeletePortfolio).Methods("DELETE")
	authed.HandleFunc("/user/portfolio/{id}/value", s.handlePortfolioValue).Methods("GET")
	authed.HandleFunc("/user/portfolio/{id}/return", s.handlePortfolioReturn).Methods("GET")
	authed.HandleFunc("/user/portfolio/{id}/return-percentage", s.handlePortfolioReturnPercentage).Methods("GET")
	authed.HandleFunc("/user/portfolio/{id}/shares", s.handlePortfolioShares).Methods("GET")

	// Account endpoints
	authed.HandleFunc("/user/deposit", s.handleDeposit).Methods("POST")
	authed.HandleFunc("/user/withdraw", s.handleWithdraw).Methods("POST")
	authed.HandleFunc("/user/balance", s.handleBalance).Methods("GET")
	authed.HandleFunc("/user/shares", s.handleUserShares).Methods("GET")
	authed.HandleFunc("/user/shares/{id}", s.handlePortfolioShares).Methods("GET")
	authed.HandleFunc("/user/logs", s.handleTradeLogs).Methods("GET")
	authed.HandleFunc("/user/currency", s.handleChangeCurrency).Methods("PUT", "POST")
	authed.HandleFunc("/user/refresh", s.handleRefresh).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-tracker",
	})
}

// Handler returns the router, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
