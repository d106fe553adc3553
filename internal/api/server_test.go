package api

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

// Mock services for testing

type mockAuthService struct {
	registerFunc func(ctx context.Context, in service.RegisterInput) (*models.User, error)
	loginFunc    func(ctx context.Context, username, password string) (string, *models.User, error)
	parseFunc    func(token string) (*service.Claims, error)
}

func (m *mockAuthService) Register(ctx context.Context, in service.RegisterInput) (*models.User, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, in)
	}
	return &models.User{
		ID:                "user-123",
		Username:          in.Username,
		PreferredCurrency: "usd",
		CreatedAt:         time.Now(),
	}, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, username, password)
	}
	return "token-abc", &models.User{ID: "user-123", Username: username}, nil
}

func (m *mockAuthService) ParseToken(token string) (*service.Claims, error) {
	if m.parseFunc != nil {
		return m.parseFunc(token)
	}
	return &service.Claims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
	}, nil
}

type mockSettlementService struct {
	buyFunc  func(ctx context.Context, req service.TradeRequest) (*service.TradeResult, error)
	sellFunc func(ctx context.Context, req service.TradeRequest) (*service.TradeResult, error)
}

func (m *mockSettlementService) Buy(ctx context.Context, req service.TradeRequest) (*service.TradeResult, error) {
	if m.buyFunc != nil {
		return m.buyFunc(ctx, req)
	}
	return &service.TradeResult{
		Side:     types.SideBuy,
		Ticker:   req.Ticker,
		Quantity: 10,
		Amount:   decimal.NewFromInt(100),
		Currency: "usd",
		Balance:  decimal.NewFromInt(900),
	}, nil
}

func (m *mockSettlementService) Sell(ctx context.Context, req service.TradeRequest) (*service.TradeResult, error) {
	if m.sellFunc != nil {
		return m.sellFunc(ctx, req)
	}
	return &service.TradeResult{
		Side:     types.SideSell,
		Ticker:   req.Ticker,
		Quantity: 5,
		Amount:   decimal.NewFromInt(50),
		Currency: "usd",
		Balance:  decimal.NewFromInt(950),
	}, nil
}

type mockPortfolioAPI struct {
	createFunc func(ctx context.Context, in service.CreatePortfolioInput) (*models.Portfolio, error)
	deleteFunc func(ctx context.Context, ownerID, id string) error
}

func (m *mockPortfolioAPI) Create(ctx context.Context, in service.CreatePortfolioInput) (*models.Portfolio, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, in)
	}
	return &models.Portfolio{ID: "p-1", OwnerID: in.OwnerID, Name: in.Name, Currency: "usd"}, nil
}

func (m *mockPortfolioAPI) List(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	return []*models.Portfolio{{ID: "p-1", OwnerID: ownerID, Name: "Default", IsDefault: true}}, nil
}

func (m *mockPortfolioAPI) Get(ctx context.Context, ownerID, id string) (*models.Portfolio, error) {
	return &models.Portfolio{ID: id, OwnerID: ownerID, Name: "Default"}, nil
}

func (m *mockPortfolioAPI) Rename(ctx context.Context, ownerID, id, name string) error {
	return nil
}

func (m *mockPortfolioAPI) SetDefault(ctx context.Context, ownerID, id string) error {
	return nil
}

func (m *mockPortfolioAPI) Delete(ctx context.Context, ownerID, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, ownerID, id)
	}
	return nil
}

func (m *mockPortfolioAPI) Holdings(ctx context.Context, ownerID, id string) ([]*models.Share, error) {
	return []*models.Share{{ID: 1, PortfolioID: id, OwnerID: ownerID, Ticker: "AAPL", AmountOwned: 10}}, nil
}

func (m *mockPortfolioAPI) Value(ctx context.Context, ownerID, id string) (*service.PortfolioValue, error) {
	return &service.PortfolioValue{PortfolioID: id, Value: 1100, Invested: 1000, Gain: 100, GainPercent: 10, Currency: "usd"}, nil
}

type mockUserAPI struct {
	depositFunc func(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
}

func (m *mockUserAPI) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if m.depositFunc != nil {
		return m.depositFunc(ctx, userID, amount)
	}
	return amount, nil
}

func (m *mockUserAPI) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (m *mockUserAPI) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return decimal.NewFromInt(500), nil
}

func (m *mockUserAPI) Shares(ctx context.Context, userID string) ([]*models.Share, error) {
	return []*models.Share{{ID: 1, OwnerID: userID, Ticker: "AAPL", AmountOwned: 10}}, nil
}

func (m *mockUserAPI) TradeLogs(ctx context.Context, userID string, limit, offset int) (*service.TradeLogPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return &service.TradeLogPage{Entries: []*models.TradeLog{}, Total: 0, Limit: limit, Offset: offset}, nil
}

type mockValuationAPI struct {
	changeFunc func(ctx context.Context, userID string, code types.CurrencyCode) error
}

func (m *mockValuationAPI) RefreshOwner(ctx context.Context, ownerID string) error {
	return nil
}

func (m *mockValuationAPI) ChangePreferredCurrency(ctx context.Context, userID string, code types.CurrencyCode) error {
	if m.changeFunc != nil {
		return m.changeFunc(ctx, userID, code)
	}
	return nil
}

type mockQuoteProvider struct {
	quoteFunc func(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

func (m *mockQuoteProvider) Quote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	if m.quoteFunc != nil {
		return m.quoteFunc(ctx, symbol)
	}
	return &marketdata.Quote{Symbol: symbol, ShortName: "Test Corp", Ask: 10, Bid: 9.5, Currency: "usd"}, nil
}

func (m *mockQuoteProvider) Search(ctx context.Context, query string) ([]marketdata.SearchResult, error) {
	return []marketdata.SearchResult{{Symbol: "AAPL", ShortName: "Apple Inc."}}, nil
}

type mockRateConverter struct{}

func (m *mockRateConverter) Convert(ctx context.Context, amount float64, from, to types.CurrencyCode) (float64, error) {
	if from == to {
		return amount, nil
	}
	return amount * 0.8, nil
}

func (m *mockRateConverter) ValidCode(ctx context.Context, code types.CurrencyCode) (bool, error) {
	return code.Valid(), nil
}

type testMocks struct {
	auth       *mockAuthService
	settlement *mockSettlementService
	portfolios *mockPortfolioAPI
	users      *mockUserAPI
	valuation  *mockValuationAPI
	quotes     *mockQuoteProvider
}

func createTestServer() (*Server, *testMocks) {
	mocks := &testMocks{
		auth:       &mockAuthService{},
		settlement: &mockSettlementService{},
		portfolios: &mockPortfolioAPI{},
		users:      &mockUserAPI{},
		valuation:  &mockValuationAPI{},
		quotes:     &mockQuoteProvider{},
	}

	config := &ServerConfig{
		Host:         "localhost",
		Port:         "8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		UserRPS:      100,
	}

	server := NewServer(
		config,
		mocks.auth,
		mocks.settlement,
		mocks.portfolios,
		mocks.users,
		mocks.valuation,
		mocks.quotes,
		&mockRateConverter{},
	)

	return server, mocks
}
