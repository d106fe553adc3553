package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// memStore is an in-memory stand-in for the Postgres repositories. The
// repo adapters below expose it under each repository interface; it
// also acts as the settlement store and its own transaction.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*models.User
	portfolios  map[string]*models.Portfolio
	shares      map[int64]*models.Share
	logs        []*models.TradeLog
	nextShareID int64

	// When set, portfolio creates fail with this error
	portfolioCreateErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*models.User),
		portfolios: make(map[string]*models.Portfolio),
		shares:     make(map[int64]*models.Share),
	}
}

func (m *memStore) addUser(id string, cash float64, preferred types.CurrencyCode) *models.User {
	u := &models.User{
		ID:                id,
		Username:          id,
		Cash:              decimal.NewFromFloat(cash),
		PreferredCurrency: preferred,
	}
	m.users[id] = u
	return u
}

func (m *memStore) addPortfolio(id, ownerID string, isDefault bool, currency types.CurrencyCode) *models.Portfolio {
	p := &models.Portfolio{
		ID:        id,
		OwnerID:   ownerID,
		Name:      id,
		Currency:  currency,
		IsDefault: isDefault,
	}
	m.portfolios[id] = p
	return p
}

func (m *memStore) addShare(portfolioID, ownerID, ticker string, amount, invested float64, currency types.CurrencyCode) *models.Share {
	m.nextShareID++
	s := &models.Share{
		ID:            m.nextShareID,
		PortfolioID:   portfolioID,
		OwnerID:       ownerID,
		Ticker:        ticker,
		AmountOwned:   amount,
		TotalInvested: invested,
		Currency:      currency,
	}
	m.shares[s.ID] = s
	return s
}

func (m *memStore) createUser(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return &types.ServiceError{Code: types.ErrUsernameTaken, Message: "username already taken"}
		}
	}
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) deleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return &types.ServiceError{Code: types.ErrUserNotFound, Message: "user not found"}
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) getUser(id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, &types.ServiceError{Code: types.ErrUserNotFound, Message: "user not found"}
}

func (m *memStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, &types.ServiceError{Code: types.ErrUserNotFound, Message: "user not found"}
}

func (m *memStore) CashBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return decimal.Zero, &types.ServiceError{Code: types.ErrUserNotFound, Message: "user not found"}
	}
	return u.Cash, nil
}

func (m *memStore) AdjustCash(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return decimal.Zero, &types.ServiceError{Code: types.ErrUserNotFound, Message: "user not found"}
	}
	next := u.Cash.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, &types.ServiceError{Code: types.ErrInsufficientFunds, Message: "insufficient funds"}
	}
	u.Cash = next
	return next, nil
}

func (m *memStore) UpdatePreferredCurrency(ctx context.Context, userID string, currency types.CurrencyCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return &types.ServiceError{Code: types.ErrUserNotFound, Message: "user not found"}
	}
	u.PreferredCurrency = currency
	return nil
}

func (m *memStore) createPortfolio(p *models.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.portfolioCreateErr != nil {
		return m.portfolioCreateErr
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("portfolio-%d", len(m.portfolios)+1)
	}
	if p.IsDefault {
		for _, other := range m.portfolios {
			if other.OwnerID == p.OwnerID {
				other.IsDefault = false
			}
		}
	}
	m.portfolios[p.ID] = p
	return nil
}

func (m *memStore) getPortfolio(id string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.portfolios[id]; ok {
		return p, nil
	}
	return nil, &types.ServiceError{Code: types.ErrPortfolioNotFound, Message: "portfolio not found"}
}

func (m *memStore) GetDefault(ctx context.Context, ownerID string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.portfolios {
		if p.OwnerID == ownerID && p.IsDefault {
			return p, nil
		}
	}
	return nil, &types.ServiceError{Code: types.ErrNoPortfolio, Message: "no default portfolio"}
}

func (m *memStore) ListAllIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.portfolios {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) UpdateName(ctx context.Context, id, name string) error {
	p, err := m.getPortfolio(id)
	if err != nil {
		return err
	}
	p.Name = name
	return nil
}

func (m *memStore) SetDefault(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.portfolios {
		if p.OwnerID == ownerID {
			p.IsDefault = p.ID == id
		}
	}
	return nil
}

func (m *memStore) UpdateAggregates(ctx context.Context, id string, value, invested float64) error {
	p, err := m.getPortfolio(id)
	if err != nil {
		return err
	}
	p.Value = value
	p.Invested = invested
	return nil
}

func (m *memStore) UpdateOwnerCurrency(ctx context.Context, ownerID string, currency types.CurrencyCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.portfolios {
		if p.OwnerID == ownerID {
			p.Currency = currency
		}
	}
	return nil
}

func (m *memStore) deletePortfolio(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[id]; !ok {
		return &types.ServiceError{Code: types.ErrPortfolioNotFound, Message: "portfolio not found"}
	}
	for _, s := range m.shares {
		if s.PortfolioID == id {
			return &types.ServiceError{Code: types.ErrPortfolioNotEmpty, Message: "portfolio still holds shares"}
		}
	}
	delete(m.portfolios, id)
	return nil
}

func (m *memStore) getShare(id int64) (*models.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.shares[id]; ok {
		return s, nil
	}
	return nil, &types.ServiceError{Code: types.ErrHoldingNotFound, Message: "holding not found"}
}

func (m *memStore) FindHolding(ctx context.Context, portfolioID, ticker string) (*models.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findHoldingLocked(portfolioID, ticker)
}

func (m *memStore) findHoldingLocked(portfolioID, ticker string) (*models.Share, error) {
	for _, s := range m.shares {
		if s.PortfolioID == portfolioID && s.Ticker == ticker {
			return s, nil
		}
	}
	return nil, &types.ServiceError{Code: types.ErrHoldingNotFound, Message: "holding not found: " + ticker}
}

func (m *memStore) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Share
	for _, s := range m.shares {
		if s.PortfolioID == portfolioID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) listSharesByOwner(ownerID string) ([]*models.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Share
	for _, s := range m.shares {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) PortfoliosHolding(ctx context.Context, ownerID, ticker string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, s := range m.shares {
		if s.OwnerID == ownerID && s.Ticker == ticker {
			ids = append(ids, s.PortfolioID)
		}
	}
	return ids, nil
}

func (m *memStore) CountByPortfolio(ctx context.Context, portfolioID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.shares {
		if s.PortfolioID == portfolioID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpdateValuation(ctx context.Context, share *models.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shares[share.ID]; !ok {
		return &types.ServiceError{Code: types.ErrHoldingNotFound, Message: "holding not found"}
	}
	m.shares[share.ID] = share
	return nil
}

func (m *memStore) listLogsByOwner(ownerID string, limit, offset int) ([]*models.TradeLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TradeLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].OwnerID == ownerID {
			out = append(out, m.logs[i])
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) countLogsByOwner(ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.logs {
		if l.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// SettlementStore / TradeTx. Writes apply directly; transactional
// rollback is a storage concern, not exercised here.

func (m *memStore) ExecTx(ctx context.Context, fn func(tx storage.TradeTx) error) error {
	return fn(m)
}

func (m *memStore) GetHolding(ctx context.Context, portfolioID, ticker string) (*models.Share, error) {
	return m.FindHolding(ctx, portfolioID, ticker)
}

func (m *memStore) CreateHolding(ctx context.Context, share *models.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextShareID++
	share.ID = m.nextShareID
	m.shares[share.ID] = share
	return nil
}

func (m *memStore) UpdateHolding(ctx context.Context, share *models.Share) error {
	return m.UpdateValuation(ctx, share)
}

func (m *memStore) DeleteHolding(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shares[id]; !ok {
		return &types.ServiceError{Code: types.ErrHoldingNotFound, Message: "holding not found"}
	}
	delete(m.shares, id)
	return nil
}

func (m *memStore) AppendLog(ctx context.Context, entry *models.TradeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, entry)
	return nil
}

// Repo adapters: the interfaces reuse method names (Create, GetByID,
// ListByOwner) with different signatures, so each gets a thin wrapper.

type userRepo struct{ *memStore }

func (r userRepo) Create(ctx context.Context, user *models.User) error { return r.createUser(user) }
func (r userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(id)
}
func (r userRepo) Delete(ctx context.Context, id string) error { return r.deleteUser(id) }

type portfolioRepo struct{ *memStore }

func (r portfolioRepo) Create(ctx context.Context, p *models.Portfolio) error {
	return r.createPortfolio(p)
}
func (r portfolioRepo) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	return r.getPortfolio(id)
}
func (r portfolioRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Portfolio
	for _, p := range r.portfolios {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (r portfolioRepo) Delete(ctx context.Context, id string) error { return r.deletePortfolio(id) }

type shareRepo struct{ *memStore }

func (r shareRepo) GetByID(ctx context.Context, id int64) (*models.Share, error) {
	return r.getShare(id)
}
func (r shareRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.Share, error) {
	return r.listSharesByOwner(ownerID)
}

type tradeLogRepo struct{ *memStore }

func (r tradeLogRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.TradeLog, error) {
	return r.listLogsByOwner(ownerID, limit, offset)
}
func (r tradeLogRepo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	return r.countLogsByOwner(ownerID)
}

// mockQuotes serves canned quotes per symbol
type mockQuotes struct {
	mu     sync.Mutex
	quotes map[string]*marketdata.Quote
	errs   map[string]error
	calls  int
}

func newMockQuotes() *mockQuotes {
	return &mockQuotes{quotes: make(map[string]*marketdata.Quote), errs: make(map[string]error)}
}

func (m *mockQuotes) set(symbol string, ask, bid float64, currency types.CurrencyCode) {
	m.quotes[symbol] = &marketdata.Quote{
		Symbol:    symbol,
		ShortName: symbol + " Inc.",
		Ask:       ask,
		Bid:       bid,
		Currency:  currency,
	}
}

func (m *mockQuotes) Quote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err, ok := m.errs[symbol]; ok {
		return nil, err
	}
	if q, ok := m.quotes[symbol]; ok {
		quote := *q
		return &quote, nil
	}
	return nil, fmt.Errorf("no quote for %s", symbol)
}

func (m *mockQuotes) Search(ctx context.Context, query string) ([]marketdata.SearchResult, error) {
	return nil, nil
}

// mockConverter converts with a fixed rate table keyed "from:to"
type mockConverter struct {
	rates map[string]float64
	calls int
	fail  bool
}

func newMockConverter() *mockConverter {
	return &mockConverter{rates: make(map[string]float64)}
}

func (m *mockConverter) Convert(ctx context.Context, amount float64, from, to types.CurrencyCode) (float64, error) {
	if amount == 0 {
		return 0, nil
	}
	if from == to {
		return amount, nil
	}
	m.calls++
	if m.fail {
		return 0, &types.ServiceError{Code: types.ErrConversionFailed, Message: "conversion failed"}
	}
	rate, ok := m.rates[string(from)+":"+string(to)]
	if !ok {
		return 0, &types.ServiceError{Code: types.ErrConversionFailed, Message: "no rate"}
	}
	return amount * rate, nil
}

func (m *mockConverter) ValidCode(ctx context.Context, code types.CurrencyCode) (bool, error) {
	if code == "usd" {
		return true, nil
	}
	for key := range m.rates {
		if key[:3] == string(code) {
			return true, nil
		}
	}
	return false, nil
}

// world bundles a fully wired service stack over the in-memory store
type world struct {
	store      *memStore
	quotes     *mockQuotes
	converter  *mockConverter
	valuation  *ValuationService
	settlement *SettlementService
}

func newWorld() *world {
	store := newMemStore()
	quotes := newMockQuotes()
	converter := newMockConverter()
	valuation := NewValuationService(userRepo{store}, portfolioRepo{store}, shareRepo{store}, quotes, converter, 2)
	settlement := NewSettlementService(userRepo{store}, portfolioRepo{store}, shareRepo{store}, quotes, converter, store, valuation)
	return &world{
		store:      store,
		quotes:     quotes,
		converter:  converter,
		valuation:  valuation,
		settlement: settlement,
	}
}

func floatPtr(v float64) *float64 { return &v }

func moneyPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
