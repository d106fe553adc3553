package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/types"
)

type cashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// handleDeposit credits cash to the caller's account.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	balance, err := s.users.Deposit(r.Context(), userID(r), req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

// handleWithdraw debits cash from the caller's account.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	balance, err := s.users.Withdraw(r.Context(), userID(r), req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

// handleBalance returns the caller's cash balance.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.users.Balance(r.Context(), userID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

// handleUserShares lists every holding the caller owns, across all
// portfolios, refreshed on the way out.
func (s *Server) handleUserShares(w http.ResponseWriter, r *http.Request) {
	shares, err := s.users.Shares(r.Context(), userID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"shares": shares})
}

// handleTradeLogs returns a page of the caller's trade history,
// newest first. Supports ?limit= and ?offset=.
func (s *Server) handleTradeLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := s.users.TradeLogs(r.Context(), userID(r), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

// handleChangeCurrency switches the caller's preferred currency and
// re-denominates their portfolios.
func (s *Server) handleChangeCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	code := types.NormalizeCurrency(req.Currency)
	if err := s.valuation.ChangePreferredCurrency(r.Context(), userID(r), code); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"currency": code})
}

// handleRefresh revalues all of the caller's holdings on demand.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.valuation.RefreshOwner(r.Context(), userID(r)); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
