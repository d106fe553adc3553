package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

// tradeBody is the request body for buy and sell orders. Exactly one of
// stockAmount (a share quantity) and priceAmount (a money amount) must
// be set.
type tradeBody struct {
	StockAmount *float64         `json:"stockAmount,omitempty"`
	PriceAmount *decimal.Decimal `json:"priceAmount,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	PortfolioID string           `json:"portfolioId,omitempty"`
}

func (s *Server) tradeRequest(r *http.Request) (service.TradeRequest, bool) {
	var body tradeBody
	if err := parseJSONBody(r, &body); err != nil {
		return service.TradeRequest{}, false
	}

	return service.TradeRequest{
		OwnerID:     userID(r),
		Ticker:      mux.Vars(r)["tag"],
		PortfolioID: body.PortfolioID,
		Quantity:    body.StockAmount,
		Money:       body.PriceAmount,
		Currency:    types.NormalizeCurrency(body.Currency),
	}, true
}

// handleBuy settles a buy order for the ticker in the URL.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, ok := s.tradeRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	result, err := s.settlement.Buy(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleSell settles a sell order for the ticker in the URL.
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, ok := s.tradeRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	result, err := s.settlement.Sell(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
