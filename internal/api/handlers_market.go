package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/types"
)

// handlePrice proxies a live quote for one ticker.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	if tag == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Ticker is required", nil)
		return
	}

	quote, err := s.quotes.Quote(r.Context(), tag)
	if err != nil {
		respondServiceError(w, &types.ServiceError{Code: types.ErrQuoteUnavailable, Message: "Quote provider unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// handleSearch proxies a symbol search against the quote provider.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := mux.Vars(r)["query"]
	if query == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Search query is required", nil)
		return
	}

	results, err := s.quotes.Search(r.Context(), query)
	if err != nil {
		respondServiceError(w, &types.ServiceError{Code: types.ErrQuoteUnavailable, Message: "Quote provider unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type convertResponse struct {
	Amount    float64            `json:"amount"`
	From      types.CurrencyCode `json:"from"`
	To        types.CurrencyCode `json:"to"`
	Converted float64            `json:"converted"`
}

// handleConvert converts an amount between two currencies, e.g.
// GET /api/convert?amount=10.5&from=usd&to=eur
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid amount", nil)
		return
	}

	from := types.NormalizeCurrency(q.Get("from"))
	to := types.NormalizeCurrency(q.Get("to"))

	converted, err := s.converter.Convert(r.Context(), amount, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertResponse{
		Amount:    amount,
		From:      from,
		To:        to,
		Converted: converted,
	})
}
