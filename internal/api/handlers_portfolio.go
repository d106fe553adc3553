package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/service"
)

type createPortfolioRequest struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

type updatePortfolioRequest struct {
	Name      string `json:"name,omitempty"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// handleCreatePortfolio creates a new portfolio for the caller.
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	portfolio, err := s.portfolios.Create(r.Context(), service.CreatePortfolioInput{
		OwnerID:   userID(r),
		Name:      req.Name,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// handleListPortfolios lists all of the caller's portfolios.
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.portfolios.List(r.Context(), userID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"portfolios": portfolios})
}

// handleGetPortfolio returns one portfolio owned by the caller.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.portfolios.Get(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleUpdatePortfolio renames a portfolio or promotes it to default.
func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req updatePortfolioRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	id := mux.Vars(r)["id"]
	owner := userID(r)

	if req.Name != "" {
		if err := s.portfolios.Rename(r.Context(), owner, id, req.Name); err != nil {
			respondServiceError(w, err)
			return
		}
	}
	if req.IsDefault {
		if err := s.portfolios.SetDefault(r.Context(), owner, id); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	portfolio, err := s.portfolios.Get(r.Context(), owner, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleDeletePortfolio deletes an empty portfolio.
func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := s.portfolios.Delete(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handlePortfolioValue refreshes and returns the portfolio's valuation.
func (s *Server) handlePortfolioValue(w http.ResponseWriter, r *http.Request) {
	value, err := s.portfolios.Value(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, value)
}

// handlePortfolioReturn returns the portfolio's absolute gain.
func (s *Server) handlePortfolioReturn(w http.ResponseWriter, r *http.Request) {
	value, err := s.portfolios.Value(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolioId": value.PortfolioID,
		"return":      value.Gain,
		"currency":    value.Currency,
	})
}

// handlePortfolioReturnPercentage returns the portfolio's gain relative
// to its cost basis.
func (s *Server) handlePortfolioReturnPercentage(w http.ResponseWriter, r *http.Request) {
	value, err := s.portfolios.Value(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolioId":      value.PortfolioID,
		"returnPercentage": value.GainPercent,
	})
}

// handlePortfolioShares lists the holdings within one portfolio.
func (s *Server) handlePortfolioShares(w http.ResponseWriter, r *http.Request) {
	shares, err := s.portfolios.Holdings(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"shares": shares})
}
