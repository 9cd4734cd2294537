package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	"github.com/Klingon-tech/klingnet-market/internal/sale"
	"github.com/Klingon-tech/klingnet-market/internal/transfer"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true, TS: time.Now().UnixMilli()})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.svc.Ledger.ListTokens(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []*ledger.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.svc.Ledger.GetToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	tok, err := s.svc.Ledger.CreateToken(r.Context(), ledger.CreateParams{
		Type:          req.Type,
		Name:          req.Name,
		Ticker:        req.Ticker,
		Owner:         req.Owner,
		TotalSupply:   req.TotalSupply,
		PricePerToken: req.PricePerToken,
		DynamicPrice:  req.DynamicPrice,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateTokenResponse{OK: true, ID: tok.ID, Token: tok})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if req.Amount == nil {
		s.writeError(w, r, fmt.Errorf("%w: amount required", ledger.ErrValidation))
		return
	}

	quote, err := s.svc.Sales.CreateSale(r.Context(), chi.URLParam(r, "id"), req.Buyer, *req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BuyResponse{
		OK:       true,
		SaleID:   quote.SaleID,
		Cost:     quote.Cost,
		Receiver: quote.Receiver,
	})
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sl, err := s.svc.Sales.GetSale(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sl)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	res, err := s.svc.Sales.ConfirmSale(r.Context(), chi.URLParam(r, "saleId"), req.TxHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transfer.Request
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := s.svc.Transfers.Transfer(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.svc.Ledger.BalancesFor(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if balances == nil {
		balances = []*ledger.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.svc.History.QueryByBuyer(r.Context(), chi.URLParam(r, "address"))
	if entries == nil {
		entries = []*history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// decode reads a JSON body into v. An empty body is accepted when optional
// is set. On failure the error response is written and false returned.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && optional:
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Reason: reasonMissingFields, Error: "request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Reason: reasonMissingFields, Error: "invalid JSON body"})
	return false
}

// writeError maps err to a status and reason code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := http.StatusInternalServerError, reasonInternal
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status, reason = http.StatusBadRequest, reasonMissingFields
	case errors.Is(err, ledger.ErrTokenNotFound), errors.Is(err, sale.ErrSaleNotFound):
		status, reason = http.StatusNotFound, reasonNotFound
	case errors.Is(err, ledger.ErrInvalidAmount):
		status, reason = http.StatusBadRequest, reasonInvalidAmount
	case errors.Is(err, ledger.ErrInsufficientSupply):
		status, reason = http.StatusBadRequest, reasonInsufficientSupply
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status, reason = http.StatusBadRequest, reasonInsufficient
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Reason: reason, Error: msg})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
