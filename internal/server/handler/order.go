package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// placeOrderRequest is the body of an order. min_shares_out is a decimal
// string since it may exceed 64 bits.
type placeOrderRequest struct {
	Side         string          `json:"side"`
	Amount       uint64          `json:"amount"`
	MinSharesOut uint128.Uint128 `json:"min_shares_out"`
}

// PlaceOrder deposits into one side of a market as the caller.
// POST /api/markets/{market}/orders
func (h *MarketHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	trader, ok := caller(w, r)
	if !ok {
		return
	}
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.engine.PlaceOrder(r.Context(), engine.OrderParams{
		Market:       market,
		Trader:       trader,
		Side:         side,
		Amount:       req.Amount,
		MinSharesOut: req.MinSharesOut,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Quote previews the shares an order would mint.
// GET /api/markets/{market}/quote?side=yes&amount=100
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	q := r.URL.Query()
	side, err := parseSide(q.Get("side"))
	if err != nil {
		badRequest(w, err)
		return
	}
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "amount must be an unsigned integer")
		return
	}

	quote, err := h.queries.Quote(r.Context(), market, side, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// parseSide accepts yes or no.
func parseSide(s string) (domain.Outcome, error) {
	o, err := domain.ParseOutcome(s)
	if err != nil || !o.IsSide() {
		return domain.OutcomeNone, domain.ErrInvalidSide
	}
	return o, nil
}
