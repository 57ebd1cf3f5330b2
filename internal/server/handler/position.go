package handler

import (
	"net/http"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the positions of a market.
// GET /api/markets/{market}/positions?limit=50&offset=0
func (h *MarketHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	positions, err := h.queries.ListPositions(r.Context(), market, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one trader's position in a market.
// GET /api/markets/{market}/positions/{trader}
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	trader, err := pathAddress(r, "trader")
	if err != nil {
		badRequest(w, err)
		return
	}
	p, err := h.queries.GetPosition(r.Context(), market, trader)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Claim pays out the caller's winning position.
// POST /api/markets/{market}/claim
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	trader, ok := caller(w, r)
	if !ok {
		return
	}
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.engine.Claim(r.Context(), market, trader)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EmergencyWithdraw drains an unclaimable pool to the resolver.
// POST /api/markets/{market}/emergency-withdraw
func (h *MarketHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	amount, err := h.engine.EmergencyWithdraw(r.Context(), market, who)
	if err != nil {
		writeDomainError(w, r, h.logger, "emergency withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market": market,
		"amount": amount,
	})
}
