package handler

import (
	"net/http"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
)

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve finalizes a market as its resolver.
// POST /api/markets/{market}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		badRequest(w, err)
		return
	}

	m, err := h.engine.Resolve(r.Context(), market, who, outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// agentResolutionRequest carries the raw outcome code so that codes other
// than Yes and No reach the engine and dispute the market.
type agentResolutionRequest struct {
	OutcomeCode uint8  `json:"outcome_code"`
	EvidenceURL string `json:"evidence_url"`
	Reason      string `json:"reason"`
}

// AgentResolution records an automated verdict.
// POST /api/markets/{market}/agent-resolution
func (h *MarketHandler) AgentResolution(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req agentResolutionRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	m, err := h.engine.AgentAttempt(r.Context(), engine.AgentAttemptParams{
		Market:      market,
		Caller:      who,
		Outcome:     domain.Outcome(req.OutcomeCode),
		EvidenceURL: req.EvidenceURL,
		Reason:      req.Reason,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "agent resolution", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type overrideRequest struct {
	Outcome     string `json:"outcome"`
	EvidenceURL string `json:"evidence_url"`
}

// Override sets the final outcome as the market creator.
// POST /api/markets/{market}/override
func (h *MarketHandler) Override(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	market, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		badRequest(w, err)
		return
	}

	m, err := h.engine.CreatorOverride(r.Context(), market, who, outcome, req.EvidenceURL)
	if err != nil {
		writeDomainError(w, r, h.logger, "override", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
