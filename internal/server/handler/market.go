package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/amm"
	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
)

// MarketQueries defines the read-side methods the market handlers require.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type MarketQueries interface {
	GetMarket(ctx context.Context, addr domain.Address) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error)
	GetPosition(ctx context.Context, market, trader domain.Address) (domain.Position, error)
	ListPositions(ctx context.Context, market domain.Address, opts domain.ListOpts) ([]domain.Position, error)
	GetAccount(ctx context.Context, id domain.Address) (domain.TokenAccount, error)
	Quote(ctx context.Context, market domain.Address, side domain.Outcome, amount uint64) (amm.Quote, error)
}

// MarketEngine defines the state-changing operations.
type MarketEngine interface {
	CreateMarket(ctx context.Context, p engine.CreateMarketParams) (domain.Market, error)
	PlaceOrder(ctx context.Context, p engine.OrderParams) (engine.OrderResult, error)
	Resolve(ctx context.Context, market, caller domain.Address, outcome domain.Outcome) (domain.Market, error)
	AgentAttempt(ctx context.Context, p engine.AgentAttemptParams) (domain.Market, error)
	CreatorOverride(ctx context.Context, market, caller domain.Address, outcome domain.Outcome, evidenceURL string) (domain.Market, error)
	Claim(ctx context.Context, market, trader domain.Address) (engine.ClaimResult, error)
	EmergencyWithdraw(ctx context.Context, market, caller domain.Address) (uint64, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	queries MarketQueries
	engine  MarketEngine
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(queries MarketQueries, eng MarketEngine, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		queries: queries,
		engine:  eng,
		logger:  logHandler(logger, "market"),
	}
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets, newest first.
// GET /api/markets?status=open&closed_before=1700000000&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	f := domain.MarketFilter{ListOpts: parseListOpts(r)}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseStatus(v)
		if err != nil {
			badRequest(w, err)
			return
		}
		f.Status = &st
	}
	if v := q.Get("closed_before"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "closed_before must be a unix timestamp")
			return
		}
		t := time.Unix(sec, 0)
		f.ClosedBefore = &t
	}

	markets, err := h.queries.ListMarkets(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, h.logger, "list markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
}

// GetMarket returns a single market by address.
// GET /api/markets/{market}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "market")
	if err != nil {
		badRequest(w, err)
		return
	}
	m, err := h.queries.GetMarket(r.Context(), addr)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// createMarketRequest is the body of POST /api/markets. The caller becomes
// the market creator.
type createMarketRequest struct {
	Region       domain.RegionID `json:"region"`
	Question     string          `json:"question"`
	CloseTime    int64           `json:"close_time"`
	ManifestURL  string          `json:"manifest_url"`
	ManifestHash domain.Hash     `json:"manifest_hash"`
	Asset        domain.Address  `json:"asset"`
	Resolver     domain.Address  `json:"resolver"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	creator, ok := caller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Asset.IsZero() || req.Resolver.IsZero() {
		writeError(w, http.StatusBadRequest, domain.Code(domain.ErrInvalidAddress), "asset and resolver are required")
		return
	}

	m, err := h.engine.CreateMarket(r.Context(), engine.CreateMarketParams{
		Creator:      creator,
		Region:       req.Region,
		Question:     req.Question,
		CloseTime:    req.CloseTime,
		ManifestURL:  req.ManifestURL,
		ManifestHash: req.ManifestHash,
		Asset:        req.Asset,
		Resolver:     req.Resolver,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetAccount returns a token account.
// GET /api/accounts/{account}
func (h *MarketHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "account")
	if err != nil {
		badRequest(w, err)
		return
	}
	acct, err := h.queries.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
