package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// Audit event names for resolution paths.
const (
	auditResolve         = "resolve"
	auditAgentAttempt    = "agent_attempt"
	auditCreatorOverride = "creator_override"
)

// OverrideReason is recorded on every creator override.
const OverrideReason = "creator_override"

// Resolve finalizes the outcome as the designated resolver. No evidence is
// recorded and no event is emitted.
func (e *Engine) Resolve(ctx context.Context, market, caller domain.Address, outcome domain.Outcome) (domain.Market, error) {
	if !outcome.IsSide() {
		return domain.Market{}, fmt.Errorf("engine: resolve: %w", domain.ErrInvalidOutcome)
	}

	now := e.now().UTC()
	var out domain.Market
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, market)
		if err != nil {
			return err
		}
		if caller != m.Resolver {
			return domain.ErrUnauthorized
		}
		if m.Resolved {
			return domain.ErrAlreadyResolved
		}

		prev := m.Status
		m.Resolved = true
		m.Status = domain.StatusResolved
		m.Outcome = outcome
		m.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		out = m
		return tx.Audit(ctx, auditResolve, map[string]any{
			"market":      m.Address.Hex(),
			"resolver":    caller.Hex(),
			"outcome":     outcome.String(),
			"prev_status": prev.String(),
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: resolve: %w", err)
	}

	e.logger.InfoContext(ctx, "engine: market resolved",
		slog.String("market", market.Hex()),
		slog.String("outcome", outcome.String()),
	)
	e.committed(ctx, market, nil)
	return out, nil
}

// AgentAttemptParams carries an automated resolution attempt.
type AgentAttemptParams struct {
	Market      domain.Address
	Caller      domain.Address
	Outcome     domain.Outcome
	EvidenceURL string
	Reason      string
}

// AgentAttempt applies an automated verdict submitted by the resolver. Yes or
// No finalizes the market; None or an unknown code moves it to Disputed and
// leaves it unresolved. Evidence is recorded in both cases.
func (e *Engine) AgentAttempt(ctx context.Context, p AgentAttemptParams) (domain.Market, error) {
	if err := checkURL(p.EvidenceURL); err != nil {
		return domain.Market{}, fmt.Errorf("engine: agent attempt: %w", err)
	}

	now := e.now().UTC()
	var out domain.Market
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, p.Market)
		if err != nil {
			return err
		}
		if p.Caller != m.Resolver {
			return domain.ErrUnauthorized
		}
		if m.Resolved {
			return domain.ErrAlreadyResolved
		}

		if p.Outcome.IsSide() {
			m.Outcome = p.Outcome
			m.AgentOutcome = p.Outcome
			m.Resolved = true
			m.Status = domain.StatusResolved
		} else {
			m.AgentOutcome = domain.OutcomeNone
			m.Status = domain.StatusDisputed
		}
		m.EvidenceURL = p.EvidenceURL
		m.UpdatedAt = now
		if err := m.Validate(); err != nil {
			return err
		}
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		out = m
		return tx.Audit(ctx, auditAgentAttempt, map[string]any{
			"market":       m.Address.Hex(),
			"outcome_code": uint8(p.Outcome),
			"status":       m.Status.String(),
			"evidence_url": p.EvidenceURL,
			"reason":       p.Reason,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: agent attempt: %w", err)
	}

	e.logger.InfoContext(ctx, "engine: agent attempt applied",
		slog.String("market", p.Market.Hex()),
		slog.String("outcome", p.Outcome.String()),
		slog.String("status", out.Status.String()),
	)
	e.committed(ctx, p.Market, domain.MarketResolved{
		Market:      p.Market,
		Outcome:     out.Outcome,
		Status:      out.Status,
		EvidenceURL: p.EvidenceURL,
		IsAgent:     true,
		Reason:      p.Reason,
		Timestamp:   now,
	})
	return out, nil
}

// CreatorOverride lets the market creator set the final outcome from any
// status, including re-finalizing an already resolved market. When
// Config.LockOverrideAfterClaims is set the override is refused once any
// claim has been paid.
func (e *Engine) CreatorOverride(ctx context.Context, market, caller domain.Address, outcome domain.Outcome, evidenceURL string) (domain.Market, error) {
	if !outcome.IsSide() {
		return domain.Market{}, fmt.Errorf("engine: creator override: %w", domain.ErrInvalidOutcome)
	}
	if err := checkURL(evidenceURL); err != nil {
		return domain.Market{}, fmt.Errorf("engine: creator override: %w", err)
	}

	now := e.now().UTC()
	var out domain.Market
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, market)
		if err != nil {
			return err
		}
		if caller != m.Creator {
			return domain.ErrUnauthorized
		}
		if e.cfg.LockOverrideAfterClaims && m.ClaimCount > 0 {
			return domain.ErrOverrideLocked
		}

		prevOutcome, prevStatus := m.Outcome, m.Status
		m.Outcome = outcome
		m.AgentOutcome = outcome
		m.Resolved = true
		m.Status = domain.StatusResolved
		m.EvidenceURL = evidenceURL
		m.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		out = m
		return tx.Audit(ctx, auditCreatorOverride, map[string]any{
			"market":       m.Address.Hex(),
			"creator":      caller.Hex(),
			"prev_outcome": prevOutcome.String(),
			"prev_status":  prevStatus.String(),
			"outcome":      outcome.String(),
			"claim_count":  m.ClaimCount,
			"evidence_url": evidenceURL,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: creator override: %w", err)
	}

	e.logger.WarnContext(ctx, "engine: creator override applied",
		slog.String("market", market.Hex()),
		slog.String("outcome", outcome.String()),
		slog.Uint64("claim_count", out.ClaimCount),
	)
	e.committed(ctx, market, domain.MarketResolved{
		Market:      market,
		Outcome:     outcome,
		Status:      domain.StatusResolved,
		EvidenceURL: evidenceURL,
		IsAgent:     false,
		Reason:      OverrideReason,
		Timestamp:   now,
	})
	return out, nil
}
