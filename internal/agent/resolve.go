package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/engine"
	"github.com/alanyoungcy/hyperlocal/internal/platform/oracle"
)

// Action is what the agent did with a market.
type Action string

const (
	ActionResolved  Action = "resolved"
	ActionDisputed  Action = "disputed"
	ActionSkipped   Action = "skipped"
	ActionNoVerdict Action = "no_verdict"
)

// ResolveMarket evaluates one market under its agent lock and submits the
// verdict. Verdicts below MinConfidence count as UNSURE, which is skipped
// unless EscalateUnsure moves the market to Disputed.
func (r *Runner) ResolveMarket(ctx context.Context, m domain.Market) (Action, error) {
	if r.deps.Locks != nil {
		unlock, err := r.deps.Locks.Acquire(ctx, marketLockKey(m.Address), r.cfg.LockTTL)
		if err != nil {
			return ActionSkipped, err
		}
		defer unlock()
	}

	manifest, err := r.manifestFor(ctx, m)
	if err != nil {
		return ActionNoVerdict, err
	}

	verdict, err := r.deps.Oracle.Evaluate(ctx, manifest)
	if err != nil {
		return ActionNoVerdict, fmt.Errorf("agent: evaluate %s: %w", m.Address.Hex(), err)
	}
	if verdict.Outcome != oracle.OutcomeUnsure && verdict.Confidence < r.cfg.MinConfidence {
		verdict.Reason = fmt.Sprintf("confidence %.2f below %.2f: %s", verdict.Confidence, r.cfg.MinConfidence, verdict.Reason)
		verdict.Outcome = oracle.OutcomeUnsure
	}

	side := verdict.Side()
	if side == domain.OutcomeNone {
		if !r.cfg.EscalateUnsure || m.Status == domain.StatusDisputed {
			r.logger.InfoContext(ctx, "oracle unsure, skipping",
				slog.String("market", m.Address.Hex()),
				slog.Float64("confidence", verdict.Confidence),
			)
			return ActionSkipped, nil
		}
	}

	// Evidence is archived only for verdicts that are actually submitted.
	evidenceURL, err := r.archiveVerdict(ctx, m, verdict)
	if err != nil {
		// The verdict can still be applied with the oracle's own source.
		r.logger.WarnContext(ctx, "evidence archive failed",
			slog.String("market", m.Address.Hex()),
			slog.String("error", err.Error()),
		)
	}

	out, err := r.deps.Engine.AgentAttempt(ctx, engine.AgentAttemptParams{
		Market:      m.Address,
		Caller:      r.principal,
		Outcome:     side,
		EvidenceURL: evidenceURL,
		Reason:      verdict.Reason,
	})
	if err != nil {
		return ActionNoVerdict, err
	}

	r.logger.InfoContext(ctx, "agent verdict submitted",
		slog.String("market", m.Address.Hex()),
		slog.String("outcome", verdict.Outcome),
		slog.Float64("confidence", verdict.Confidence),
		slog.String("status", out.Status.String()),
	)
	if out.Resolved {
		return ActionResolved, nil
	}
	return ActionDisputed, nil
}

// manifestFor loads the market's manifest, or derives a compact one from the
// question when the market has none.
func (r *Runner) manifestFor(ctx context.Context, m domain.Market) (domain.Manifest, error) {
	if m.ManifestURL == "" {
		return domain.CompactManifest{Question: m.Question}.Expand(r.now()), nil
	}
	manifest, err := r.deps.Manifests.Fetch(ctx, m.ManifestURL, m.ManifestHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Manifest{}, fmt.Errorf("agent: manifest %s: %w", m.ManifestURL, err)
		}
		return domain.Manifest{}, fmt.Errorf("agent: fetch manifest: %w", err)
	}
	return manifest, nil
}
