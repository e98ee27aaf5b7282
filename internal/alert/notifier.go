package alert

import (
	"context"
	"log/slog"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

// Publisher is the outbound capability the dashboard depends on; the
// AMQP Client satisfies it and tests substitute fakes.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// PublishRaised sends one message per raised spotlight flag and
// returns how many were published. Publish failures are logged and
// swallowed: alerting is best-effort by contract.
func PublishRaised(ctx context.Context, pub Publisher, runID string, win core.Window, spots core.Spotlights) int {
	if pub == nil {
		return 0
	}

	published := 0
	if spots.Burst.Flag {
		msg := NewMessage(runID, RuleBurst, spots.Burst.Score, win.Start, win.End)
		if err := pub.Publish(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Spotlight alert publish failed",
				"run_id", runID, "rule", RuleBurst, "error", err)
		} else {
			published++
		}
	}
	if spots.Imbalance.Flag {
		msg := NewMessage(runID, RuleImbalance, spots.Imbalance.Ratio, win.Start, win.End)
		if err := pub.Publish(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Spotlight alert publish failed",
				"run_id", runID, "rule", RuleImbalance, "error", err)
		} else {
			published++
		}
	}
	return published
}
