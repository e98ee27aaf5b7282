// Package narrative turns a computed KPI summary into a short
// analyst-facing synopsis via an external text-generation service.
//
// The feature is strictly opt-in: without a credential the Noop
// generator is wired in and the rest of the dashboard is unaffected.
package narrative

import (
	"context"
	"errors"
	"fmt"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

var (
	// ErrDisabled is returned when no credential is configured.
	ErrDisabled = errors.New("narrative generation disabled")

	// ErrUnavailable wraps any service failure (timeout, auth, quota,
	// open circuit). Callers render "narrative unavailable" and move on.
	ErrUnavailable = errors.New("narrative unavailable")
)

// Payload is the structured input handed to the text-generation
// service. SnapshotID ties the request to the filter state it was
// computed from so stale responses can be discarded.
type Payload struct {
	SnapshotID string          `json:"-"`
	Metrics    core.Summary    `json:"metrics"`
	Spotlights core.Spotlights `json:"spotlights"`
}

// Generator produces a natural-language synopsis for a KPI payload.
type Generator interface {
	Generate(ctx context.Context, p Payload) (string, error)

	// Enabled reports whether generation can ever succeed; the UI uses
	// it to render the narrative section as disabled up front.
	Enabled() bool
}

// Noop is the stand-in generator used when no credential is set.
type Noop struct{}

func (Noop) Generate(context.Context, Payload) (string, error) {
	return "", ErrDisabled
}

func (Noop) Enabled() bool { return false }

// unavailable wraps a cause in ErrUnavailable for errors.Is checks.
func unavailable(cause error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, cause)
}
