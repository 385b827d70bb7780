// Package sources defines the Source adapter contract the Orchestrator
// fans out to during Collecting. The core never knows
// how a Source fetches odds; internal/sources/reference provides one
// concrete HTTP-based example.
package sources

import (
	"context"

	"github.com/kairosodds/pulse/internal/pkg/models"
)

// Source is consumed, not implemented, by the core. Implementations are
// free to use HTTP, headless browsers or third-party APIs internally.
// They must emit UTC match_date, must never emit live (in-play)
// matches, and must classify Sport accurately.
type Source interface {
	Name() string
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	Collect(ctx context.Context) ([]models.RawOffer, error)
}
