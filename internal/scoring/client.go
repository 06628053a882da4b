// Package scoring defines the two scoring-side external collaborators
// named in spec.md §6 (ScoringSignalsProvider, ScoringClient) and the
// ScoringStage logic that uses them (spec.md §4.5).
package scoring

import (
	"context"
	"time"

	"github.com/adxcore/sfe/internal/adxtypes"
)

// SignalsProvider fetches scoring signals for a set of collected bids.
// Failure is non-fatal per spec.md §4.5: the caller proceeds with nil
// signals.
type SignalsProvider interface {
	Fetch(ctx context.Context, buyerBids map[string]adxtypes.GetBidsResponse, deadline time.Duration) ([]byte, error)
}

// LogContext threads generation/debug identifiers into the ScoreAds call.
type LogContext struct {
	GenerationID  string
	SellerDebugID string
}

// Client invokes the scoring backend once per auction.
type Client interface {
	ScoreAds(ctx context.Context, req adxtypes.ScoreAdsRawRequest, deadline time.Duration) (adxtypes.ScoreAdsResponse, error)
}
