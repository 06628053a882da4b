// Package buyerbid defines the BuyerBidClient contract (spec.md §6): one
// GetBids RPC per buyer. The backend implementation is out of scope
// (spec.md §1) — only the interface matters to the fan-out stage.
package buyerbid

import (
	"context"
	"time"

	"github.com/adxcore/sfe/internal/adxtypes"
)

// LogContext threads generation/debug identifiers into the buyer call for
// cross-service log correlation (spec.md §4.4).
type LogContext struct {
	GenerationID  string
	AdtechDebugID string
}

// GetBidsRequest is the per-buyer solicitation built by the fan-out stage.
type GetBidsRequest struct {
	IsChaff              bool
	PublisherName        string
	Seller               string
	AuctionSignals       string
	BuyerSignals         string
	BuyerInput           adxtypes.BuyerInput
	EnableDebugReporting bool
	LogContext           LogContext
}

// Client issues one GetBids call per buyer. Implementations must be safe
// for concurrent use: the fan-out stage calls GetBids once per buyer from its
// own goroutine.
type Client interface {
	GetBids(ctx context.Context, buyer string, req GetBidsRequest, metadata map[string]string, deadline time.Duration) (adxtypes.GetBidsResponse, error)
}
