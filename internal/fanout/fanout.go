// Package fanout implements BuyerFanout (spec.md §4.4): a parallel GetBids
// dispatch to every buyer named in the auction config, gated by a
// pending-count barrier that releases exactly once all buyers have replied
// or been skipped.
//
// The original reactor drove this with a callback invoked from each RPC's
// completion handler, decrementing a mutex-guarded counter and firing the
// next stage when it reached zero (spec.md §9 redesign flag). Go's
// structured concurrency makes the callback unnecessary: one goroutine per
// buyer joined through an errgroup.Group as the barrier, with a mutex
// around the shared result map. errgroup is used purely for the join;
// every goroutine always returns nil so one buyer's failure never cancels
// its siblings.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/buyerbid"
	"github.com/adxcore/sfe/internal/metrics"
)

// Fanout dispatches GetBids to every buyer in parallel.
type Fanout struct {
	Client  buyerbid.Client
	Metrics metrics.Sink

	// DefaultBuyerTimeout is used when neither the per-buyer nor the
	// auction-level timeout override is set (spec.md §4.4).
	DefaultBuyerTimeout time.Duration
}

// Request bundles the per-auction inputs BuyerFanout needs, independent of
// the client-type-specific decoding that already happened.
type Request struct {
	AuctionConfig        adxtypes.AuctionConfig
	BuyerInputs          map[string]adxtypes.BuyerInput
	PublisherName        string
	EnableDebugReporting bool
	IsChaff              bool
	GenerationID         string
}

// Result is the outcome of fanning a request out to every buyer: only
// buyers that returned at least one bid are present, per spec.md §4.4's
// "skip in downstream processing if it returned no bids".
type Result struct {
	BuyerBids map[string]adxtypes.GetBidsResponse
}

func (f *Fanout) resolveTimeout(buyer string, cfg adxtypes.AuctionConfig) time.Duration {
	if pb, ok := cfg.PerBuyerConfig[buyer]; ok && pb.BuyerTimeoutMS > 0 {
		return time.Duration(pb.BuyerTimeoutMS) * time.Millisecond
	}
	if cfg.BuyerTimeoutMS > 0 {
		return time.Duration(cfg.BuyerTimeoutMS) * time.Millisecond
	}
	return f.DefaultBuyerTimeout
}

// Run fans the request out across every buyer in req.AuctionConfig.BuyerList
// and blocks until all have completed (or been skipped for lacking a
// BuyerInput), per spec.md §4.4's barrier semantics.
func (f *Fanout) Run(ctx context.Context, req Request) Result {
	result := Result{BuyerBids: make(map[string]adxtypes.GetBidsResponse)}
	var mu sync.Mutex
	var g errgroup.Group

	for _, buyer := range req.AuctionConfig.BuyerList {
		buyerInput, ok := req.BuyerInputs[buyer]
		if !ok {
			// No BuyerInput for this buyer: skip immediately, still counts
			// toward the barrier (spec.md §4.4).
			continue
		}

		buyer, buyerInput := buyer, buyerInput
		g.Go(func() error {
			perBuyer := req.AuctionConfig.PerBuyerConfig[buyer]
			rpcReq := buyerbid.GetBidsRequest{
				IsChaff:              req.IsChaff,
				PublisherName:        req.PublisherName,
				Seller:               req.AuctionConfig.Seller,
				AuctionSignals:       req.AuctionConfig.AuctionSignals,
				BuyerSignals:         perBuyer.BuyerSignals,
				BuyerInput:           buyerInput,
				EnableDebugReporting: req.EnableDebugReporting,
				LogContext: buyerbid.LogContext{
					GenerationID:  req.GenerationID,
					AdtechDebugID: perBuyer.BuyerDebugID,
				},
			}

			deadline := f.resolveTimeout(buyer, req.AuctionConfig)
			callCtx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()

			start := time.Now()
			resp, err := f.Client.GetBids(callCtx, buyer, rpcReq, nil, deadline)
			if f.Metrics != nil {
				f.Metrics.RecordBuyerBidTime(buyer, time.Since(start))
				f.Metrics.RecordBuyerBidRequest(buyer, len(resp.Bids) > 0, err)
			}
			if err != nil {
				glog.V(1).Infof("GetBids failed for buyer %q: %v", buyer, err)
				return nil
			}
			if len(resp.Bids) == 0 {
				return nil
			}

			mu.Lock()
			result.BuyerBids[buyer] = resp
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return result
}
