package scoring

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/adxcore/sfe/internal/adxtypes"
)

// Stage owns the two sub-steps of spec.md §4.5: fetching scoring signals,
// then invoking the scoring backend.
type Stage struct {
	Signals SignalsProvider
	Scorer  Client

	// LegacyIGScanQuirk reproduces the original source's inverted
	// interest-group scan (spec.md §9 Open Questions): it breaks on the
	// first interest-group whose name differs from the bid's, rather than
	// the one that matches. Default false matches by equality.
	LegacyIGScanQuirk bool
}

// BuildAdWithBidMetadata augments one buyer's bid with identity and (for
// BROWSER clients only) join_count/recency metadata looked up from that
// buyer's BuyerInput, per spec.md §4.5.
func (s *Stage) BuildAdWithBidMetadata(bid adxtypes.AdWithBid, buyer string, buyerInput adxtypes.BuyerInput, isBrowser bool) adxtypes.AdWithBidMetadata {
	out := adxtypes.AdWithBidMetadata{
		Ad:                    bid.Ad,
		Bid:                   bid.Bid,
		Render:                bid.Render,
		AllowComponentAuction: bid.AllowComponentAuction,
		AdComponentRender:     bid.AdComponentRender,
		InterestGroupName:     bid.InterestGroupName,
		InterestGroupOwner:    buyer,
		AdCost:                bid.AdCost,
		ModelingSignals:       bid.ModelingSignals,
		DebugReportURLs:       bid.DebugReportURLs,
	}
	if !isBrowser {
		return out
	}

	for _, ig := range buyerInput.InterestGroups {
		differs := ig.Name != out.InterestGroupName
		matched := !differs
		if s.LegacyIGScanQuirk {
			// Source quirk: scan breaks on the first NON-matching name and
			// reads browser_signals from it, not from the matching one.
			if differs {
				out.JoinCount = ig.BrowserSignals.JoinCount
				out.Recency = ig.BrowserSignals.Recency
				break
			}
			continue
		}
		if matched {
			out.JoinCount = ig.BrowserSignals.JoinCount
			out.Recency = ig.BrowserSignals.Recency
			break
		}
	}
	return out
}

// BuildRequest flattens every bid from every buyer into a single
// ScoreAdsRawRequest, per spec.md §4.5.
func (s *Stage) BuildRequest(
	buyerBids map[string]adxtypes.GetBidsResponse,
	buyerInputs map[string]adxtypes.BuyerInput,
	isBrowser bool,
	auctionSignals, sellerSignals, publisherHostname string,
	enableDebugReporting bool,
	scoringSignals []byte,
	generationID, sellerDebugID string,
) adxtypes.ScoreAdsRawRequest {
	req := adxtypes.ScoreAdsRawRequest{
		AuctionSignals:       auctionSignals,
		SellerSignals:        sellerSignals,
		PublisherHostname:    publisherHostname,
		EnableDebugReporting: enableDebugReporting,
		ScoringSignals:       scoringSignals,
		GenerationID:         generationID,
		SellerDebugID:        sellerDebugID,
	}
	for buyer, resp := range buyerBids {
		input := buyerInputs[buyer]
		for _, bid := range resp.Bids {
			req.AdBids = append(req.AdBids, s.BuildAdWithBidMetadata(bid, buyer, input, isBrowser))
		}
	}
	return req
}

// FetchSignals calls the SignalsProvider; failure is logged and the caller
// proceeds with nil signals (spec.md §4.5, §7).
func (s *Stage) FetchSignals(ctx context.Context, buyerBids map[string]adxtypes.GetBidsResponse, timeout time.Duration) []byte {
	if s.Signals == nil || len(buyerBids) == 0 {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	signals, err := s.Signals.Fetch(fetchCtx, buyerBids, timeout)
	if err != nil {
		glog.V(1).Infof("scoring signals fetch failed, proceeding without them: %v", err)
		return nil
	}
	return signals
}

// ScoreAds invokes the scoring backend with the given deadline.
func (s *Stage) ScoreAds(ctx context.Context, req adxtypes.ScoreAdsRawRequest, timeout time.Duration) (adxtypes.ScoreAdsResponse, error) {
	scoreCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Scorer.ScoreAds(scoreCtx, req, timeout)
}

// HighScore derives the winning AdScore per spec.md §4.5: present iff the
// response carries an ad_score with buyer_bid > 0.
func HighScore(resp adxtypes.ScoreAdsResponse) *adxtypes.AdScore {
	if resp.AdScore == nil || resp.AdScore.BuyerBid <= 0 {
		return nil
	}
	return resp.AdScore
}
