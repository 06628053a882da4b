// Package debugreport implements DebugReporter (spec.md §4.5 /
// PerformDebugReporting): fire-and-forget win/loss beacon delivery for
// every bid that carried debug_report_urls, once the winner is known.
package debugreport

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/httpfetcher"
)

// Reporter dispatches debug beacons without blocking the reactor's
// response path: Report launches the fetches and returns immediately.
type Reporter struct {
	Fetcher httpfetcher.Fetcher
	Timeout time.Duration
}

// winner identifies the bid the auction selected, used to pick win vs loss
// URLs for every other candidate bid.
type winner struct {
	buyer             string
	interestGroupName string
}

// Report fires the appropriate beacon for every bid in adBids that carries
// DebugReportURLs. The winning (buyer, interest_group_name) pair fires its
// win URL; every other bid with URLs fires its loss URL. Per spec.md §4.5
// this only happens when EnableDebugReporting is set on the request.
func (r *Reporter) Report(ctx context.Context, adBids []adxtypes.AdWithBidMetadata, highScore *adxtypes.AdScore, enableDebugReporting bool) {
	if !enableDebugReporting || r.Fetcher == nil {
		return
	}

	var w *winner
	if highScore != nil {
		w = &winner{buyer: highScore.InterestGroupOwner, interestGroupName: highScore.InterestGroupName}
	}

	for _, bid := range adBids {
		if bid.DebugReportURLs == nil {
			continue
		}
		isWinner := w != nil && w.buyer == bid.InterestGroupOwner && w.interestGroupName == bid.InterestGroupName
		url := bid.DebugReportURLs.AuctionDebugLossURL
		if isWinner {
			url = bid.DebugReportURLs.AuctionDebugWinURL
		}
		if url == "" {
			continue
		}
		go r.fireAndForget(interpolate(url, highScore, isWinner))
	}
}

func (r *Reporter) fireAndForget(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()
	if _, err := r.Fetcher.Fetch(ctx, url); err != nil {
		glog.V(2).Infof("debug beacon delivery failed for %s: %v", url, err)
	}
}

// interpolate substitutes the PostAuctionSignals placeholders the original
// beacon URLs carry (spec.md §9 supplemented feature 5): winning bid,
// whether this beacon's bid was the winner, and winning owner/ig-name.
// With no winner, the winning bid is 0 and the owner/ig-name are empty.
func interpolate(url string, highScore *adxtypes.AdScore, isWinner bool) string {
	var winningBid float64
	var winningOwner, winningName string
	if highScore != nil {
		winningBid = highScore.BuyerBid
		winningOwner = highScore.InterestGroupOwner
		winningName = highScore.InterestGroupName
	}
	replacer := strings.NewReplacer(
		"${winningBid}", strconv.FormatFloat(winningBid, 'f', -1, 64),
		"${madeWinningBid}", strconv.FormatBool(isWinner),
		"${winningIgOwner}", winningOwner,
		"${winningIgName}", winningName,
	)
	return replacer.Replace(url)
}
