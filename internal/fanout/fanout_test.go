package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/buyerbid"
	"github.com/adxcore/sfe/internal/metrics"
)

type stubBuyerClient struct {
	bids   map[string][]adxtypes.AdWithBid
	err    map[string]error
	delay  map[string]time.Duration

	mu     sync.Mutex
	called map[string]bool
}

func newStubBuyerClient() *stubBuyerClient {
	return &stubBuyerClient{
		bids:   map[string][]adxtypes.AdWithBid{},
		err:    map[string]error{},
		delay:  map[string]time.Duration{},
		called: map[string]bool{},
	}
}

func (s *stubBuyerClient) GetBids(ctx context.Context, buyer string, req buyerbid.GetBidsRequest, metadata map[string]string, deadline time.Duration) (adxtypes.GetBidsResponse, error) {
	s.mu.Lock()
	s.called[buyer] = true
	s.mu.Unlock()
	if d, ok := s.delay[buyer]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return adxtypes.GetBidsResponse{}, ctx.Err()
		}
	}
	if err, ok := s.err[buyer]; ok {
		return adxtypes.GetBidsResponse{}, err
	}
	return adxtypes.GetBidsResponse{Bids: s.bids[buyer]}, nil
}

func TestFanoutSkipsBuyerWithoutInput(t *testing.T) {
	client := newStubBuyerClient()
	f := &Fanout{Client: client, Metrics: metrics.NoOp{}, DefaultBuyerTimeout: time.Second}

	req := Request{
		AuctionConfig: adxtypes.AuctionConfig{BuyerList: []string{"buyerA", "buyerB"}},
		BuyerInputs: map[string]adxtypes.BuyerInput{
			"buyerA": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}}},
		},
	}

	result := f.Run(context.Background(), req)
	assert.True(t, client.called["buyerA"])
	assert.False(t, client.called["buyerB"])
	assert.NotContains(t, result.BuyerBids, "buyerB")
}

func TestFanoutOmitsBuyerWithNoBids(t *testing.T) {
	client := newStubBuyerClient()
	client.bids["buyerA"] = nil
	f := &Fanout{Client: client, Metrics: metrics.NoOp{}, DefaultBuyerTimeout: time.Second}

	req := Request{
		AuctionConfig: adxtypes.AuctionConfig{BuyerList: []string{"buyerA"}},
		BuyerInputs: map[string]adxtypes.BuyerInput{
			"buyerA": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}}},
		},
	}

	result := f.Run(context.Background(), req)
	assert.Empty(t, result.BuyerBids)
}

func TestFanoutCollectsBidsFromAllBuyers(t *testing.T) {
	client := newStubBuyerClient()
	client.bids["buyerA"] = []adxtypes.AdWithBid{{InterestGroupName: "shoes", Bid: 1.5}}
	client.bids["buyerB"] = []adxtypes.AdWithBid{{InterestGroupName: "hats", Bid: 2.5}}
	f := &Fanout{Client: client, Metrics: metrics.NoOp{}, DefaultBuyerTimeout: time.Second}

	req := Request{
		AuctionConfig: adxtypes.AuctionConfig{BuyerList: []string{"buyerA", "buyerB"}},
		BuyerInputs: map[string]adxtypes.BuyerInput{
			"buyerA": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}}},
			"buyerB": {InterestGroups: []adxtypes.InterestGroup{{Name: "hats"}}},
		},
	}

	result := f.Run(context.Background(), req)
	require.Len(t, result.BuyerBids, 2)
	assert.Equal(t, 1.5, result.BuyerBids["buyerA"].Bids[0].Bid)
	assert.Equal(t, 2.5, result.BuyerBids["buyerB"].Bids[0].Bid)
}

func TestFanoutToleratesOneBuyerTimingOut(t *testing.T) {
	client := newStubBuyerClient()
	client.bids["fast"] = []adxtypes.AdWithBid{{InterestGroupName: "shoes", Bid: 1.0}}
	client.delay["slow"] = 200 * time.Millisecond
	client.bids["slow"] = []adxtypes.AdWithBid{{InterestGroupName: "hats", Bid: 2.0}}
	f := &Fanout{Client: client, Metrics: metrics.NoOp{}, DefaultBuyerTimeout: 20 * time.Millisecond}

	req := Request{
		AuctionConfig: adxtypes.AuctionConfig{BuyerList: []string{"fast", "slow"}},
		BuyerInputs: map[string]adxtypes.BuyerInput{
			"fast": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}}},
			"slow": {InterestGroups: []adxtypes.InterestGroup{{Name: "hats"}}},
		},
	}

	result := f.Run(context.Background(), req)
	assert.Contains(t, result.BuyerBids, "fast")
	assert.NotContains(t, result.BuyerBids, "slow")
}

func TestFanoutAllBuyersFailingYieldsEmptyResult(t *testing.T) {
	client := newStubBuyerClient()
	client.err["buyerA"] = assertError{}
	f := &Fanout{Client: client, Metrics: metrics.NoOp{}, DefaultBuyerTimeout: time.Second}

	req := Request{
		AuctionConfig: adxtypes.AuctionConfig{BuyerList: []string{"buyerA"}},
		BuyerInputs: map[string]adxtypes.BuyerInput{
			"buyerA": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}}},
		},
	}

	result := f.Run(context.Background(), req)
	assert.Empty(t, result.BuyerBids)
}

type assertError struct{}

func (assertError) Error() string { return "simulated buyer failure" }
