// Package reactor implements ReactorFSM (spec.md §4, §5, §9): the state
// machine that glues RequestCrypto, InputDecoder, BuyerFanout,
// ScoringStage, DebugReporter, and ResponseBuilder together into a single
// SelectAd call.
//
// The original reactor was driven by async gRPC closures: each RPC
// completion invoked a callback that mutated shared state under a mutex
// and, once a pending-count reached zero, advanced to the next stage
// in-place. That shape doesn't translate to idiomatic Go — here each
// stage's blocking work (BuyerFanout.Run, ScoringStage.ScoreAds) is a
// plain function call on the calling goroutine, and Execute is itself the
// "closure" driving state forward. What does carry over is the original's
// OnCancel/single-dispatch guarantee: a Reactor completes its response
// exactly once, enforced with a mutex-guarded completion flag rather than
// a cancellation flag checked by every callback.
package reactor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/auctionresult"
	"github.com/adxcore/sfe/internal/codec"
	"github.com/adxcore/sfe/internal/debugreport"
	"github.com/adxcore/sfe/internal/erroracc"
	"github.com/adxcore/sfe/internal/errortypes"
	"github.com/adxcore/sfe/internal/fanout"
	"github.com/adxcore/sfe/internal/metrics"
	"github.com/adxcore/sfe/internal/ohttp"
	"github.com/adxcore/sfe/internal/scoring"
)

// State names one step of the SelectAd pipeline, in the order Execute
// advances through them.
type State int

const (
	StateInit State = iota
	StateDecrypting
	StateValidating
	StateFetchingBids
	StateScoring
	StateBuildingResponse
	StateEncrypting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateDecrypting:
		return "DECRYPTING"
	case StateValidating:
		return "VALIDATING"
	case StateFetchingBids:
		return "FETCHING_BIDS"
	case StateScoring:
		return "SCORING"
	case StateBuildingResponse:
		return "BUILDING_RESPONSE"
	case StateEncrypting:
		return "ENCRYPTING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// BenchmarkLogger brackets a named stage of work, returning a function to
// call at its end. Per spec.md §9 supplemented feature 1, this is a
// capability the real binary turns on via configuration; tests and
// low-overhead deployments use NoOpBenchmarkLogger.
type BenchmarkLogger interface {
	Begin(stage string) func()
}

// NoOpBenchmarkLogger discards timing entirely.
type NoOpBenchmarkLogger struct{}

func (NoOpBenchmarkLogger) Begin(string) func() { return func() {} }

// GlogBenchmarkLogger reports stage latency at verbosity 2.
type GlogBenchmarkLogger struct{}

func (GlogBenchmarkLogger) Begin(stage string) func() {
	start := time.Now()
	return func() {
		glog.V(2).Infof("stage %s took %s", stage, time.Since(start))
	}
}

// Config carries the deployment-level knobs the reactor needs per
// request, sourced from internal/config.
type Config struct {
	SellerOriginDomain string
	EnableEncryption    bool
	BuyerTimeout        time.Duration
	SignalsTimeout      time.Duration
	ScoreAdsTimeout     time.Duration
}

// Reactor wires every collaborator spec.md §4 names into one SelectAd
// request lifecycle. A Reactor value is single-use: construct one per
// inbound request and call Execute exactly once.
type Reactor struct {
	Crypto   *ohttp.Crypto
	Decoder  *codec.Decoder
	Fanout   *fanout.Fanout
	Scoring  *scoring.Stage
	Builder  *auctionresult.Builder
	Reporter *debugreport.Reporter
	Metrics  metrics.Sink
	Benchmark BenchmarkLogger

	Config Config

	completeMu sync.Mutex
	completed  bool
	done       chan struct{}
	state      State
}

// New constructs a Reactor ready to run a single SelectAd request.
func New(crypto *ohttp.Crypto, decoder *codec.Decoder, fo *fanout.Fanout, sc *scoring.Stage, builder *auctionresult.Builder, reporter *debugreport.Reporter, sink metrics.Sink, cfg Config) *Reactor {
	return &Reactor{
		Crypto:    crypto,
		Decoder:   decoder,
		Fanout:    fo,
		Scoring:   sc,
		Builder:   builder,
		Reporter:  reporter,
		Metrics:   sink,
		Benchmark: NoOpBenchmarkLogger{},
		Config:    cfg,
		done:      make(chan struct{}),
	}
}

func (r *Reactor) setState(s State) {
	r.state = s
}

// State reports the reactor's current pipeline step.
func (r *Reactor) State() State { return r.state }

// Done closes once the reactor has completed, for callers that want to
// observe completion without holding onto Execute's return value (e.g. a
// transport layer racing it against client disconnect).
func (r *Reactor) Done() <-chan struct{} { return r.done }

// complete marks the reactor DONE and guards against a second completion,
// mirroring the original OnCancel contract: whichever call reaches here
// first wins, and any later attempt is discarded rather than double
// sending a response.
func (r *Reactor) complete(resp adxtypes.SelectAdResponse, err error) (adxtypes.SelectAdResponse, error) {
	r.completeMu.Lock()
	defer r.completeMu.Unlock()
	if r.completed {
		return adxtypes.SelectAdResponse{}, &errortypes.Internal{Message: "reactor already completed, discarding late result"}
	}
	r.completed = true
	r.setState(StateDone)
	close(r.done)
	return resp, err
}

func statusFor(err error) error {
	switch errortypes.DecodeError(err) {
	case errortypes.BadInputCode:
		return status.Error(codes.InvalidArgument, err.Error())
	case errortypes.TimeoutCode:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errortypes.BadServerResponseCode, errortypes.FailedToRequestBidsCode, errortypes.InternalCode:
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Execute runs the full pipeline for req, whose ciphertext is the OHTTP
// envelope described in spec.md §6, and returns either a sealed
// SelectAdResponse or a terminal, AD_SERVER_VISIBLE error (spec.md §4.3).
func (r *Reactor) Execute(ctx context.Context, req adxtypes.SelectAdRequest) (adxtypes.SelectAdResponse, error) {
	acc := erroracc.New()

	r.setState(StateDecrypting)
	end := r.Benchmark.Begin("decrypt")
	plaintext, cryptoCtx, err := r.decrypt(req.ProtectedAudienceCiphertext)
	end()
	if err != nil {
		return r.complete(adxtypes.SelectAdResponse{}, statusFor(err))
	}

	r.setState(StateValidating)
	validateSelectAdRequest(req.AuctionConfig, req.ClientType, acc)
	if acc.HasVisible(erroracc.AdServerVisible) {
		// Per spec.md §4.3/§7/§8, a malformed auction config is terminal and
		// ad-server-visible: no fan-out, no scoring.
		return r.complete(adxtypes.SelectAdResponse{}, status.Error(codes.InvalidArgument, acc.Drain(erroracc.AdServerVisible)))
	}

	paInput, buyerInputs, err := r.decodeAndValidate(req, plaintext, acc)
	if err != nil {
		return r.complete(adxtypes.SelectAdResponse{}, statusFor(err))
	}

	r.setState(StateFetchingBids)
	end = r.Benchmark.Begin("fanout")
	fanoutResult := r.Fanout.Run(ctx, fanout.Request{
		AuctionConfig:        req.AuctionConfig,
		BuyerInputs:          buyerInputs,
		PublisherName:        paInput.PublisherName,
		EnableDebugReporting: paInput.EnableDebugReporting,
		IsChaff:              len(buyerInputs) == 0,
		GenerationID:         paInput.GenerationID,
	})
	end()

	var adBids []adxtypes.AdWithBidMetadata
	var highScore *adxtypes.AdScore

	if len(fanoutResult.BuyerBids) == 0 {
		// No buyer returned a bid: the original bypasses FetchScoringSignals
		// and ScoreAds entirely and completes with chaff immediately.
		glog.V(1).Infof("generation %s: no buyer bids, completing with chaff", paInput.GenerationID)
	} else {
		r.setState(StateScoring)
		isBrowser := req.ClientType == adxtypes.ClientBrowser

		end = r.Benchmark.Begin("scoring_signals")
		signals := r.Scoring.FetchSignals(ctx, fanoutResult.BuyerBids, r.Config.SignalsTimeout)
		end()
		if r.Metrics != nil {
			r.Metrics.RecordScoringSignalsFetch(nil)
		}

		scoreReq := r.Scoring.BuildRequest(
			fanoutResult.BuyerBids, buyerInputs, isBrowser,
			req.AuctionConfig.AuctionSignals, req.AuctionConfig.SellerSignals, paInput.PublisherName,
			paInput.EnableDebugReporting, signals, paInput.GenerationID, req.AuctionConfig.SellerDebugID,
		)
		adBids = scoreReq.AdBids

		end = r.Benchmark.Begin("score_ads")
		scoreResp, err := r.Scoring.ScoreAds(ctx, scoreReq, r.Config.ScoreAdsTimeout)
		end()
		if r.Metrics != nil {
			r.Metrics.RecordScoreAds(err)
		}
		if err != nil {
			return r.complete(adxtypes.SelectAdResponse{}, statusFor(err))
		}

		highScore = scoring.HighScore(scoreResp)
	}

	r.setState(StateBuildingResponse)
	var result adxtypes.AuctionResult
	if highScore == nil {
		result = auctionresult.BuildChaff()
		if r.Metrics != nil {
			r.Metrics.RecordAuctionOutcome(true)
		}
	} else {
		groups := auctionresult.BiddingGroups(adBids, buyerInputs)
		result = auctionresult.BuildWinner(highScore, groups)
		if r.Metrics != nil {
			r.Metrics.RecordAuctionOutcome(false)
		}
	}
	if acc.HasVisible(erroracc.ClientVisible) {
		result.Error = &adxtypes.AuctionResultError{Code: erroracc.ClientSideCode, Message: acc.Drain(erroracc.ClientVisible)}
	}

	if r.Reporter != nil {
		r.Reporter.Report(context.Background(), adBids, highScore, paInput.EnableDebugReporting)
	}

	r.setState(StateEncrypting)
	if !r.Config.EnableEncryption {
		return r.complete(auctionresult.Plaintext(result), nil)
	}
	resp, err := r.Builder.Seal(result, req.ClientType, cryptoCtx)
	if err != nil {
		return r.complete(adxtypes.SelectAdResponse{}, statusFor(err))
	}
	return r.complete(resp, nil)
}

func (r *Reactor) decrypt(ciphertext []byte) ([]byte, *ohttp.Context, error) {
	if !r.Config.EnableEncryption {
		return ciphertext, nil, nil
	}
	return r.Crypto.Decrypt(ciphertext)
}

func (r *Reactor) decodeAndValidate(req adxtypes.SelectAdRequest, plaintext []byte, acc *erroracc.Accumulator) (adxtypes.ProtectedAudienceInput, map[string]adxtypes.BuyerInput, error) {
	payload := plaintext
	if len(plaintext) >= 5 {
		if frame, err := codec.DecodeFrame(plaintext); err == nil {
			payload = frame.Payload
			if frame.CompressionType == codec.CompressionGzip {
				if decompressed, err := codec.GunzipDecompress(payload); err == nil {
					payload = decompressed
				}
			}
		}
	}

	paInput, err := r.Decoder.DecodeProtectedAudienceInput(payload, req.ClientType)
	if err != nil {
		return adxtypes.ProtectedAudienceInput{}, nil, &errortypes.BadInput{Message: fmt.Sprintf("malformed protected audience input: %v", err)}
	}

	if err := validateSellerDomain(r.Config.SellerOriginDomain, req.AuctionConfig.Seller); err != nil {
		return adxtypes.ProtectedAudienceInput{}, nil, err
	}

	buyerInputs, err := r.Decoder.DecodeBuyerInputs(paInput.EncodedBuyerInputs, req.ClientType, acc)
	if err != nil {
		return adxtypes.ProtectedAudienceInput{}, nil, &errortypes.BadInput{Message: err.Error()}
	}

	// Only check mandatory fields if decoding didn't already report a
	// problem: a buyer input that failed to decode has nothing more useful
	// to say about missing interest groups.
	if !acc.HasVisible(erroracc.ClientVisible) {
		validateProtectedAudienceInput(paInput, buyerInputs, acc)
	}

	return paInput, buyerInputs, nil
}

// validateSelectAdRequest implements MayPopulateAdServerVisibleErrors
// (spec.md §7/§8): malformed ad-server-supplied configuration is reported
// as AD_SERVER_VISIBLE and is terminal, checked before any fan-out.
func validateSelectAdRequest(cfg adxtypes.AuctionConfig, clientType adxtypes.ClientType, acc *erroracc.Accumulator) {
	if cfg.SellerSignals == "" {
		acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, "seller signals is empty")
	}
	if cfg.AuctionSignals == "" {
		acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, "auction signals is empty")
	}
	if len(cfg.BuyerList) == 0 {
		acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, "buyer list is empty")
	}
	if cfg.Seller == "" {
		acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, "seller is empty")
	}

	buyers := make([]string, 0, len(cfg.PerBuyerConfig))
	for buyer := range cfg.PerBuyerConfig {
		buyers = append(buyers, buyer)
	}
	sort.Strings(buyers)
	for _, buyer := range buyers {
		if buyer == "" {
			acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, "per-buyer config has an empty buyer")
		}
		if cfg.PerBuyerConfig[buyer].BuyerSignals == "" {
			acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, fmt.Sprintf("buyer signals is empty for buyer %q", buyer))
		}
	}

	if clientType == adxtypes.ClientUnknown {
		acc.Report(erroracc.AdServerVisible, erroracc.ClientSideCode, "client type is unknown")
	}
}

// validateProtectedAudienceInput implements ValidateProtectedAudienceInput
// (spec.md §4.8): a decoded input missing mandatory fields is reported as
// CLIENT_VISIBLE, surfaced in the envelope's error field rather than
// failing the request outright.
func validateProtectedAudienceInput(paInput adxtypes.ProtectedAudienceInput, buyerInputs map[string]adxtypes.BuyerInput, acc *erroracc.Accumulator) {
	if paInput.GenerationID == "" {
		acc.Report(erroracc.ClientVisible, erroracc.ClientSideCode, "generation id is missing")
	}
	if paInput.PublisherName == "" {
		acc.Report(erroracc.ClientVisible, erroracc.ClientSideCode, "publisher name is missing")
	}

	if len(buyerInputs) == 0 {
		acc.Report(erroracc.ClientVisible, erroracc.ClientSideCode, "buyer inputs are missing")
		return
	}

	buyers := make([]string, 0, len(buyerInputs))
	for buyer := range buyerInputs {
		buyers = append(buyers, buyer)
	}
	sort.Strings(buyers)

	anyValid := false
	var observed []string
	for _, buyer := range buyers {
		bad := false
		if buyer == "" {
			observed = append(observed, "empty interest group owner")
			bad = true
		}
		if len(buyerInputs[buyer].InterestGroups) == 0 {
			observed = append(observed, fmt.Sprintf("missing interest groups for buyer %q", buyer))
			bad = true
		}
		if !bad {
			anyValid = true
		}
	}

	if anyValid {
		// At least one buyer input is usable; log the rest instead of
		// reporting them so the request isn't penalized for other buyers'
		// mistakes.
		for _, o := range observed {
			glog.V(2).Info(o)
		}
		return
	}
	if len(observed) > 0 {
		acc.Report(erroracc.ClientVisible, erroracc.ClientSideCode, fmt.Sprintf("no usable buyer input: %s", strings.Join(observed, "; ")))
	}
}

// validateSellerDomain implements the ValidateProtectedAudienceInput
// seller check (spec.md §4.3): a configured origin that doesn't match the
// requested seller is a terminal, AD_SERVER_VISIBLE error. An empty
// configured origin disables the check (e.g. in tests).
func validateSellerDomain(configured, requested string) error {
	if configured == "" {
		return nil
	}
	if configured != requested {
		return &errortypes.BadInput{Message: fmt.Sprintf("seller %q does not match configured origin %q", requested, configured)}
	}
	return nil
}
