// Package adxtypes holds the request-scoped entities owned by a single
// reactor instance (spec.md §3). None of these types outlive the reactor
// that constructs them.
package adxtypes

// ClientType tags the wire format the caller used to encode its payload.
type ClientType int

const (
	ClientUnknown ClientType = iota
	ClientBrowser
	ClientApp
)

func (c ClientType) String() string {
	switch c {
	case ClientBrowser:
		return "BROWSER"
	case ClientApp:
		return "APP"
	default:
		return "UNKNOWN"
	}
}

// PerBuyerConfig carries per-buyer overrides from the auction config.
type PerBuyerConfig struct {
	BuyerSignals   string
	BuyerDebugID   string
	BuyerTimeoutMS int
}

// AuctionConfig is the ad-server-supplied configuration for one auction.
type AuctionConfig struct {
	Seller         string
	SellerSignals  string
	AuctionSignals string
	BuyerList      []string
	PerBuyerConfig map[string]PerBuyerConfig
	SellerDebugID  string
	BuyerTimeoutMS int
}

// SelectAdRequest is the immutable inbound request (spec.md §3).
type SelectAdRequest struct {
	AuctionConfig               AuctionConfig
	ClientType                  ClientType
	ProtectedAudienceCiphertext []byte
}

// BrowserSignals are interest-group signals only meaningful for BROWSER
// clients (spec.md §4.5 join_count/recency augmentation).
type BrowserSignals struct {
	JoinCount int
	Recency   int64
}

// InterestGroup is one entry of a buyer's BuyerInput. Order is significant:
// it defines the index space the bidding-group output reports against.
type InterestGroup struct {
	Name           string
	BrowserSignals BrowserSignals
}

// BuyerInput is one buyer's ordered interest-group vector.
type BuyerInput struct {
	InterestGroups []InterestGroup
}

// ProtectedAudienceInput is the decrypted, decoded request body.
type ProtectedAudienceInput struct {
	GenerationID         string
	PublisherName        string
	EnableDebugReporting bool
	// EncodedBuyerInputs maps buyer-origin to the still-encoded per-buyer
	// blob; InputDecoder decodes each lazily per spec.md §4.2.
	EncodedBuyerInputs map[string][]byte
}

// DebugReportURLs carries the win/loss beacon URLs a buyer attached to one
// bid, if any.
type DebugReportURLs struct {
	AuctionDebugWinURL  string
	AuctionDebugLossURL string
}

// AdWithBid is one bid a buyer returned for one of its interest groups.
type AdWithBid struct {
	Ad                    string
	Bid                   float64
	Render                string
	AllowComponentAuction bool
	AdComponentRender     []string
	InterestGroupName     string
	AdCost                float64
	ModelingSignals       int32
	DebugReportURLs       *DebugReportURLs
}

// GetBidsResponse is what a BuyerBidClient returns for one buyer.
type GetBidsResponse struct {
	Bids []AdWithBid
}

// AdWithBidMetadata is an AdWithBid augmented with buyer-identity and (for
// BROWSER clients only) join-count/recency metadata, ready for scoring
// (spec.md §4.5).
type AdWithBidMetadata struct {
	Ad                    string
	Bid                   float64
	Render                string
	AllowComponentAuction bool
	AdComponentRender     []string
	InterestGroupName     string
	InterestGroupOwner    string
	AdCost                float64
	ModelingSignals       int32
	JoinCount             int
	Recency               int64
	DebugReportURLs       *DebugReportURLs
}

// ScoreAdsRawRequest is the single request sent to the scoring backend.
type ScoreAdsRawRequest struct {
	AdBids               []AdWithBidMetadata
	AuctionSignals       string
	SellerSignals        string
	PublisherHostname    string
	EnableDebugReporting bool
	ScoringSignals       []byte
	GenerationID         string
	SellerDebugID        string
}

// AdScore is the scoring backend's chosen winner, if any.
type AdScore struct {
	RenderURL          string
	Desirability        float64
	BuyerBid            float64
	InterestGroupName   string
	InterestGroupOwner  string
	ComponentRenders    []string
	DebugReportURLs     *DebugReportURLs
}

// ScoreAdsResponse wraps the scoring backend's reply.
type ScoreAdsResponse struct {
	AdScore *AdScore
}

// BiddingGroupMap maps buyer to the positional indices (by input order) of
// its interest groups that produced a positive bid.
type BiddingGroupMap map[string][]int

// AuctionResultError is the client-visible error surfaced inside the
// encrypted envelope.
type AuctionResultError struct {
	Code    int
	Message string
}

// AuctionResult is the (possibly chaff) payload the response is built from.
type AuctionResult struct {
	IsChaff             bool
	AdRenderURL         string
	Score               float64
	ComponentRenderURLs []string
	InterestGroupName   string
	InterestGroupOwner  string
	Bid                 float64
	BiddingGroups       BiddingGroupMap
	Error               *AuctionResultError
}

// SelectAdResponse is the outbound reply. Exactly one of the two fields is
// populated, matching spec.md §6: ciphertext when encryption is enabled,
// the raw result otherwise.
type SelectAdResponse struct {
	AuctionResultCiphertext []byte
	RawResult               *AuctionResult
}
