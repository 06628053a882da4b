package codec

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/adxcore/sfe/internal/adxtypes"
)

// cborBrowserSignals and the rest of this file mirror spec.md §4.2/§6's
// BROWSER wire shapes, field-for-field, using CBOR map keys matching the
// Protected Audience API's own naming.
type cborBrowserSignals struct {
	JoinCount int64 `cbor:"joinCount"`
	Recency   int64 `cbor:"recency"`
}

type cborInterestGroup struct {
	Name           string             `cbor:"name"`
	BrowserSignals cborBrowserSignals `cbor:"browserSignals"`
}

type cborBuyerInput struct {
	InterestGroups []cborInterestGroup `cbor:"interestGroups"`
}

type cborProtectedAudienceInput struct {
	GenerationID         string            `cbor:"generationId"`
	PublisherName        string            `cbor:"publisherName"`
	EnableDebugReporting bool              `cbor:"enableDebugReporting"`
	BuyerInput           map[string][]byte `cbor:"buyerInput"`
}

// DecodeBuyerInputCBOR decodes one buyer's CBOR-encoded BuyerInput, per
// spec.md §4.2's BROWSER path.
func DecodeBuyerInputCBOR(raw []byte) (adxtypes.BuyerInput, error) {
	var in cborBuyerInput
	if err := cbor.Unmarshal(raw, &in); err != nil {
		return adxtypes.BuyerInput{}, err
	}
	out := adxtypes.BuyerInput{InterestGroups: make([]adxtypes.InterestGroup, 0, len(in.InterestGroups))}
	for _, ig := range in.InterestGroups {
		out.InterestGroups = append(out.InterestGroups, adxtypes.InterestGroup{
			Name: ig.Name,
			BrowserSignals: adxtypes.BrowserSignals{
				JoinCount: int(ig.BrowserSignals.JoinCount),
				Recency:   ig.BrowserSignals.Recency,
			},
		})
	}
	return out, nil
}

// DecodeProtectedAudienceInputCBOR decodes the outer ProtectedAudienceInput
// envelope for a BROWSER client. Per-buyer inputs are left encoded; the
// caller decodes each with DecodeBuyerInputCBOR so a single malformed
// buyer can be isolated under the fail_fast flag (spec.md §4.2).
func DecodeProtectedAudienceInputCBOR(raw []byte) (adxtypes.ProtectedAudienceInput, error) {
	var in cborProtectedAudienceInput
	if err := cbor.Unmarshal(raw, &in); err != nil {
		return adxtypes.ProtectedAudienceInput{}, err
	}
	return adxtypes.ProtectedAudienceInput{
		GenerationID:         in.GenerationID,
		PublisherName:        in.PublisherName,
		EnableDebugReporting: in.EnableDebugReporting,
		EncodedBuyerInputs:   in.BuyerInput,
	}, nil
}

type cborAuctionResultError struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message"`
}

type cborAuctionResult struct {
	IsChaff             bool                    `cbor:"isChaff"`
	AdRenderURL         string                  `cbor:"adRenderUrl,omitempty"`
	Score               float64                 `cbor:"score,omitempty"`
	ComponentRenderURLs []string                `cbor:"componentRenderUrls,omitempty"`
	InterestGroupName   string                  `cbor:"interestGroupName,omitempty"`
	InterestGroupOwner  string                  `cbor:"interestGroupOwner,omitempty"`
	Bid                 float64                 `cbor:"bid,omitempty"`
	BiddingGroups       map[string][]int        `cbor:"biddingGroups,omitempty"`
	Error               *cborAuctionResultError `cbor:"error,omitempty"`
}

// EncodeAuctionResultCBOR encodes the final AuctionResult for a BROWSER
// client, per spec.md §4.6/§6.
func EncodeAuctionResultCBOR(result adxtypes.AuctionResult) ([]byte, error) {
	out := cborAuctionResult{
		IsChaff:             result.IsChaff,
		AdRenderURL:         result.AdRenderURL,
		Score:               result.Score,
		ComponentRenderURLs: result.ComponentRenderURLs,
		InterestGroupName:   result.InterestGroupName,
		InterestGroupOwner:  result.InterestGroupOwner,
		Bid:                 result.Bid,
		BiddingGroups:       result.BiddingGroups,
	}
	if result.Error != nil {
		out.Error = &cborAuctionResultError{Code: result.Error.Code, Message: result.Error.Message}
	}
	return cbor.Marshal(out)
}
