// Package auctionresult implements ResponseBuilder (spec.md §4.6): turning
// the scoring outcome into an AuctionResult, then encoding, compressing,
// padding, and encrypting it for the wire.
package auctionresult

import (
	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/codec"
	"github.com/adxcore/sfe/internal/ohttp"
)

// MinAuctionResultBytes is the floor every padded response meets, even a
// chaff response smaller than it, per spec.md §4.6.
const MinAuctionResultBytes = 256

// Builder assembles and seals the outbound SelectAdResponse.
type Builder struct {
	Crypto *ohttp.Crypto
}

// BiddingGroups computes spec.md §4.5 invariant 6: buyer -> indices (in
// BuyerInput order) of interest groups that produced a bid greater than
// zero in the scored bid set.
func BiddingGroups(adBids []adxtypes.AdWithBidMetadata, buyerInputs map[string]adxtypes.BuyerInput) adxtypes.BiddingGroupMap {
	groups := adxtypes.BiddingGroupMap{}
	for _, bid := range adBids {
		if bid.Bid <= 0 {
			continue
		}
		input, ok := buyerInputs[bid.InterestGroupOwner]
		if !ok {
			continue
		}
		for i, ig := range input.InterestGroups {
			if ig.Name == bid.InterestGroupName {
				groups[bid.InterestGroupOwner] = append(groups[bid.InterestGroupOwner], i)
				break
			}
		}
	}
	return groups
}

// BuildChaff returns the empty placeholder result sent when no bid
// survives scoring, per spec.md §4.6.
func BuildChaff() adxtypes.AuctionResult {
	return adxtypes.AuctionResult{IsChaff: true}
}

// BuildWinner assembles the non-chaff AuctionResult from the scoring
// backend's chosen AdScore, per spec.md §4.5/§4.6.
func BuildWinner(score *adxtypes.AdScore, groups adxtypes.BiddingGroupMap) adxtypes.AuctionResult {
	return adxtypes.AuctionResult{
		AdRenderURL:         score.RenderURL,
		Score:               score.Desirability,
		ComponentRenderURLs: score.ComponentRenders,
		InterestGroupName:   score.InterestGroupName,
		InterestGroupOwner:  score.InterestGroupOwner,
		Bid:                 score.BuyerBid,
		BiddingGroups:       groups,
	}
}

// BuildError attaches a client-visible error to the result, per spec.md §7.
func BuildError(code int, message string) adxtypes.AuctionResult {
	return adxtypes.AuctionResult{
		IsChaff: true,
		Error:   &adxtypes.AuctionResultError{Code: code, Message: message},
	}
}

// EncodeCompressPad implements spec.md §4.6's "Encode -> GzipCompress ->
// pad to max(next_pow2(len), MIN_AUCTION_RESULT_BYTES)" pipeline, stopping
// short of encryption so tests can inspect the plaintext frame. The
// EnableEncryption=false path does not call it; it uses Plaintext.
func EncodeCompressPad(result adxtypes.AuctionResult, clientType adxtypes.ClientType) ([]byte, error) {
	encoded, err := codec.EncodeAuctionResult(result, clientType)
	if err != nil {
		return nil, err
	}
	compressed, err := codec.GzipCompress(encoded)
	if err != nil {
		return nil, err
	}
	frame := codec.Frame{CompressionType: codec.CompressionGzip, Payload: compressed}.Encode()

	target := codec.NextPowerOfTwo(len(frame))
	if target < MinAuctionResultBytes {
		target = MinAuctionResultBytes
	}
	return codec.PadTo(frame, target), nil
}

// Seal runs EncodeCompressPad then encrypts the result with ctx, producing
// the ciphertext half of spec.md §6's SelectAdResponse.
func (b *Builder) Seal(result adxtypes.AuctionResult, clientType adxtypes.ClientType, ctx *ohttp.Context) (adxtypes.SelectAdResponse, error) {
	padded, err := EncodeCompressPad(result, clientType)
	if err != nil {
		return adxtypes.SelectAdResponse{}, err
	}
	ciphertext, err := b.Crypto.Encrypt(padded, ctx)
	if err != nil {
		return adxtypes.SelectAdResponse{}, err
	}
	return adxtypes.SelectAdResponse{AuctionResultCiphertext: ciphertext}, nil
}

// Plaintext builds the unencrypted response, used when EnableEncryption is
// false (spec.md §6).
func Plaintext(result adxtypes.AuctionResult) adxtypes.SelectAdResponse {
	r := result
	return adxtypes.SelectAdResponse{RawResult: &r}
}
