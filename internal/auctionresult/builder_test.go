package auctionresult

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/codec"
	"github.com/adxcore/sfe/internal/keystore"
	"github.com/adxcore/sfe/internal/ohttp"
)

func TestBiddingGroupsOnlyIncludesPositiveBids(t *testing.T) {
	buyerInputs := map[string]adxtypes.BuyerInput{
		"buyerA": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}, {Name: "hats"}}},
	}
	adBids := []adxtypes.AdWithBidMetadata{
		{InterestGroupOwner: "buyerA", InterestGroupName: "shoes", Bid: 1.0},
		{InterestGroupOwner: "buyerA", InterestGroupName: "hats", Bid: 0},
	}
	groups := BiddingGroups(adBids, buyerInputs)
	assert.Equal(t, adxtypes.BiddingGroupMap{"buyerA": {0}}, groups)
}

func TestBiddingGroupsEmptyWhenNoPositiveBids(t *testing.T) {
	buyerInputs := map[string]adxtypes.BuyerInput{
		"buyerA": {InterestGroups: []adxtypes.InterestGroup{{Name: "shoes"}}},
	}
	adBids := []adxtypes.AdWithBidMetadata{
		{InterestGroupOwner: "buyerA", InterestGroupName: "shoes", Bid: 0},
	}
	groups := BiddingGroups(adBids, buyerInputs)
	assert.Empty(t, groups)
}

func TestEncodeCompressPadMeetsMinimumSize(t *testing.T) {
	padded, err := EncodeCompressPad(BuildChaff(), adxtypes.ClientBrowser)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(padded), MinAuctionResultBytes)
	assert.Equal(t, codec.NextPowerOfTwo(len(padded)), len(padded))
}

func TestEncodeCompressPadIsDecodable(t *testing.T) {
	result := BuildWinner(&adxtypes.AdScore{
		RenderURL:          "https://ad.example/1",
		Desirability:       3.0,
		BuyerBid:           1.5,
		InterestGroupName:  "shoes",
		InterestGroupOwner: "buyerA",
	}, adxtypes.BiddingGroupMap{"buyerA": {0}})

	padded, err := EncodeCompressPad(result, adxtypes.ClientBrowser)
	require.NoError(t, err)

	frame, err := codec.DecodeFrame(padded)
	require.NoError(t, err)
	assert.Equal(t, codec.CompressionGzip, frame.CompressionType)

	decompressed, err := codec.GunzipDecompress(frame.Payload)
	require.NoError(t, err)
	assert.NotEmpty(t, decompressed)
}

func TestSealEncryptsAgainstTheRequestContext(t *testing.T) {
	key := keystore.PrivateKey{KeyID: "1", Secret: []byte("a-fixed-secret-for-builder-tests!")}
	store := keystore.NewInMemory(key)
	crypto := ohttp.New(store)

	encapsulated, err := ohttp.SealForTest([]byte("plaintext request"), key)
	require.NoError(t, err)
	_, ctx, err := crypto.Decrypt(encapsulated)
	require.NoError(t, err)

	builder := &Builder{Crypto: crypto}
	resp, err := builder.Seal(BuildChaff(), adxtypes.ClientBrowser, ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AuctionResultCiphertext)
	assert.Nil(t, resp.RawResult)
}

func TestPlaintextSkipsEncryption(t *testing.T) {
	result := BuildChaff()
	resp := Plaintext(result)
	require.NotNil(t, resp.RawResult)
	assert.True(t, resp.RawResult.IsChaff)
	assert.Nil(t, resp.AuctionResultCiphertext)
}

func TestBuildErrorMarksChaff(t *testing.T) {
	result := BuildError(3, "bad request")
	assert.True(t, result.IsChaff)
	require.NotNil(t, result.Error)
	assert.Equal(t, "bad request", result.Error.Message)
}
