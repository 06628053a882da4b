package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxamacker/cbor/v2"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/erroracc"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{CompressionType: CompressionGzip, Payload: []byte("abc")}
	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2})
	require.Error(t, err)
}

func TestDecodeFrameTruncatedPayload(t *testing.T) {
	f := Frame{CompressionType: CompressionNone, Payload: []byte("hello")}
	encoded := f.Encode()
	_, err := DecodeFrame(encoded[:len(encoded)-2])
	require.Error(t, err)
}

func TestDecodeBuyerInputCBOR(t *testing.T) {
	raw, err := cbor.Marshal(map[string]interface{}{
		"interestGroups": []interface{}{
			map[string]interface{}{
				"name": "shoes",
				"browserSignals": map[string]interface{}{
					"joinCount": 3,
					"recency":   100,
				},
			},
		},
	})
	require.NoError(t, err)

	input, err := DecodeBuyerInputCBOR(raw)
	require.NoError(t, err)
	require.Len(t, input.InterestGroups, 1)
	assert.Equal(t, "shoes", input.InterestGroups[0].Name)
	assert.Equal(t, 3, input.InterestGroups[0].BrowserSignals.JoinCount)
	assert.Equal(t, int64(100), input.InterestGroups[0].BrowserSignals.Recency)
}

func TestDecodeBuyerInputsFailFastSkipsByDefault(t *testing.T) {
	d := &Decoder{}
	acc := erroracc.New()
	encoded := map[string][]byte{
		"good": mustEncodeBuyerInputCBOR(t, adxtypes.BuyerInput{InterestGroups: []adxtypes.InterestGroup{{Name: "a"}}}),
		"bad":  []byte("not cbor"),
	}
	out, err := d.DecodeBuyerInputs(encoded, adxtypes.ClientBrowser, acc)
	require.NoError(t, err)
	assert.Contains(t, out, "good")
	assert.NotContains(t, out, "bad")
	assert.True(t, acc.HasVisible(erroracc.ClientVisible))
}

func TestDecodeBuyerInputsFailFastAborts(t *testing.T) {
	d := &Decoder{FailFast: true}
	acc := erroracc.New()
	encoded := map[string][]byte{
		"bad": []byte("not cbor"),
	}
	_, err := d.DecodeBuyerInputs(encoded, adxtypes.ClientBrowser, acc)
	require.Error(t, err)
}

func TestAppProtoRoundTrip(t *testing.T) {
	input := adxtypes.BuyerInput{
		InterestGroups: []adxtypes.InterestGroup{
			{Name: "shoes", BrowserSignals: adxtypes.BrowserSignals{JoinCount: 5, Recency: 42}},
			{Name: "hats"},
		},
	}
	encoded, err := encodeBuyerInputProtoForTest(input)
	require.NoError(t, err)

	decoded, err := DecodeBuyerInputProto(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.InterestGroups, 2)
	assert.Equal(t, "shoes", decoded.InterestGroups[0].Name)
	assert.Equal(t, 5, decoded.InterestGroups[0].BrowserSignals.JoinCount)
	assert.Equal(t, int64(42), decoded.InterestGroups[0].BrowserSignals.Recency)
	assert.Equal(t, "hats", decoded.InterestGroups[1].Name)
}

func TestEncodeAuctionResultProtoChaff(t *testing.T) {
	encoded, err := EncodeAuctionResultProto(adxtypes.AuctionResult{IsChaff: true})
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}

func TestEncodeAuctionResultCBORWithWinner(t *testing.T) {
	result := adxtypes.AuctionResult{
		AdRenderURL:        "https://ad.example/1",
		Score:              1.5,
		InterestGroupName:  "shoes",
		InterestGroupOwner: "buyerA",
		Bid:                2.0,
		BiddingGroups:      adxtypes.BiddingGroupMap{"buyerA": {0}},
	}
	encoded, err := EncodeAuctionResultCBOR(result)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}

func TestGzipRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	compressed, err := GzipCompress(payload)
	require.NoError(t, err)
	decompressed, err := GunzipDecompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128}
	for in, want := range cases {
		assert.Equal(t, want, NextPowerOfTwo(in), "input %d", in)
	}
}

func TestPadTo(t *testing.T) {
	padded := PadTo([]byte("ab"), 8)
	assert.Len(t, padded, 8)
	assert.Equal(t, byte('a'), padded[0])
	assert.Equal(t, byte('b'), padded[1])
	assert.Equal(t, byte(0), padded[7])
}

func mustEncodeBuyerInputCBOR(t *testing.T, input adxtypes.BuyerInput) []byte {
	t.Helper()
	groups := make([]map[string]interface{}, 0, len(input.InterestGroups))
	for _, ig := range input.InterestGroups {
		groups = append(groups, map[string]interface{}{
			"name": ig.Name,
			"browserSignals": map[string]interface{}{
				"joinCount": ig.BrowserSignals.JoinCount,
				"recency":   ig.BrowserSignals.Recency,
			},
		})
	}
	raw, err := cbor.Marshal(map[string]interface{}{"interestGroups": groups})
	require.NoError(t, err)
	return raw
}

func encodeBuyerInputProtoForTest(input adxtypes.BuyerInput) ([]byte, error) {
	var b []byte
	for _, ig := range input.InterestGroups {
		var group []byte
		group = append(group, tagBytes(fieldInterestGroupName)...)
		group = appendLenPrefixed(group, []byte(ig.Name))

		var signals []byte
		signals = append(signals, tagVarint(fieldBrowserSignalsJoinCount)...)
		signals = appendVarintRaw(signals, uint64(ig.BrowserSignals.JoinCount))
		signals = append(signals, tagVarint(fieldBrowserSignalsRecency)...)
		signals = appendVarintRaw(signals, uint64(ig.BrowserSignals.Recency))

		group = append(group, tagBytes(fieldInterestGroupBrowserSignals)...)
		group = appendLenPrefixed(group, signals)

		b = append(b, tagBytes(fieldBuyerInputInterestGroups)...)
		b = appendLenPrefixed(b, group)
	}
	return b, nil
}

func tagBytes(field int) []byte  { return tag(field, 2) }
func tagVarint(field int) []byte { return tag(field, 0) }

func tag(field, wireType int) []byte {
	v := uint64(field)<<3 | uint64(wireType)
	return varint(v)
}

func appendVarintRaw(b []byte, v uint64) []byte {
	return append(b, varint(v)...)
}

func appendLenPrefixed(b, payload []byte) []byte {
	b = append(b, varint(uint64(len(payload)))...)
	return append(b, payload...)
}

func varint(v uint64) []byte {
	var out []byte
	for v >= 0x80 {
		out = append(out, byte(v)|0x80)
		v >>= 7
	}
	out = append(out, byte(v))
	return out
}
