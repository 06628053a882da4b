package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/adxcore/sfe/internal/adxtypes"
)

// This file implements the APP client type's wire format (spec.md §4.2/§6)
// directly against protowire rather than generated .pb.go message types,
// since no .proto sources exist in the retrieved pack to generate from.
// Field numbers below are this service's own protobuf schema.

const (
	fieldBuyerInputInterestGroups = 1

	fieldInterestGroupName           = 1
	fieldInterestGroupBrowserSignals = 2

	fieldBrowserSignalsJoinCount = 1
	fieldBrowserSignalsRecency   = 2

	fieldPAIGenerationID         = 1
	fieldPAIPublisherName        = 2
	fieldPAIEnableDebugReporting = 3
	fieldPAIBuyerInput           = 4

	fieldBuyerInputEntryKey   = 1
	fieldBuyerInputEntryValue = 2

	fieldResultIsChaff             = 1
	fieldResultAdRenderURL         = 2
	fieldResultScore               = 3
	fieldResultComponentRenderURLs = 4
	fieldResultInterestGroupName   = 5
	fieldResultInterestGroupOwner  = 6
	fieldResultBid                 = 7
	fieldResultBiddingGroups       = 8
	fieldResultError               = 9

	fieldBiddingGroupBuyer   = 1
	fieldBiddingGroupIndices = 2

	fieldErrorCode    = 1
	fieldErrorMessage = 2
)

// DecodeBuyerInputProto decodes one buyer's protobuf-encoded BuyerInput for
// an APP client, per spec.md §4.2.
func DecodeBuyerInputProto(raw []byte) (adxtypes.BuyerInput, error) {
	var out adxtypes.BuyerInput
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return adxtypes.BuyerInput{}, fmt.Errorf("codec: malformed buyer input tag")
		}
		raw = raw[n:]
		switch {
		case num == fieldBuyerInputInterestGroups && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return adxtypes.BuyerInput{}, fmt.Errorf("codec: malformed interest group")
			}
			raw = raw[n:]
			ig, err := decodeInterestGroup(msg)
			if err != nil {
				return adxtypes.BuyerInput{}, err
			}
			out.InterestGroups = append(out.InterestGroups, ig)
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return adxtypes.BuyerInput{}, fmt.Errorf("codec: malformed buyer input field %d", num)
			}
			raw = raw[n:]
		}
	}
	return out, nil
}

func decodeInterestGroup(raw []byte) (adxtypes.InterestGroup, error) {
	var out adxtypes.InterestGroup
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return adxtypes.InterestGroup{}, fmt.Errorf("codec: malformed interest group tag")
		}
		raw = raw[n:]
		switch {
		case num == fieldInterestGroupName && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(raw)
			if n < 0 {
				return adxtypes.InterestGroup{}, fmt.Errorf("codec: malformed interest group name")
			}
			raw = raw[n:]
			out.Name = s
		case num == fieldInterestGroupBrowserSignals && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return adxtypes.InterestGroup{}, fmt.Errorf("codec: malformed browser signals")
			}
			raw = raw[n:]
			bs, err := decodeBrowserSignals(msg)
			if err != nil {
				return adxtypes.InterestGroup{}, err
			}
			out.BrowserSignals = bs
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return adxtypes.InterestGroup{}, fmt.Errorf("codec: malformed interest group field %d", num)
			}
			raw = raw[n:]
		}
	}
	return out, nil
}

func decodeBrowserSignals(raw []byte) (adxtypes.BrowserSignals, error) {
	var out adxtypes.BrowserSignals
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return adxtypes.BrowserSignals{}, fmt.Errorf("codec: malformed browser signals tag")
		}
		raw = raw[n:]
		switch {
		case num == fieldBrowserSignalsJoinCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return adxtypes.BrowserSignals{}, fmt.Errorf("codec: malformed join count")
			}
			raw = raw[n:]
			out.JoinCount = int(v)
		case num == fieldBrowserSignalsRecency && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return adxtypes.BrowserSignals{}, fmt.Errorf("codec: malformed recency")
			}
			raw = raw[n:]
			out.Recency = int64(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return adxtypes.BrowserSignals{}, fmt.Errorf("codec: malformed browser signals field %d", num)
			}
			raw = raw[n:]
		}
	}
	return out, nil
}

// DecodeProtectedAudienceInputProto decodes the outer ProtectedAudienceInput
// for an APP client. Per-buyer inputs are left encoded so the caller can
// isolate a single malformed buyer under the fail_fast flag.
func DecodeProtectedAudienceInputProto(raw []byte) (adxtypes.ProtectedAudienceInput, error) {
	out := adxtypes.ProtectedAudienceInput{EncodedBuyerInputs: map[string][]byte{}}
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: malformed protected audience input tag")
		}
		raw = raw[n:]
		switch {
		case num == fieldPAIGenerationID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(raw)
			if n < 0 {
				return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: malformed generation id")
			}
			raw = raw[n:]
			out.GenerationID = s
		case num == fieldPAIPublisherName && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(raw)
			if n < 0 {
				return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: malformed publisher name")
			}
			raw = raw[n:]
			out.PublisherName = s
		case num == fieldPAIEnableDebugReporting && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: malformed enable_debug_reporting")
			}
			raw = raw[n:]
			out.EnableDebugReporting = v != 0
		case num == fieldPAIBuyerInput && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: malformed buyer input entry")
			}
			raw = raw[n:]
			key, value, err := decodeBuyerInputMapEntry(entry)
			if err != nil {
				return adxtypes.ProtectedAudienceInput{}, err
			}
			out.EncodedBuyerInputs[key] = value
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: malformed protected audience input field %d", num)
			}
			raw = raw[n:]
		}
	}
	return out, nil
}

func decodeBuyerInputMapEntry(raw []byte) (string, []byte, error) {
	var key string
	var value []byte
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return "", nil, fmt.Errorf("codec: malformed buyer input map entry tag")
		}
		raw = raw[n:]
		switch {
		case num == fieldBuyerInputEntryKey && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(raw)
			if n < 0 {
				return "", nil, fmt.Errorf("codec: malformed buyer input map key")
			}
			raw = raw[n:]
			key = s
		case num == fieldBuyerInputEntryValue && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return "", nil, fmt.Errorf("codec: malformed buyer input map value")
			}
			raw = raw[n:]
			value = append([]byte(nil), b...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return "", nil, fmt.Errorf("codec: malformed buyer input map entry field %d", num)
			}
			raw = raw[n:]
		}
	}
	return key, value, nil
}

// EncodeAuctionResultProto encodes the final AuctionResult for an APP
// client, per spec.md §4.6/§6.
func EncodeAuctionResultProto(result adxtypes.AuctionResult) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldResultIsChaff, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(result.IsChaff))

	if result.AdRenderURL != "" {
		b = protowire.AppendTag(b, fieldResultAdRenderURL, protowire.BytesType)
		b = protowire.AppendString(b, result.AdRenderURL)
	}
	if result.Score != 0 {
		b = protowire.AppendTag(b, fieldResultScore, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(result.Score))
	}
	for _, u := range result.ComponentRenderURLs {
		b = protowire.AppendTag(b, fieldResultComponentRenderURLs, protowire.BytesType)
		b = protowire.AppendString(b, u)
	}
	if result.InterestGroupName != "" {
		b = protowire.AppendTag(b, fieldResultInterestGroupName, protowire.BytesType)
		b = protowire.AppendString(b, result.InterestGroupName)
	}
	if result.InterestGroupOwner != "" {
		b = protowire.AppendTag(b, fieldResultInterestGroupOwner, protowire.BytesType)
		b = protowire.AppendString(b, result.InterestGroupOwner)
	}
	if result.Bid != 0 {
		b = protowire.AppendTag(b, fieldResultBid, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(result.Bid))
	}
	for buyer, indices := range result.BiddingGroups {
		var group []byte
		group = protowire.AppendTag(group, fieldBiddingGroupBuyer, protowire.BytesType)
		group = protowire.AppendString(group, buyer)
		for _, idx := range indices {
			group = protowire.AppendTag(group, fieldBiddingGroupIndices, protowire.VarintType)
			group = protowire.AppendVarint(group, uint64(idx))
		}
		b = protowire.AppendTag(b, fieldResultBiddingGroups, protowire.BytesType)
		b = protowire.AppendBytes(b, group)
	}
	if result.Error != nil {
		var e []byte
		e = protowire.AppendTag(e, fieldErrorCode, protowire.VarintType)
		e = protowire.AppendVarint(e, uint64(result.Error.Code))
		e = protowire.AppendTag(e, fieldErrorMessage, protowire.BytesType)
		e = protowire.AppendString(e, result.Error.Message)
		b = protowire.AppendTag(b, fieldResultError, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	}
	return b, nil
}

func boolToVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
