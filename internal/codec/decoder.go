package codec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/erroracc"
)

// Decoder implements InputDecoder (spec.md §4.2): client-type dispatch over
// the two wire formats, plus the gzip/padding half of the response path
// (spec.md §4.6).
type Decoder struct {
	// FailFast, when true, aborts BuyerInput decoding at the first
	// malformed entry instead of skipping it and continuing with the
	// rest (spec.md §4.2).
	FailFast bool
}

// DecodeProtectedAudienceInput decodes the outer envelope for the given
// client type.
func (d *Decoder) DecodeProtectedAudienceInput(raw []byte, clientType adxtypes.ClientType) (adxtypes.ProtectedAudienceInput, error) {
	switch clientType {
	case adxtypes.ClientBrowser:
		return DecodeProtectedAudienceInputCBOR(raw)
	case adxtypes.ClientApp:
		return DecodeProtectedAudienceInputProto(raw)
	default:
		return adxtypes.ProtectedAudienceInput{}, fmt.Errorf("codec: unsupported client type %s", clientType)
	}
}

// DecodeBuyerInputs decodes every buyer's encoded BuyerInput, reporting
// each failure to acc as a CLIENT_VISIBLE error (spec.md §4.2, §7). Under
// FailFast, the first malformed buyer input stops decoding immediately and
// its error is returned directly; otherwise malformed buyers are skipped
// and decoding continues with the rest.
func (d *Decoder) DecodeBuyerInputs(
	encoded map[string][]byte,
	clientType adxtypes.ClientType,
	acc *erroracc.Accumulator,
) (map[string]adxtypes.BuyerInput, error) {
	out := make(map[string]adxtypes.BuyerInput, len(encoded))
	for buyer, raw := range encoded {
		input, err := d.decodeOneBuyerInput(raw, clientType)
		if err != nil {
			msg := fmt.Sprintf("malformed buyer input for %q: %v", buyer, err)
			if acc != nil {
				acc.Report(erroracc.ClientVisible, erroracc.ClientSideCode, msg)
			}
			if d.FailFast {
				return nil, fmt.Errorf("codec: %s", msg)
			}
			continue
		}
		out[buyer] = input
	}
	return out, nil
}

func (d *Decoder) decodeOneBuyerInput(raw []byte, clientType adxtypes.ClientType) (adxtypes.BuyerInput, error) {
	switch clientType {
	case adxtypes.ClientBrowser:
		return DecodeBuyerInputCBOR(raw)
	case adxtypes.ClientApp:
		return DecodeBuyerInputProto(raw)
	default:
		return adxtypes.BuyerInput{}, fmt.Errorf("unsupported client type %s", clientType)
	}
}

// EncodeAuctionResult serializes the AuctionResult for the given client
// type, per spec.md §4.6.
func EncodeAuctionResult(result adxtypes.AuctionResult, clientType adxtypes.ClientType) ([]byte, error) {
	switch clientType {
	case adxtypes.ClientBrowser:
		return EncodeAuctionResultCBOR(result)
	case adxtypes.ClientApp:
		return EncodeAuctionResultProto(result)
	default:
		return nil, fmt.Errorf("codec: unsupported client type %s", clientType)
	}
}

// GzipCompress compresses payload, implementing the compression step of
// spec.md §4.6's encode→compress→pad pipeline.
func GzipCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GunzipDecompress reverses GzipCompress.
func GunzipDecompress(payload []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// NextPowerOfTwo returns the smallest power of two >= n, per spec.md §4.6's
// padding rule (mirrors the original's absl::bit_ceil).
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// PadTo grows data to exactly size bytes with trailing zeroes. size must be
// >= len(data).
func PadTo(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
