// Package codec implements InputDecoder (spec.md §4.2) and the response
// encoding half of ResponseBuilder (spec.md §4.6): the framed plaintext
// envelope, and client-type-specific encode/decode (CBOR for BROWSER,
// protobuf wire format for APP).
package codec

import (
	"encoding/binary"
	"fmt"
)

// CompressionType tags how the framed payload is compressed. Gzip is the
// only value spec.md's pipeline ever produces; None exists so a frame can
// be built before compression happens.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionGzip
)

// Frame implements spec.md §6's "Decrypted plaintext: framed
// {compression_type, length, payload}".
type Frame struct {
	CompressionType CompressionType
	Payload         []byte
}

// Encode serializes the frame as {compression_type byte, length uint32 BE,
// payload}.
func (f Frame) Encode() []byte {
	out := make([]byte, 0, 5+len(f.Payload))
	out = append(out, byte(f.CompressionType))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, f.Payload...)
	return out
}

// DecodeFrame parses a framed buffer, per spec.md §6.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < 5 {
		return Frame{}, fmt.Errorf("codec: frame too short (%d bytes)", len(data))
	}
	compressionType := CompressionType(data[0])
	length := binary.BigEndian.Uint32(data[1:5])
	if uint32(len(data)-5) < length {
		return Frame{}, fmt.Errorf("codec: frame declares %d payload bytes but only %d available", length, len(data)-5)
	}
	return Frame{
		CompressionType: compressionType,
		Payload:         data[5 : 5+length],
	}, nil
}
