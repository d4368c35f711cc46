// Package snapshot frames snapshot bodies: a fixed header, the codec name and
// the (optionally compressed) body.
//
//	[magic 4 "HSNP"] [format 1] [compression 1] [codec name length 1] [reserved 1]
//	[CRC32C of stored body 4] [body length before compression 4]
//	[codec name] [stored body]
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/histore/internal/hash"
)

// Compression selects the body compression.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown compression %q", s)
	}
}

const (
	magic         = "HSNP"
	formatVersion = 1
	headerSize    = 16
)

var (
	ErrInvalidHeader = errors.New("snapshot: invalid header")
	ErrChecksum      = errors.New("snapshot: checksum mismatch")
	ErrTooLarge      = errors.New("snapshot: body too large")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode frames body, compressing it with c. codecName names the codec that
// produced body.
func Encode(body []byte, codecName string, c Compression) ([]byte, error) {
	if len(body) > math.MaxUint32 {
		return nil, ErrTooLarge
	}
	if len(codecName) > math.MaxUint8 {
		return nil, fmt.Errorf("snapshot: codec name %q too long", codecName)
	}

	if len(body) == 0 {
		c = CompressionNone
	}
	var stored []byte
	switch c {
	case CompressionNone:
		stored = body
	case CompressionZSTD:
		enc := getZstdEncoder()
		stored = enc.EncodeAll(body, nil)
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4: %w", err)
		}
		if n == 0 {
			// incompressible
			c, stored = CompressionNone, body
		} else {
			stored = buf[:n]
		}
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %d", c)
	}

	out := make([]byte, headerSize, headerSize+len(codecName)+len(stored))
	copy(out[0:4], magic)
	out[4] = formatVersion
	out[5] = byte(c)
	out[6] = byte(len(codecName))
	binary.LittleEndian.PutUint32(out[8:12], hash.CRC32C(stored))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(body)))
	out = append(out, codecName...)
	return append(out, stored...), nil
}

// Decode verifies and unframes data, returning the body and the codec name.
func Decode(data []byte) ([]byte, string, error) {
	if len(data) < headerSize || string(data[0:4]) != magic {
		return nil, "", ErrInvalidHeader
	}
	if data[4] != formatVersion {
		return nil, "", fmt.Errorf("%w: format %d", ErrInvalidHeader, data[4])
	}
	c := Compression(data[5])
	nameLen := int(data[6])
	checksum := binary.LittleEndian.Uint32(data[8:12])
	rawLen := binary.LittleEndian.Uint32(data[12:16])

	rest := data[headerSize:]
	if len(rest) < nameLen {
		return nil, "", fmt.Errorf("%w: truncated codec name", ErrInvalidHeader)
	}
	codecName := string(rest[:nameLen])
	stored := rest[nameLen:]
	if hash.CRC32C(stored) != checksum {
		return nil, "", ErrChecksum
	}

	var body []byte
	switch c {
	case CompressionNone:
		body = stored
	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(stored, make([]byte, 0, rawLen))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, "", fmt.Errorf("snapshot: zstd: %w", err)
		}
		body = out
	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, "", fmt.Errorf("snapshot: lz4: %w", err)
		}
		body = out[:n]
	default:
		return nil, "", fmt.Errorf("%w: compression %d", ErrInvalidHeader, c)
	}
	if uint32(len(body)) != rawLen {
		return nil, "", fmt.Errorf("%w: body length %d, header says %d", ErrInvalidHeader, len(body), rawLen)
	}
	return body, codecName, nil
}
