// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// Compression names the encoding of a payload's bytes.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts a compression name; the empty string means
// none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	default:
		return "", storeerr.New(storeerr.InvalidArgument, "unknown compression %q", name)
	}
}

// Payload carries blob contents across the network. Checksum is the
// BLAKE3 hash of the uncompressed bytes.
type Payload struct {
	Compression Compression `cbor:"compression"`
	Size        int64       `cbor:"size"`
	Checksum    []byte      `cbor:"checksum"`
	Data        []byte      `cbor:"data"`
}

// Shared across calls; zstd encoders and decoders are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("wire: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("wire: zstd decoder initialization failed: " + err.Error())
	}
}

func checksum(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// EncodePayload prepares data for transfer under the requested
// compression. Data that does not shrink is sent uncompressed.
func EncodePayload(data []byte, compression Compression) (Payload, error) {
	payload := Payload{
		Compression: CompressionNone,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		Data:        data,
	}
	if len(data) == 0 {
		return payload, nil
	}

	switch compression {
	case "", CompressionNone:
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return Payload{}, fmt.Errorf("lz4 compress: %w", err)
		}
		// Zero means lz4 judged the block incompressible.
		if written > 0 && written < len(data) {
			payload.Compression = CompressionLZ4
			payload.Data = destination[:written]
		}
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) < len(data) {
			payload.Compression = CompressionZstd
			payload.Data = compressed
		}
	default:
		return Payload{}, storeerr.New(storeerr.InvalidArgument, "unknown compression %q", compression)
	}
	return payload, nil
}

// Decode returns the uncompressed bytes after verifying size and
// checksum.
func (p *Payload) Decode() ([]byte, error) {
	if p.Size < 0 {
		return nil, storeerr.New(storeerr.InvalidArgument, "payload size %d is negative", p.Size)
	}
	var data []byte
	switch p.Compression {
	case "", CompressionNone:
		data = p.Data
	case CompressionLZ4:
		data = make([]byte, p.Size)
		read, err := lz4.UncompressBlock(p.Data, data)
		if err != nil {
			return nil, storeerr.New(storeerr.InvalidArgument, "lz4 decompress: %v", err)
		}
		data = data[:read]
	case CompressionZstd:
		var err error
		data, err = zstdDecoder.DecodeAll(p.Data, make([]byte, 0, p.Size))
		if err != nil {
			return nil, storeerr.New(storeerr.InvalidArgument, "zstd decompress: %v", err)
		}
	default:
		return nil, storeerr.New(storeerr.InvalidArgument, "unknown compression %q", p.Compression)
	}

	if int64(len(data)) != p.Size {
		return nil, storeerr.New(storeerr.InvalidArgument, "payload holds %d bytes, header says %d", len(data), p.Size)
	}
	if !bytes.Equal(checksum(data), p.Checksum) {
		return nil, storeerr.New(storeerr.InvalidArgument, "payload checksum mismatch")
	}
	return data, nil
}
