// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/BSWANG/v6d/lib/codec"
)

// DefaultMaxMessageSize bounds a single frame unless configured
// otherwise. Blob payloads travel inside frames, so this is also the
// largest blob that can be moved in one remote call.
const DefaultMaxMessageSize = 1 << 30

// WriteFrame writes data with a 4-byte length prefix.
func WriteFrame(w io.Writer, data []byte) error {
	if uint64(len(data)) > 0xffffffff {
		return fmt.Errorf("frame of %d bytes does not fit a 32-bit length", len(data))
	}
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(data)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, rejecting frames larger
// than maxSize. A clean end of stream before the length prefix returns
// io.EOF unwrapped.
func ReadFrame(r io.Reader, maxSize int64) ([]byte, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame length: %w", err)
	}
	length := int64(binary.BigEndian.Uint32(lengthPrefix[:]))
	if length > maxSize {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d", length, maxSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return data, nil
}

// WriteMessage encodes v as CBOR and writes it as one frame.
func WriteMessage(w io.Writer, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return WriteFrame(w, data)
}

// ReadMessage reads one frame and decodes it into v.
func ReadMessage(r io.Reader, maxSize int64, v any) error {
	data, err := ReadFrame(r, maxSize)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}
