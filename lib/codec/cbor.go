// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Decode limits. Metadata travels as flat records with members by id,
// so nesting stays shallow; listings and closures are long arrays of
// those records. The frame limit in lib/wire bounds total size.
const (
	maxNesting       = 32
	maxArrayElements = 1 << 24
	maxMapPairs      = 1 << 20
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encoding := cbor.CoreDetEncOptions()
	encoding.TextMarshaler = cbor.TextMarshalerTextString
	encoding.IndefLength = cbor.IndefLengthForbidden

	decoding := cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler:  cbor.TextUnmarshalerTextString,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  maxNesting,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
	}

	var err error
	if encMode, err = encoding.EncMode(); err != nil {
		panic("codec: building the CBOR encoder: " + err.Error())
	}
	if decMode, err = decoding.DecMode(); err != nil {
		panic("codec: building the CBOR decoder: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes one CBOR item into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an encoded item whose decoding is deferred: the body of
// a request or the data of a response, decoded once the action is
// known.
type RawMessage = cbor.RawMessage

// Body encodes v as a deferred envelope part. A nil v is an absent
// body.
func Body(v any) (RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return encMode.Marshal(v)
}

// Open decodes a deferred envelope part into v. An absent body, or a
// nil v, decodes nothing.
func Open(body RawMessage, v any) error {
	if v == nil || len(body) == 0 {
		return nil
	}
	return decMode.Unmarshal(body, v)
}
