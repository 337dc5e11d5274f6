// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"

	"github.com/BSWANG/v6d/lib/objectid"
)

// sampleRequest mirrors the shape of a wire request: cbor tags, an
// identifier list, and an optional flag.
type sampleRequest struct {
	Action string              `cbor:"action"`
	IDs    []objectid.ObjectID `cbor:"ids,omitempty"`
	Unsafe bool                `cbor:"unsafe,omitempty"`
}

// sampleStatus uses json tags, relying on fxamacker's fallback.
type sampleStatus struct {
	InstanceID  uint64 `json:"instance_id"`
	MemoryUsage uint64 `json:"memory_usage"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{
		Action: "get_buffers",
		IDs:    []objectid.ObjectID{objectid.MustParse("800043c5c6d5e646"), objectid.EmptyBlobID},
		Unsafe: true,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Action != original.Action || decoded.Unsafe != original.Unsafe {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if len(decoded.IDs) != len(original.IDs) {
		t.Fatalf("ids length = %d, want %d", len(decoded.IDs), len(original.IDs))
	}
	for i := range original.IDs {
		if decoded.IDs[i] != original.IDs[i] {
			t.Errorf("ids[%d] = %s, want %s", i, decoded.IDs[i], original.IDs[i])
		}
	}
}

func TestObjectIDEncodesAsText(t *testing.T) {
	data, err := Marshal(objectid.MustParse("000043c5c6d5e646"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != "000043c5c6d5e646" {
		t.Errorf("decoded = %#v, want the hex text string", decoded)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := map[string]any{
		"typename": "bytes",
		"nbytes":   16,
		"global":   false,
	}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(message)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestBodyAndOpen(t *testing.T) {
	body, err := Body(nil)
	if err != nil || body != nil {
		t.Fatalf("Body(nil) = %x, %v; want an absent body", body, err)
	}
	untouched := sampleRequest{Action: "kept"}
	if err := Open(body, &untouched); err != nil || untouched.Action != "kept" {
		t.Errorf("Open(absent) = %+v, %v", untouched, err)
	}

	body, err = Body(sampleRequest{Action: "exists", IDs: []objectid.ObjectID{7}})
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	var decoded sampleRequest
	if err := Open(body, &decoded); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if decoded.Action != "exists" || len(decoded.IDs) != 1 || decoded.IDs[0] != 7 {
		t.Errorf("decoded = %+v", decoded)
	}
	if err := Open(body, nil); err != nil {
		t.Errorf("Open into nil = %v, want nothing decoded", err)
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"action": "a", "action": "b"}
	data := []byte{0xa2, 0x66, 'a', 'c', 't', 'i', 'o', 'n', 0x61, 'a', 0x66, 'a', 'c', 't', 'i', 'o', 'n', 0x61, 'b'}
	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err == nil {
		t.Errorf("Unmarshal accepted a duplicate key: %+v", decoded)
	}
}

func TestUnmarshalRejectsIndefiniteLength(t *testing.T) {
	// An indefinite-length array holding 1, then the break byte.
	data := []byte{0x9f, 0x01, 0xff}
	var decoded []int
	if err := Unmarshal(data, &decoded); err == nil {
		t.Errorf("Unmarshal accepted an indefinite-length array: %v", decoded)
	}
}

func TestUnmarshalRejectsDeepNesting(t *testing.T) {
	data := bytes.Repeat([]byte{0x81}, maxNesting+1)
	data = append(data, 0x01)
	var decoded any
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("Unmarshal accepted nesting beyond the limit")
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := sampleStatus{InstanceID: 5, MemoryUsage: 360}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleStatus
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}

	var keys map[string]any
	if err := Unmarshal(data, &keys); err != nil {
		t.Fatalf("Unmarshal into a map: %v", err)
	}
	if _, ok := keys["memory_usage"]; !ok {
		t.Errorf("keys %v do not use the json tag name", keys)
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var message sampleRequest
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &message); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestUnmarshalRejectsMalformedObjectID(t *testing.T) {
	data, err := Marshal(map[string]any{"ids": []string{"NOT-HEX"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("Unmarshal should reject a non-canonical object id")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Blob payloads travel as CBOR byte strings.
	type envelope struct {
		Payload []byte `cbor:"payload"`
	}

	original := envelope{Payload: []byte{0x00, 0x01, 0x02, 0xff}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Payload, original.Payload)
	}
}

func BenchmarkMarshal(b *testing.B) {
	message := sampleRequest{
		Action: "get_data",
		IDs:    []objectid.ObjectID{1, 2, 3},
	}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(message)
	}
}
