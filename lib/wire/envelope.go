// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BSWANG/v6d/lib/codec"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// ProtocolVersion is sent in register; a server refuses sessions with
// a different version.
const ProtocolVersion = 1

// Request is the envelope of every request frame.
type Request struct {
	Action string           `cbor:"action"`
	Body   codec.RawMessage `cbor:"body,omitempty"`
}

// Response is the envelope of every response frame. On failure Code is
// the wire name of the error kind and Error its message.
type Response struct {
	OK    bool             `cbor:"ok"`
	Code  string           `cbor:"code,omitempty"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// NewRequest builds the envelope for action, encoding body unless it
// is nil.
func NewRequest(action string, body any) (Request, error) {
	data, err := codec.Body(body)
	if err != nil {
		return Request{}, fmt.Errorf("encoding %s request: %w", action, err)
	}
	return Request{Action: action, Body: data}, nil
}

// Decode decodes the request body into v. A request without a body
// leaves v untouched.
func (r *Request) Decode(v any) error {
	if err := codec.Open(r.Body, v); err != nil {
		return storeerr.New(storeerr.InvalidArgument, "malformed %s request: %v", r.Action, err)
	}
	return nil
}

// Success builds a successful response carrying result, which may be
// nil.
func Success(result any) (Response, error) {
	data, err := codec.Body(result)
	if err != nil {
		return Response{}, fmt.Errorf("encoding response: %w", err)
	}
	return Response{OK: true, Data: data}, nil
}

// Failure builds the response reporting err. Errors that are not a
// *storeerr.Error travel as internal.
func Failure(err error) Response {
	message := err.Error()
	var typed *storeerr.Error
	if errors.As(err, &typed) {
		// Wrapping context stays; the kind prefix travels in Code.
		message = strings.Replace(message, typed.Kind.String()+": ", "", 1)
	}
	return Response{OK: false, Code: storeerr.KindOf(err).String(), Error: message}
}

// Err reconstructs the typed error of a failed response; nil when the
// response succeeded.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	return &storeerr.Error{Kind: storeerr.ParseKind(r.Code), Message: r.Error}
}

// Decode decodes the response data into v. A response without data
// leaves v untouched.
func (r *Response) Decode(v any) error {
	if err := codec.Open(r.Data, v); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// UnmarshalRequest decodes a request frame. Malformed frames fail with
// InvalidArgument.
func UnmarshalRequest(frame []byte, request *Request) error {
	if err := codec.Unmarshal(frame, request); err != nil {
		return storeerr.New(storeerr.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}
