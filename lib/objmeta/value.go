// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objmeta

import (
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// Reserved keys are carried by dedicated fields of every record and
// cannot be set as attributes.
var reservedKeys = map[string]bool{
	"id":          true,
	"typename":    true,
	"nbytes":      true,
	"signature":   true,
	"instance_id": true,
	"global":      true,
	"transient":   true,
}

// IsReservedKey reports whether key is one of the record's own fields.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// CheckKey validates an attribute or member key.
func CheckKey(key string) error {
	if key == "" {
		return storeerr.New(storeerr.InvalidArgument, "key must not be empty")
	}
	if reservedKeys[key] {
		return storeerr.New(storeerr.InvalidArgument, "key %q is reserved", key)
	}
	return nil
}

// EncodeValue converts an attribute value to its stored text. Strings,
// booleans and numbers are stored in their natural text form. Slices
// and arrays of those are stored as JSON arrays. Anything else is
// rejected with InvalidMetadataValue.
func EncodeValue(value any) (string, error) {
	v := reflect.ValueOf(value)
	if text, ok := scalarText(v); ok {
		return text, nil
	}
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		elements := make([]any, v.Len())
		for index := range v.Len() {
			element := v.Index(index)
			for element.Kind() == reflect.Interface && !element.IsNil() {
				element = element.Elem()
			}
			if _, ok := scalarText(element); !ok {
				return "", storeerr.New(storeerr.InvalidMetadataValue,
					"element %d of %T is %s, not a scalar", index, value, describe(element))
			}
			elements[index] = element.Interface()
		}
		encoded, err := json.Marshal(elements)
		if err != nil {
			return "", storeerr.New(storeerr.InvalidMetadataValue, "encoding %T: %v", value, err)
		}
		return string(encoded), nil
	}
	return "", storeerr.New(storeerr.InvalidMetadataValue, "%s cannot be stored as an attribute", describe(v))
}

// EncodeScalar is EncodeValue restricted to scalars. Shallow-copy
// overrides use it: they replace attributes of an existing record and
// may not introduce structure.
func EncodeScalar(value any) (string, error) {
	if text, ok := scalarText(reflect.ValueOf(value)); ok {
		return text, nil
	}
	return "", storeerr.New(storeerr.InvalidMetadataValue, "%s is not a scalar", describe(reflect.ValueOf(value)))
}

func scalarText(v reflect.Value) (string, bool) {
	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), true
	default:
		return "", false
	}
}

func describe(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}
