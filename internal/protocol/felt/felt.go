// Package felt owns the field element value contract: arbitrary-precision
// non-negative integers, hex-encoded on the wire.
package felt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Felt is a field element held as an arbitrary-precision non-negative
// integer. The wire form is a lowercase 0x-prefixed hex string.
type Felt = *big.Int

// New builds a felt from a small integer, mostly for handlers and tests.
func New(v uint64) Felt {
	return new(big.Int).SetUint64(v)
}

// DecodeError reports an unparsable calldata element and its position.
type DecodeError struct {
	Index  int
	Reason string
}

func (e DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("felt: %s", e.Reason)
	}
	return fmt.Sprintf("felt: calldata[%d]: %s", e.Index, e.Reason)
}

// Decode converts one JSON value into a felt. Strings parse as 0x-prefixed
// hex or decimal literals depending on the prefix; bare JSON integers are
// accepted as unencoded felts for backward compatibility. Anything else,
// including negatives and fractions, fails.
func Decode(value any) (Felt, error) {
	switch v := value.(type) {
	case string:
		return decodeString(v)
	case json.Number:
		return decodeString(v.String())
	case float64:
		// json.Unmarshal without UseNumber hands integers over as float64.
		if v < 0 || v != math.Trunc(v) {
			return nil, DecodeError{Index: -1, Reason: fmt.Sprintf("not a non-negative integer: %v", v)}
		}
		f, _ := new(big.Float).SetFloat64(v).Int(nil)
		return f, nil
	default:
		return nil, DecodeError{Index: -1, Reason: fmt.Sprintf("unsupported JSON type %T", value)}
	}
}

func decodeString(s string) (Felt, error) {
	digits := s
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits = s[2:]
		base = 16
	}
	f, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, DecodeError{Index: -1, Reason: fmt.Sprintf("invalid integer literal %q", s)}
	}
	if f.Sign() < 0 {
		return nil, DecodeError{Index: -1, Reason: fmt.Sprintf("negative value %q", s)}
	}
	return f, nil
}

// DecodeSlice maps each element through Decode, failing on the first
// unparsable element with its position.
func DecodeSlice(values []any) ([]Felt, error) {
	out := make([]Felt, 0, len(values))
	for i, v := range values {
		f, err := Decode(v)
		if err != nil {
			var de DecodeError
			if errors.As(err, &de) {
				de.Index = i
				return nil, de
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Encode renders a felt as a lowercase 0x-prefixed hex string with no
// leading zero digits; zero encodes as "0x0".
func Encode(f Felt) string {
	return "0x" + f.Text(16)
}

// EncodeSlice renders every felt in order. The result is never nil so an
// empty sequence serializes as [] rather than null.
func EncodeSlice(felts []Felt) []string {
	out := make([]string, 0, len(felts))
	for _, f := range felts {
		out = append(out, Encode(f))
	}
	return out
}
