package oracle

import (
	"errors"
	"math/big"

	"github.com/danmuck/oraclectl/internal/protocol/felt"
)

// Builtins returns a registry populated with the reference selectors:
// sqrt computes an integer square root, panic always fails and exists to
// exercise the error path.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("sqrt", Sqrt)
	r.Register("panic", Panic)
	return r
}

// Sqrt returns the integer square root of the first calldata felt.
func Sqrt(calldata []felt.Felt) ([]felt.Felt, error) {
	if len(calldata) == 0 {
		return nil, errors.New("sqrt expects one calldata value")
	}
	return []felt.Felt{new(big.Int).Sqrt(calldata[0])}, nil
}

// Panic fails unconditionally.
func Panic([]felt.Felt) ([]felt.Felt, error) {
	return nil, errors.New("oops")
}
