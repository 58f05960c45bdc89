// Package normalizer converts raw on-chain integer amounts into human-scale
// decimal values using each chain's token decimal convention. Conversions go
// through arbitrary-precision integers only; no binary floating point is
// involved at any step.
package normalizer

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/plexlabs/vault-indexer/internal/domain"
)

// LotSize is the marketplace's fixed unit of tradable quantity, in
// normalized underlying units per lot.
const LotSize = 1000

// chainDecimals maps each supported chain to its token decimal exponent.
// The underlying asset convention differs per network.
var chainDecimals = map[domain.ChainID]int32{
	domain.ChainEthereumMainnet: 6,
	domain.ChainEthereumGoerli:  6,
	domain.ChainBSCMainnet:      18,
	domain.ChainPolygonMumbai:   6,
	domain.ChainArbitrumOne:     6,
}

var lotDivisor = decimal.NewFromInt(LotSize)

// Decimals returns the decimal exponent for a chain
func Decimals(chain domain.ChainID) (int32, error) {
	exp, ok := chainDecimals[chain]
	if !ok {
		return 0, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chain)
	}
	return exp, nil
}

// ToDecimal converts a raw integer amount string to its normalized decimal
// value, the exact quotient raw / 10^decimals(chain).
func ToDecimal(raw string, chain domain.ChainID) (decimal.Decimal, error) {
	exp, err := Decimals(chain)
	if err != nil {
		return decimal.Decimal{}, err
	}

	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("invalid raw amount %q", raw)
	}

	return decimal.NewFromBigInt(v, -exp), nil
}

// FromDecimal converts a normalized decimal value back to the raw integer
// string representation for the given chain. The shifted value must be
// integral; a fractional remainder indicates a precision bug upstream.
func FromDecimal(d decimal.Decimal, chain domain.ChainID) (string, error) {
	exp, err := Decimals(chain)
	if err != nil {
		return "", err
	}

	shifted := d.Shift(exp)
	if !shifted.IsInteger() {
		return "", fmt.Errorf("amount %s is not representable with %d decimals", d, exp)
	}

	return shifted.BigInt().String(), nil
}

// CapacityLots converts a normalized capacity into whole marketplace lots.
// Floors rather than rounds so available lots are never overstated.
func CapacityLots(capacity decimal.Decimal) int64 {
	return capacity.Div(lotDivisor).Floor().IntPart()
}

// ActivityLots converts a normalized deposit amount into lots for the
// activity feed. Unlike CapacityLots this keeps the fractional part:
// partial lots are meaningful in per-deposit history rows.
func ActivityLots(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(lotDivisor)
}
