/*
This file contains common utility functions for converting on-chain integer amounts into
decimal values, honoring each token's native precision.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

const (
	// MANTISSA_DECIMALS is the fixed-point precision of Compound-style mantissas (rates, factors, exchange rates).
	MANTISSA_DECIMALS = 18
	// MAX_AMOUNT_BITS is the widest amount an sdkmath.Int holds.
	MAX_AMOUNT_BITS = 256
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrAmountTooLarge   = errors.New("amount exceeds 256 bits")
)

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	result := decAmount.Quo(powerOfTen(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// BigIntToFloat64 converts a raw uint256 read from a contract into whole-token units.
func BigIntToFloat64(amount *big.Int, precision int) (float64, error) {
	if amount == nil {
		return 0, ErrAmountNil
	}
	if amount.BitLen() > MAX_AMOUNT_BITS {
		return 0, fmt.Errorf("%w: %d bits", ErrAmountTooLarge, amount.BitLen())
	}
	return SDKIntToFloat64(sdkmath.NewIntFromBigInt(amount), precision)
}

// MantissaToFloat64 converts an 18-decimal mantissa (collateral factor, per-block rate) to a float.
func MantissaToFloat64(mantissa *big.Int) (float64, error) {
	return BigIntToFloat64(mantissa, MANTISSA_DECIMALS)
}

// ScaleByMantissa returns amount * mantissa / 1e18 with integer truncation, as the cToken
// contracts do when converting cToken balances into underlying. The product is taken in
// math/big, so the result may be wider than 256 bits; BigIntToFloat64 rejects it.
func ScaleByMantissa(amount, mantissa *big.Int) (*big.Int, error) {
	if amount == nil || mantissa == nil {
		return nil, ErrAmountNil
	}
	if amount.Sign() < 0 || mantissa.Sign() < 0 {
		return nil, ErrAmountNegative
	}
	product := new(big.Int).Mul(amount, mantissa)
	return product.Quo(product, new(big.Int).Exp(big.NewInt(10), big.NewInt(MANTISSA_DECIMALS), nil)), nil
}

func powerOfTen(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}
