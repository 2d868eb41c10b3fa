package utils

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad literal %s", s)
	return v
}

func TestBigIntToFloat64Precision(t *testing.T) {
	// 1,234.5 USDT at 6 decimals vs 18 decimals.
	usdt, err := BigIntToFloat64(big.NewInt(1_234_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, usdt, 1e-9)

	kaia, err := BigIntToFloat64(mustBig(t, "1234500000000000000000"), 18)
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, kaia, 1e-9)

	// Reading a 6-decimal amount with 18 decimals is off by 1e12.
	wrong, err := BigIntToFloat64(big.NewInt(1_234_500_000), 18)
	require.NoError(t, err)
	assert.InDelta(t, 1234.5e-12, wrong, 1e-18)
}

func TestBigIntToFloat64Errors(t *testing.T) {
	_, err := BigIntToFloat64(nil, 18)
	assert.ErrorIs(t, err, ErrAmountNil)

	_, err = BigIntToFloat64(big.NewInt(-1), 18)
	assert.ErrorIs(t, err, ErrAmountNegative)

	_, err = BigIntToFloat64(big.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 6)
	assert.ErrorIs(t, err, ErrAmountNil)

	_, err = BigIntToFloat64(new(big.Int).Lsh(big.NewInt(1), 256), 18)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}

func TestMantissaToFloat64(t *testing.T) {
	cf, err := MantissaToFloat64(mustBig(t, "800000000000000000"))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, cf, 1e-12)
}

func TestScaleByMantissa(t *testing.T) {
	// 50 cTokens (8 decimals) at an exchange rate of 0.02 underlying per cToken, scaled by 1e18.
	balance := big.NewInt(5_000_000_000)
	rate := mustBig(t, "200000000000000000000000000")

	underlying, err := ScaleByMantissa(balance, rate)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", underlying.String())

	_, err = ScaleByMantissa(nil, rate)
	assert.ErrorIs(t, err, ErrAmountNil)
}

func TestScaleByMantissaWideProduct(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	rate := mustBig(t, "2000000000000000000")

	var underlying *big.Int
	var err error
	require.NotPanics(t, func() {
		underlying, err = ScaleByMantissa(maxUint256, rate)
	})
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(maxUint256, big.NewInt(2)).String(), underlying.String())
	assert.Equal(t, 257, underlying.BitLen())

	_, err = BigIntToFloat64(underlying, 18)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}
