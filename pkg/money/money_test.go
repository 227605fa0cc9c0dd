package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMinor(t *testing.T) {
	usd, err := Lookup("usd")
	require.NoError(t, err)
	gc, err := Lookup("GC")
	require.NoError(t, err)
	btc, err := Lookup("BTC")
	require.NoError(t, err)

	assert.Equal(t, "10.50", FormatMinor(1050, usd))
	assert.Equal(t, "-0.05", FormatMinor(-5, usd))
	assert.Equal(t, "42", FormatMinor(42, gc))
	assert.Equal(t, "0.00000001", FormatMinor(1, btc))
}

func TestParseMajor(t *testing.T) {
	usd, _ := Lookup("USD")
	gc, _ := Lookup("GC")

	testCases := []struct {
		name     string
		input    string
		currency Currency
		expected int64
		err      error
	}{
		{"whole", "10", usd, 1000, nil},
		{"one decimal", "10.5", usd, 1050, nil},
		{"two decimals", "0.01", usd, 1, nil},
		{"trailing zeros", "1.500", usd, 150, nil},
		{"negative", "-2.25", usd, -225, nil},
		{"too precise", "0.001", usd, 0, ErrTooPrecise},
		{"fraction of coin", "1.5", gc, 0, ErrTooPrecise},
		{"garbage", "ten", usd, 0, ErrInvalidAmount},
		{"overflow", "92233720368547758.08", usd, 0, ErrOutOfRange},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMajor(tc.input, tc.currency)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("XYZ")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
	assert.Equal(t, "1234", Format(1234, "XYZ"))
	assert.Equal(t, "12.34", Format(1234, "USD"))
}
