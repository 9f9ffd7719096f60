package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1000.00", 100_000, false},
		{"999.99", 99_999, false},
		{"0.01", 1, false},
		{"7500", 750_000, false},
		{"-5", -500, false},
		{"1.005", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"10000000000000.00", 1_000_000_000_000_000, false},
		{"10000000000000.01", 0, true},
		{"-10000000000000.01", 0, true},
		{"184467440737095517.17", 0, true},
		{"92233720368547758.08", 0, true},
		{"1e30", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAddBalance(t *testing.T) {
	got, err := AddBalance(100, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got)

	_, err = AddBalance(math.MaxInt64-50, 100)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1000.00", FormatAmount(100_000))
	assert.Equal(t, "999.99", FormatAmount(99_999))
	assert.Equal(t, "0.05", FormatAmount(5))
}

func TestTransactionType_AccountPresence(t *testing.T) {
	from, to := TransactionTypeTransfer.AccountPresence()
	assert.Equal(t, Required, from)
	assert.Equal(t, Required, to)

	from, to = TransactionTypeDeposit.AccountPresence()
	assert.Equal(t, Forbidden, from)
	assert.Equal(t, Required, to)

	assert.False(t, TransactionType("loan").IsValid())
}

func TestPermissionError_Is(t *testing.T) {
	err := DenyPermission("cannot approve their own transaction")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "cannot approve their own transaction")
}
