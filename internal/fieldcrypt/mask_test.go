package fieldcrypt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskIdentityNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GHA-123456789-0", "GHA-XXXX6789"},
		{"GHA-987654321", "GHA-XXXX4321"},
		{"P1234567", "XXXX4567"},
		{"1234", "XXXX"},
		{"", "XXXX"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := MaskIdentityNumber(tc.in)
			assert.Equal(t, tc.want, got)
			if tc.in != "" {
				assert.NotContains(t, got, tc.in)
			}
		})
	}
}

func TestMaskDateOfBirth(t *testing.T) {
	assert.Equal(t, "****-**-01", MaskDateOfBirth("1990-05-01"))
	assert.Equal(t, "****-**-**", MaskDateOfBirth("05/01/1990"))
}

func TestMaskAccountNumber_NeverMoreThanLastFour(t *testing.T) {
	for _, n := range []string{"1234567890123", "12345", "1234", "12", ""} {
		got := MaskAccountNumber(n)
		visible := strings.TrimLeft(got, "*")
		assert.LessOrEqual(t, len(visible), 4, n)
		if len(n) > 4 {
			assert.Equal(t, n[len(n)-4:], visible)
		}
	}
}

func TestMaskPhoneNameAddress(t *testing.T) {
	assert.Equal(t, "*******567", MaskPhone("0241234567"))
	assert.Equal(t, "**", MaskPhone("12"))
	assert.Equal(t, "A***", MaskName("Ama Mensah"))
	assert.Equal(t, "Ɔ***", MaskName("Ɔsɛ"))
	assert.Equal(t, "", MaskName("  "))
	assert.Equal(t, "***", MaskAddress("12 Ring Road"))
	assert.Equal(t, "", MaskAddress(""))
}
