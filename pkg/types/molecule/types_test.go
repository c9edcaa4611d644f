package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintType_IsValid(t *testing.T) {
	tests := []struct {
		ft   FingerprintType
		want bool
	}{
		{FingerprintMACCS, true},
		{FingerprintMorgan, true},
		{FingerprintType("gnn"), false},
		{FingerprintType(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ft), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ft.IsValid())
		})
	}
}

func TestFingerprintType_DefaultLength(t *testing.T) {
	assert.Equal(t, 166, FingerprintMACCS.DefaultLength())
	assert.Equal(t, 2048, FingerprintMorgan.DefaultLength())
	assert.Equal(t, 0, FingerprintType("bogus").DefaultLength())
}

func TestParseFingerprintType(t *testing.T) {
	got, err := ParseFingerprintType("morgan")
	assert.NoError(t, err)
	assert.Equal(t, FingerprintMorgan, got)

	_, err = ParseFingerprintType("daylight")
	assert.Error(t, err)
}

func TestAllFingerprintTypes(t *testing.T) {
	types := AllFingerprintTypes()
	assert.Len(t, types, 2)
	for _, ft := range types {
		assert.True(t, ft.IsValid())
	}
}
