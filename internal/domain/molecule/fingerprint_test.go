package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

func TestFingerprintBitVector(t *testing.T) {
	fp := NewFingerprint(mtypes.FingerprintMorgan, 128)

	assert.Equal(t, 0, fp.PopCount())
	fp.SetBit(0)
	fp.SetBit(63)
	fp.SetBit(64)
	fp.SetBit(127)
	fp.SetBit(-1)  // ignored
	fp.SetBit(128) // ignored

	assert.Equal(t, 4, fp.PopCount())
	assert.True(t, fp.Bit(0))
	assert.True(t, fp.Bit(63))
	assert.True(t, fp.Bit(64))
	assert.True(t, fp.Bit(127))
	assert.False(t, fp.Bit(1))
	assert.False(t, fp.Bit(128))
	assert.Equal(t, []int{0, 63, 64, 127}, fp.OnBits())
}

func TestFingerprintBytesRoundTrip(t *testing.T) {
	fp := NewFingerprint(mtypes.FingerprintMorgan, 256)
	for _, i := range []int{0, 7, 8, 100, 200, 255} {
		fp.SetBit(i)
	}

	data := fp.ToBytes()
	require.Len(t, data, 32)

	restored := FingerprintFromBytes(mtypes.FingerprintMorgan, data, 256)
	assert.Equal(t, fp.OnBits(), restored.OnBits())
}

func TestMorganFingerprintDeterministic(t *testing.T) {
	g := mustParse(t, "CC(=O)Oc1ccccc1C(=O)O")

	fp1, err := MorganFingerprint(g, 2, 2048)
	require.NoError(t, err)
	fp2, err := MorganFingerprint(g, 2, 2048)
	require.NoError(t, err)

	assert.Equal(t, fp1.OnBits(), fp2.OnBits())
	assert.Greater(t, fp1.PopCount(), 0)
}

func TestMorganFingerprintOrderIndependent(t *testing.T) {
	// Isomorphic graphs from different SMILES writings must hash to the same
	// bits.
	g1 := mustParse(t, "CCO")
	g2 := mustParse(t, "OCC")

	fp1, err := MorganFingerprint(g1, 2, 2048)
	require.NoError(t, err)
	fp2, err := MorganFingerprint(g2, 2, 2048)
	require.NoError(t, err)

	assert.Equal(t, fp1.OnBits(), fp2.OnBits())
}

func TestMorganFingerprintKekuleAromaticEquivalence(t *testing.T) {
	// Kekule and aromatic writings of the same molecule must hash to the
	// same bits so similarity between the two spellings is exactly 1.
	tests := []struct {
		name     string
		kekule   string
		aromatic string
	}{
		{"benzene", "C1=CC=CC=C1", "c1ccccc1"},
		{"aspirin", "CC(=O)OC1=CC=CC=C1C(=O)O", "CC(=O)Oc1ccccc1C(=O)O"},
		{"caffeine", "CN1C=NC2=C1C(=O)N(C)C(=O)N2C", "Cn1cnc2c1c(=O)n(C)c(=O)n2C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp1, err := MorganFingerprint(mustParse(t, tt.kekule), 2, 2048)
			require.NoError(t, err)
			fp2, err := MorganFingerprint(mustParse(t, tt.aromatic), 2, 2048)
			require.NoError(t, err)
			assert.Equal(t, fp1.OnBits(), fp2.OnBits())

			sim, err := TanimotoSimilarity(fp1, fp2)
			require.NoError(t, err)
			assert.Equal(t, 1.0, sim)

			m1, err := MACCSFingerprint(mustParse(t, tt.kekule))
			require.NoError(t, err)
			m2, err := MACCSFingerprint(mustParse(t, tt.aromatic))
			require.NoError(t, err)
			assert.Equal(t, m1.OnBits(), m2.OnBits())
		})
	}
}

func TestMorganFingerprintSeparatesStructures(t *testing.T) {
	fpEthanol, err := MorganFingerprint(mustParse(t, "CCO"), 2, 2048)
	require.NoError(t, err)
	fpEther, err := MorganFingerprint(mustParse(t, "COC"), 2, 2048)
	require.NoError(t, err)

	assert.NotEqual(t, fpEthanol.OnBits(), fpEther.OnBits())
}

func TestMorganFingerprintSimilarityOrdering(t *testing.T) {
	// Close analogs should score higher than unrelated structures.
	aspirin, err := MorganFingerprint(mustParse(t, "CC(=O)Oc1ccccc1C(=O)O"), 2, 2048)
	require.NoError(t, err)
	salicylic, err := MorganFingerprint(mustParse(t, "OC(=O)c1ccccc1O"), 2, 2048)
	require.NoError(t, err)
	hexane, err := MorganFingerprint(mustParse(t, "CCCCCC"), 2, 2048)
	require.NoError(t, err)

	analogScore, err := TanimotoSimilarity(aspirin, salicylic)
	require.NoError(t, err)
	unrelatedScore, err := TanimotoSimilarity(aspirin, hexane)
	require.NoError(t, err)

	assert.Greater(t, analogScore, unrelatedScore)
}

func TestMorganFingerprintInvalidParams(t *testing.T) {
	g := mustParse(t, "CCO")

	_, err := MorganFingerprint(g, 2, 100)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintFailed))

	_, err = MorganFingerprint(g, -1, 2048)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintFailed))
}

func TestMACCSFingerprint(t *testing.T) {
	fp, err := MACCSFingerprint(mustParse(t, "CC(=O)Oc1ccccc1C(=O)O"))
	require.NoError(t, err)

	assert.Equal(t, MACCSBits, fp.Length)
	assert.Greater(t, fp.PopCount(), 5)

	// Key 164 (oxygen present) and key 163 (six-membered ring) must be set.
	assert.True(t, fp.Bit(163), "key 164: oxygen")
	assert.True(t, fp.Bit(162), "key 163: six-ring")
	// Key 161 (nitrogen) must not.
	assert.False(t, fp.Bit(160), "key 161: nitrogen")
}

func TestMACCSKeyPredicates(t *testing.T) {
	tests := []struct {
		name   string
		smiles string
		key    int // 1-based MACCS key expected set
	}{
		{"chlorine", "CCl", 103},
		{"carbonyl", "CC(=O)C", 154},
		{"hydroxyl", "CCO", 139},
		{"carboxylic acid", "CC(=O)O", 50},
		{"nitrile", "CC#N", 117},
		{"nitro", "C[N+](=O)[O-]", 135},
		{"amide", "CC(=O)N", 92},
		{"aromatic ring", "c1ccccc1", 162},
		{"multiple fragments", "[Na+].[Cl-]", 166},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := MACCSFingerprint(mustParse(t, tt.smiles))
			require.NoError(t, err)
			assert.True(t, fp.Bit(tt.key-1), "expected key %d set", tt.key)
		})
	}
}

func TestComputeFingerprintDispatch(t *testing.T) {
	g := mustParse(t, "CCO")

	maccs, err := ComputeFingerprint(g, mtypes.FingerprintMACCS, 0)
	require.NoError(t, err)
	assert.Equal(t, MACCSBits, maccs.Length)

	morgan, err := ComputeFingerprint(g, mtypes.FingerprintMorgan, 0)
	require.NoError(t, err)
	assert.Equal(t, 2048, morgan.Length)

	_, err = ComputeFingerprint(g, mtypes.FingerprintType("daylight"), 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintUnsupported))
}
