package fee

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeExecutorGas_KnownVector(t *testing.T) {
	// Options.newOptions().addExecutorLzReceiveOption(200000, 0)
	assert.Equal(t,
		"0x00030100110100000000000000000000000000030d40",
		hexutil.Encode(EncodeExecutorGas(200_000)))
}

func TestDecodeExecutorGas(t *testing.T) {
	for _, gas := range DefaultGasAmounts {
		got, err := DecodeExecutorGas(EncodeExecutorGas(gas))
		require.NoError(t, err)
		assert.Equal(t, gas, got)
	}

	_, err := DecodeExecutorGas([]byte{0x00, 0x03})
	assert.Error(t, err)

	bad := EncodeExecutorGas(1)
	bad[1] = 0x01
	_, err = DecodeExecutorGas(bad)
	assert.Error(t, err)
}

func TestDefaultCandidates_AscendingLadder(t *testing.T) {
	candidates := DefaultCandidates()
	require.Len(t, candidates, 20)
	assert.Equal(t, uint64(20_000), candidates[0].Gas)
	assert.Equal(t, uint64(20_000_000), candidates[len(candidates)-1].Gas)
	for i := 1; i < len(candidates); i++ {
		assert.Greater(t, candidates[i].Gas, candidates[i-1].Gas)
	}
}

func TestNewCandidates_RejectsUnordered(t *testing.T) {
	_, err := NewCandidates([]uint64{100, 100})
	assert.Error(t, err)

	_, err = NewCandidates([]uint64{200, 100})
	assert.Error(t, err)
}
