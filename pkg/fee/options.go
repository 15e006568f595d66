package fee

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Executor option layout (protocol options type 3):
//
//	uint16 type(3) | uint8 worker(1) | uint16 len(17) | uint8 lzReceive(1) | uint128 gas
const (
	optionsType3       = 3
	executorWorkerID   = 1
	optionTypeReceive  = 1
	receiveOptionBytes = 17
	encodedOptionLen   = 2 + 1 + 2 + receiveOptionBytes
)

// DefaultGasAmounts is the ascending executor gas ladder probed by default
var DefaultGasAmounts = []uint64{
	20_000, 50_000, 80_000, 100_000, 150_000,
	200_000, 250_000, 300_000, 400_000, 500_000,
	750_000, 1_000_000, 1_500_000, 2_000_000, 3_000_000,
	5_000_000, 7_500_000, 10_000_000, 15_000_000, 20_000_000,
}

// Candidate is one encoded executor budget
type Candidate struct {
	Gas     uint64
	Options []byte
}

func (c Candidate) String() string {
	return fmt.Sprintf("%d gas (%s)", c.Gas, hexutil.Encode(c.Options))
}

// EncodeExecutorGas builds the lzReceive executor option for gas
func EncodeExecutorGas(gas uint64) []byte {
	out := make([]byte, encodedOptionLen)
	binary.BigEndian.PutUint16(out[0:2], optionsType3)
	out[2] = executorWorkerID
	binary.BigEndian.PutUint16(out[3:5], receiveOptionBytes)
	out[5] = optionTypeReceive
	// uint128 big-endian: the top 8 bytes stay zero
	binary.BigEndian.PutUint64(out[14:22], gas)
	return out
}

// DecodeExecutorGas extracts the gas from an encoded lzReceive executor option
func DecodeExecutorGas(options []byte) (uint64, error) {
	if len(options) != encodedOptionLen {
		return 0, fmt.Errorf("unexpected option length %d", len(options))
	}
	if binary.BigEndian.Uint16(options[0:2]) != optionsType3 {
		return 0, fmt.Errorf("unsupported options type %d", binary.BigEndian.Uint16(options[0:2]))
	}
	if options[2] != executorWorkerID || options[5] != optionTypeReceive {
		return 0, fmt.Errorf("not an executor lzReceive option")
	}
	gas := new(big.Int).SetBytes(options[6:22])
	if !gas.IsUint64() {
		return 0, fmt.Errorf("gas %s overflows uint64", gas)
	}
	return gas.Uint64(), nil
}

// NewCandidates encodes gas amounts, which must be strictly ascending
func NewCandidates(gasAmounts []uint64) ([]Candidate, error) {
	out := make([]Candidate, 0, len(gasAmounts))
	for i, gas := range gasAmounts {
		if i > 0 && gas <= gasAmounts[i-1] {
			return nil, fmt.Errorf("gas amounts must be strictly ascending: %d after %d", gas, gasAmounts[i-1])
		}
		out = append(out, Candidate{Gas: gas, Options: EncodeExecutorGas(gas)})
	}
	return out, nil
}

// DefaultCandidates returns the encoded DefaultGasAmounts
func DefaultCandidates() []Candidate {
	candidates, err := NewCandidates(DefaultGasAmounts)
	if err != nil {
		panic(err)
	}
	return candidates
}
