// Package circuitparams is the closed, compile-time gas-used -> CircuitConfig
// lookup table. Ranges are half-open and non-overlapping; the table must
// cover [0, MAX] with no gaps, verified at init.
package circuitparams

import (
	"fmt"

	"github.com/taikochain/proverd/internal/provertypes"
)

// Range is one half-open [Low, High) gas-used band mapped to a fixed
// CircuitConfig.
type Range struct {
	Low, High uint64
	Config    provertypes.CircuitConfig
}

// table is the closed set of gas-used bands. Values are representative
// fixtures in the shape of the original zkevm-chain circuit configs; a real
// deployment would tune these per circuit family.
var table = []Range{
	{
		Low: 0, High: 200_000,
		Config: provertypes.CircuitConfig{
			BlockGasLimit: 200_000, MaxTxs: 8, MaxCalldata: 4_000, MaxBytecode: 4_000,
			MaxRws: 200_000, MaxCopyRows: 20_000, MaxExpSteps: 1_000,
			MinK: 19, PadTo: 260_000, MinKAggregation: 24, KeccakPadding: 200_000,
		},
	},
	{
		Low: 200_000, High: 4_000_000,
		Config: provertypes.CircuitConfig{
			BlockGasLimit: 4_000_000, MaxTxs: 44, MaxCalldata: 40_000, MaxBytecode: 40_000,
			MaxRws: 2_000_000, MaxCopyRows: 150_000, MaxExpSteps: 10_000,
			MinK: 20, PadTo: 2_600_000, MinKAggregation: 25, KeccakPadding: 2_000_000,
		},
	},
	{
		Low: 4_000_000, High: 8_000_000,
		Config: provertypes.CircuitConfig{
			BlockGasLimit: 8_000_000, MaxTxs: 79, MaxCalldata: 120_000, MaxBytecode: 120_000,
			MaxRws: 4_000_000, MaxCopyRows: 300_000, MaxExpSteps: 20_000,
			MinK: 21, PadTo: 5_200_000, MinKAggregation: 26, KeccakPadding: 4_000_000,
		},
	},
	{
		Low: 8_000_000, High: 20_000_000,
		Config: provertypes.CircuitConfig{
			BlockGasLimit: 20_000_000, MaxTxs: 150, MaxCalldata: 300_000, MaxBytecode: 300_000,
			MaxRws: 10_000_000, MaxCopyRows: 800_000, MaxExpSteps: 50_000,
			MinK: 22, PadTo: 13_000_000, MinKAggregation: 27, KeccakPadding: 10_000_000,
		},
	},
}

func init() {
	for i, r := range table {
		if r.Low >= r.High {
			panic(fmt.Sprintf("circuitparams: range %d is empty or inverted: [%d, %d)", i, r.Low, r.High))
		}
		if i == 0 {
			continue
		}
		if table[i-1].High != r.Low {
			panic(fmt.Sprintf("circuitparams: gap or overlap between range %d [..,%d) and range %d [%d,..)",
				i-1, table[i-1].High, i, r.Low))
		}
	}
	if table[0].Low != 0 {
		panic("circuitparams: table does not start at 0")
	}
}

// Lookup returns the CircuitConfig whose range contains gasUsed, or ok=false
// if gasUsed falls outside every configured range (including above the
// table's MAX). There is no interpolation: each range maps to exactly one
// fixed record.
func Lookup(gasUsed uint64) (cfg provertypes.CircuitConfig, ok bool) {
	for _, r := range table {
		if gasUsed >= r.Low && gasUsed < r.High {
			return r.Config, true
		}
	}
	return provertypes.CircuitConfig{}, false
}

// NoFitError formats the spec's required error string for an out-of-range
// gas-used value.
func NoFitError(gasUsed uint64) error {
	return fmt.Errorf("No circuit parameters found for block with gas used=%d", gasUsed)
}
