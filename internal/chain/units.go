package chain

import (
	"fmt"
	"math/big"
)

// weiPerHSK is the fixed-point scale of the chain currency: 10^18 wei = 1 HSK.
var weiPerHSK = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// WeiToHSK converts a wei amount to whole HSK as a float. Only for display;
// accounting always stays in integer wei.
func WeiToHSK(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerHSK).Float64()
	return out
}

// HSKToWei converts a whole-HSK float into integer wei, truncating any
// fraction below one wei.
func HSKToWei(hsk float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(hsk), weiPerHSK)
	wei, _ := scaled.Int(nil)
	return wei
}

// FormatWei renders a wei amount as a human-readable HSK string.
func FormatWei(wei *big.Int) string {
	return fmt.Sprintf("%.6f HSK", WeiToHSK(wei))
}
