package game

import "github.com/shopspring/decimal"

// HouseEdge is the share of every pot kept by the operator.
var HouseEdge = decimal.RequireFromString("0.05")

// Winnings returns floor(totalPot * (1 - HouseEdge)) and the house remainder, in minor units.
func Winnings(totalPot int64) (winnings, houseCut int64) {
	if totalPot <= 0 {
		return 0, 0
	}
	pot := decimal.NewFromInt(totalPot)
	w := pot.Mul(decimal.NewFromInt(1).Sub(HouseEdge)).Floor().IntPart()
	return w, totalPot - w
}
