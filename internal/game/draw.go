package game

import (
	"encoding/hex"
	"math"

	"github.com/holiman/uint256"
)

type Stake struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

type Selection struct {
	Index     int    `json:"index"`
	AccountID string `json:"account_id"`
	Stake     int64  `json:"stake"`
	Hash      string `json:"hash"`
	Ticket    uint64 `json:"ticket"`
	TotalPot  int64  `json:"total_pot"`
}

// SelectWinner draws one player with probability proportional to stake.
//
// H = SHA256(serverSeed || roundID) read as a big-endian 256-bit integer and
// ticket = H mod totalPot. Players own consecutive half-open ranges
// [before, before+stake) in join order; the range containing the ticket wins.
func SelectWinner(serverSeed, roundID string, stakes []Stake) (Selection, error) {
	if len(stakes) == 0 {
		return Selection{}, ErrNotEnoughPlayers
	}
	total, err := sumStakes(stakes)
	if err != nil {
		return Selection{}, err
	}
	sum := drawHash(serverSeed, roundID)
	h := new(uint256.Int).SetBytes32(sum[:])
	ticket := new(uint256.Int).Mod(h, uint256.NewInt(uint64(total))).Uint64()

	sel := Selection{
		Hash:     hex.EncodeToString(sum[:]),
		Ticket:   ticket,
		TotalPot: total,
	}
	var cumulative uint64
	for i, s := range stakes {
		cumulative += uint64(s.Amount)
		if ticket < cumulative {
			sel.Index = i
			sel.AccountID = s.AccountID
			sel.Stake = s.Amount
			return sel, nil
		}
	}
	last := len(stakes) - 1
	sel.Index = last
	sel.AccountID = stakes[last].AccountID
	sel.Stake = stakes[last].Amount
	return sel, nil
}

func sumStakes(stakes []Stake) (int64, error) {
	var total int64
	for _, s := range stakes {
		if s.Amount <= 0 {
			return 0, ErrInvalidAmount
		}
		if total > math.MaxInt64-s.Amount {
			return 0, ErrInvalidAmount
		}
		total += s.Amount
	}
	return total, nil
}
