package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/money"
)

// ProRata splits amount in proportion to weights, exact to the cent. Each
// share is capped at caps[i]; cash a capped member cannot take is spread
// over the others. A member with zero weight receives nothing unless every
// member with room has zero weight, in which case room is the weight.
// The sum of shares is min(amount, sum(caps)).
func ProRata(amount decimal.Decimal, weights, caps []decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	out := make([]decimal.Decimal, n)
	room := make([]decimal.Decimal, n)
	total := decimal.Zero
	for i := 0; i < n; i++ {
		room[i] = money.NonNegative(caps[i])
		total = total.Add(room[i])
	}
	remaining := money.Min(money.NonNegative(amount), total).RoundFloor(money.Places)

	for remaining.IsPositive() {
		active, w := activeMembers(weights, room)
		if len(active) == 0 {
			break
		}
		wsum := money.Sum(w...)

		capped := false
		given := decimal.Zero
		for k, i := range active {
			share := remaining.Mul(w[k]).Div(wsum).RoundFloor(money.Places)
			if share.GreaterThan(room[i]) {
				share = room[i]
				capped = true
			}
			out[i] = out[i].Add(share)
			room[i] = room[i].Sub(share)
			given = given.Add(share)
		}
		remaining = remaining.Sub(given)
		if capped {
			continue
		}

		// Floor left fewer than len(active) cents; hand them out in order.
		progressed := false
		for _, i := range active {
			if !remaining.IsPositive() {
				break
			}
			if room[i].GreaterThanOrEqual(money.Cent) {
				out[i] = out[i].Add(money.Cent)
				room[i] = room[i].Sub(money.Cent)
				remaining = remaining.Sub(money.Cent)
				progressed = true
			}
		}
		if !progressed && given.IsZero() {
			break
		}
	}
	return out
}

func activeMembers(weights, room []decimal.Decimal) ([]int, []decimal.Decimal) {
	var idx []int
	var w []decimal.Decimal
	for i := range weights {
		if room[i].IsPositive() && weights[i].IsPositive() {
			idx = append(idx, i)
			w = append(w, weights[i])
		}
	}
	if len(idx) > 0 {
		return idx, w
	}
	for i := range room {
		if room[i].IsPositive() {
			idx = append(idx, i)
			w = append(w, room[i])
		}
	}
	return idx, w
}
