package options

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Greeks are the theoretical sensitivities of one option position.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per calendar day
	Vega  float64 `json:"vega"`  // per 1% vol move
}

// BlackScholes prices a European option and computes its Greeks.
// spot and strike in price units, t in years, vol and rate as fractions.
func BlackScholes(typ ContractType, spot, strike, t, vol, rate float64) (price float64, greeks Greeks) {
	if t <= 0 {
		price = intrinsic(typ, spot, strike)
		if price > 0 {
			if typ == Call {
				greeks.Delta = 1
			} else {
				greeks.Delta = -1
			}
		}
		return price, greeks
	}
	if vol <= 0 || spot <= 0 || strike <= 0 {
		return intrinsic(typ, spot, strike), greeks
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (rate+vol*vol/2)*t) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT

	n := distuv.UnitNormal
	nd1 := n.CDF(d1)
	nd2 := n.CDF(d2)
	pdf1 := n.Prob(d1)
	disc := math.Exp(-rate * t)

	if typ == Call {
		price = spot*nd1 - strike*disc*nd2
		greeks.Delta = nd1
		greeks.Theta = (-spot*pdf1*vol/(2*sqrtT) - rate*strike*disc*nd2) / 365
	} else {
		price = strike*disc*(1-nd2) - spot*(1-nd1)
		greeks.Delta = nd1 - 1
		greeks.Theta = (-spot*pdf1*vol/(2*sqrtT) + rate*strike*disc*(1-nd2)) / 365
	}
	greeks.Gamma = pdf1 / (spot * vol * sqrtT)
	greeks.Vega = spot * pdf1 * sqrtT / 100
	return price, greeks
}

func intrinsic(typ ContractType, spot, strike float64) float64 {
	if typ == Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}
