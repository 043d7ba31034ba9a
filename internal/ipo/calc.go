// Package ipo computes IPO bid quantities and amounts, checks applications against the eligibility
// policy and submits them to the brokerage backend.
package ipo

import "math"

// DefaultRetailCap is the retail individual investor ceiling per application, in rupees.
const DefaultRetailCap = 200000.0

// MaxQuantity saturates share counts derived from client input.
const MaxQuantity = 1_000_000_000

// Quantity is lots × sharesPerLot, saturated at MaxQuantity. Non-positive or non-finite inputs give 0.
func Quantity(lots int, sharesPerLot float64) int {
	if lots <= 0 || !positive(sharesPerLot) {
		return 0
	}
	return saturate(float64(lots) * math.Trunc(sharesPerLot))
}

// Amount is quantity × price. Non-positive or non-finite inputs give 0, never NaN.
func Amount(quantity int, price float64) float64 {
	if quantity <= 0 || !positive(price) {
		return 0
	}
	return float64(quantity) * price
}

// Price returns the price an amount is computed at: the cut-off price for cut-off bids, else the bid.
func Price(cutoff bool, bid, cutoffPrice float64) float64 {
	if cutoff {
		return cutoffPrice
	}
	return bid
}

// MaxLots is floor(cap / (sharesPerLot × price)), saturated at MaxQuantity, or 0 when the per-lot cost is not positive.
func MaxLots(cap, sharesPerLot, price float64) int {
	perLot := sharesPerLot * price
	if !positive(perLot) || !positive(cap) {
		return 0
	}
	return saturate(math.Floor(cap / perLot))
}

// saturate converts a non-negative v to int, clamped to MaxQuantity.
func saturate(v float64) int {
	if v >= MaxQuantity {
		return MaxQuantity
	}
	return int(v)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// QuoteInput describes one bid to price.
type QuoteInput struct {
	Lots         int     `json:"lots"`
	SharesPerLot float64 `json:"shares_per_lot"`
	BidPrice     float64 `json:"bid_price"`
	CutoffPrice  float64 `json:"cutoff_price"`
	Cutoff       bool    `json:"cutoff"`
}

// Quote is the derived quantity, amount and lot ceiling for a bid.
type Quote struct {
	Lots        int     `json:"lots"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	MaxLots     int     `json:"max_lots"`
	CapExceeded bool    `json:"cap_exceeded"`
}

// NewQuote prices in against the retail cap.
func NewQuote(in QuoteInput, cap float64) Quote {
	price := Price(in.Cutoff, in.BidPrice, in.CutoffPrice)
	if !positive(price) {
		price = 0
	}
	qty := Quantity(in.Lots, in.SharesPerLot)
	amount := Amount(qty, price)
	return Quote{
		Lots:        in.Lots,
		Quantity:    qty,
		Price:       price,
		Amount:      amount,
		MaxLots:     MaxLots(cap, in.SharesPerLot, price),
		CapExceeded: positive(cap) && amount > cap,
	}
}
