package ipo

import (
	"math"
	"testing"
)

func TestQuantityAndAmount(t *testing.T) {
	tests := []struct {
		name         string
		lots         int
		sharesPerLot float64
		price        float64
		wantQty      int
		wantAmount   float64
	}{
		{"two lots at cutoff", 2, 100, 250, 200, 50000},
		{"zero lots", 0, 100, 250, 0, 0},
		{"negative lots", -1, 100, 250, 0, 0},
		{"missing lot size", 2, 0, 250, 0, 0},
		{"missing price", 2, 100, 0, 200, 0},
		{"NaN price", 2, 100, math.NaN(), 200, 0},
		{"infinite lot size", 2, math.Inf(1), 250, 0, 0},
		{"lots near MaxInt saturate", math.MaxInt, 100, 1, MaxQuantity, MaxQuantity},
		{"huge lot size saturates", 1, 1e300, 1, MaxQuantity, MaxQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty := Quantity(tt.lots, tt.sharesPerLot)
			if qty != tt.wantQty {
				t.Errorf("Quantity = %d, want %d", qty, tt.wantQty)
			}
			amount := Amount(qty, tt.price)
			if math.IsNaN(amount) || amount != tt.wantAmount {
				t.Errorf("Amount = %v, want %v", amount, tt.wantAmount)
			}
		})
	}
}

func TestMaxLots(t *testing.T) {
	tests := []struct {
		cap, sharesPerLot, price float64
		want                     int
	}{
		{200000, 100, 250, 8},
		{200000, 14, 1050, 13},
		{200000, 100, 0, 0},
		{200000, 0, 250, 0},
		{0, 100, 250, 0},
		{200000, 100, math.NaN(), 0},
		{200000, 1, 1e-300, MaxQuantity},
	}
	for _, tt := range tests {
		if got := MaxLots(tt.cap, tt.sharesPerLot, tt.price); got != tt.want {
			t.Errorf("MaxLots(%v, %v, %v) = %d, want %d", tt.cap, tt.sharesPerLot, tt.price, got, tt.want)
		}
	}
}

func TestNewQuote(t *testing.T) {
	q := NewQuote(QuoteInput{Lots: 2, SharesPerLot: 100, BidPrice: 240, CutoffPrice: 250, Cutoff: true}, DefaultRetailCap)
	if q.Quantity != 200 || q.Amount != 50000 || q.Price != 250 || q.MaxLots != 8 || q.CapExceeded {
		t.Errorf("cutoff quote = %+v", q)
	}

	q = NewQuote(QuoteInput{Lots: 9, SharesPerLot: 100, BidPrice: 240, CutoffPrice: 250}, DefaultRetailCap)
	if q.Price != 240 || q.Amount != 216000 || !q.CapExceeded {
		t.Errorf("bid quote = %+v", q)
	}

	q = NewQuote(QuoteInput{Lots: 1, SharesPerLot: 100, CutoffPrice: math.NaN(), Cutoff: true}, DefaultRetailCap)
	if q.Amount != 0 || q.Price != 0 || q.MaxLots != 0 {
		t.Errorf("missing price quote = %+v", q)
	}
}
