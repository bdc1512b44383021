package models

// ChangeRecord describes one product's transition between two
// snapshots. For a product that was absent from the previous snapshot,
// Previous is the zero value and IsNew is true; the transition then
// reads as a jump from a zero buy price, mirroring the upstream
// source's behavior for newly listed products.
type ChangeRecord struct {
	ProductName string
	Previous    PriceRecord
	Current     PriceRecord
	IsNew       bool
}

// BuyDelta is the absolute buy price movement.
func (c ChangeRecord) BuyDelta() int64 {
	return c.Current.BuyPrice - c.Previous.BuyPrice
}

// BuyDeltaPct is the buy price movement as a percentage of the
// previous buy price, 0 when there is no previous price to compare.
func (c ChangeRecord) BuyDeltaPct() float64 {
	if c.Previous.BuyPrice == 0 {
		return 0
	}
	return float64(c.BuyDelta()) / float64(c.Previous.BuyPrice) * 100
}

// SellDelta is the sell price movement. It is only meaningful when
// both sides quote a sell price; otherwise it degrades to a comparison
// against 0.
func (c ChangeRecord) SellDelta() int64 {
	return c.Current.SellPrice - c.Previous.SellPrice
}

// SellDeltaPct is the sell price movement as a percentage of the
// previous sell price, 0 unless both sides have one.
func (c ChangeRecord) SellDeltaPct() float64 {
	if !c.Previous.HasSellPrice() || !c.Current.HasSellPrice() {
		return 0
	}
	return float64(c.SellDelta()) / float64(c.Previous.SellPrice) * 100
}

// DeliveryReport summarizes one dispatch cycle.
type DeliveryReport struct {
	GroupDelivered    bool
	Delivered         int
	TransientFailures int
	Removed           []int64
}
