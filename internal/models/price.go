// Package models defines the core domain entities: price records,
// snapshots, change records, and delivery reports.
package models

import (
	"errors"
	"sort"
	"time"
)

// PriceRecord is one product's quotation at a point in time.
// Prices are whole Vietnamese đồng. A SellPrice of 0 means the product
// is quoted for buying only.
type PriceRecord struct {
	ProductName string    `json:"product_name"`
	Unit        string    `json:"unit"`
	BuyPrice    int64     `json:"buy_price"`
	SellPrice   int64     `json:"sell_price,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// HasSellPrice reports whether the product is offered for sale.
func (r PriceRecord) HasSellPrice() bool {
	return r.SellPrice > 0
}

// Spread is the quoting entity's margin: sell minus buy.
// It is 0 when no sell price is quoted.
func (r PriceRecord) Spread() int64 {
	if !r.HasSellPrice() {
		return 0
	}
	return r.SellPrice - r.BuyPrice
}

// SpreadPct is the spread as a percentage of the buy price.
func (r PriceRecord) SpreadPct() float64 {
	if !r.HasSellPrice() || r.BuyPrice == 0 {
		return 0
	}
	return float64(r.Spread()) / float64(r.BuyPrice) * 100
}

// Validate checks price record field constraints. A record with a
// non-positive buy price must not exist; such rows are dropped at the
// source, never stored as zero.
func (r PriceRecord) Validate() error {
	if r.ProductName == "" {
		return errors.New("product name must not be empty")
	}
	if r.BuyPrice <= 0 {
		return errors.New("buy price must be positive")
	}
	if r.SellPrice < 0 {
		return errors.New("sell price must not be negative")
	}
	if r.ObservedAt.IsZero() {
		return errors.New("observed at must be set")
	}
	return nil
}

// Snapshot is the complete set of quoted products at one capture time.
type Snapshot struct {
	Prices     map[string]PriceRecord `json:"prices"`
	CapturedAt time.Time              `json:"captured_at"`
}

// NewSnapshot returns an empty snapshot captured at t.
func NewSnapshot(t time.Time) Snapshot {
	return Snapshot{Prices: make(map[string]PriceRecord), CapturedAt: t}
}

// Empty reports whether the snapshot carries no price records.
func (s Snapshot) Empty() bool {
	return len(s.Prices) == 0
}

// ProductNames returns the snapshot's product names in sorted order,
// for reproducible iteration.
func (s Snapshot) ProductNames() []string {
	names := make([]string, 0, len(s.Prices))
	for name := range s.Prices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
