// Package detector computes per-product price changes between
// consecutive snapshots and owns the in-memory price record store.
package detector

import (
	"math"

	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/models"
)

// Predicate decides whether the transition from prev to cur counts as
// a change worth notifying. It is only consulted for products present
// in both snapshots; new products are always reported.
type Predicate func(prev, cur models.PriceRecord) bool

// AnyChange reports every nonzero movement in either the buy or the
// sell price. This is the default notification policy.
func AnyChange(prev, cur models.PriceRecord) bool {
	return cur.BuyPrice != prev.BuyPrice || cur.SellPrice != prev.SellPrice
}

// ThresholdPct returns a predicate that reports a change only when the
// buy price moved by at least pct percent against the previous buy
// price. The service once shipped with this policy at 2%; it remains
// selectable through configuration.
func ThresholdPct(pct float64) Predicate {
	return func(prev, cur models.PriceRecord) bool {
		if prev.BuyPrice == 0 {
			return cur.BuyPrice != 0
		}
		delta := float64(cur.BuyPrice-prev.BuyPrice) / float64(prev.BuyPrice) * 100
		return math.Abs(delta) >= pct
	}
}

// Detect compares current against previous and returns one
// ChangeRecord per changed product, ordered by product name.
//
// A nil previous snapshot is the baseline case: the caller adopts
// current without any change being reported. A product present only in
// current is reported as a change from a zero-valued previous record.
// A product present only in previous is not reported; disappearance is
// logged and otherwise silent.
func Detect(previous *models.Snapshot, current models.Snapshot, changed Predicate) []models.ChangeRecord {
	if previous == nil {
		return nil
	}
	if changed == nil {
		changed = AnyChange
	}

	var changes []models.ChangeRecord
	for _, name := range current.ProductNames() {
		cur := current.Prices[name]
		prev, known := previous.Prices[name]
		if !known {
			changes = append(changes, models.ChangeRecord{
				ProductName: name,
				Current:     cur,
				IsNew:       true,
			})
			continue
		}
		if changed(prev, cur) {
			changes = append(changes, models.ChangeRecord{
				ProductName: name,
				Previous:    prev,
				Current:     cur,
			})
		}
	}

	for _, name := range previous.ProductNames() {
		if _, still := current.Prices[name]; !still {
			logger.Debug("Product %q disappeared from the current snapshot", name)
		}
	}

	return changes
}
