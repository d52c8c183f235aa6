package ledger

import (
	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/shopspring/decimal"
)

// FoldStock recomputes a quantity from its movements.
func FoldStock(movements []database.StockMovement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(database.NumericToDecimal(m.QuantityChange))
	}
	return total
}

// FoldPoints recomputes a balance from its transactions.
func FoldPoints(txs []database.LoyaltyTransaction) int64 {
	var total int64
	for _, t := range txs {
		total += t.Points
	}
	return total
}

// StockAudit compares an item's cached quantity against its ledger.
type StockAudit struct {
	InventoryItemID uuid.UUID       `json:"inventory_item_id"`
	Cached          decimal.Decimal `json:"cached"`
	Folded          decimal.Decimal `json:"folded"`
	Movements       int             `json:"movements"`
	// BrokenLinks counts rows whose quantity_before differs from the
	// previous row's quantity_after (movements in created_at order).
	BrokenLinks int  `json:"broken_links"`
	Consistent  bool `json:"consistent"`
}

// AuditStock expects movements in ledger order.
func AuditStock(item database.InventoryItem, movements []database.StockMovement) StockAudit {
	a := StockAudit{
		InventoryItemID: item.ID,
		Cached:          database.NumericToDecimal(item.Quantity),
		Folded:          FoldStock(movements),
		Movements:       len(movements),
	}
	prev := decimal.Zero
	for _, m := range movements {
		before := database.NumericToDecimal(m.QuantityBefore)
		after := database.NumericToDecimal(m.QuantityAfter)
		change := database.NumericToDecimal(m.QuantityChange)
		if !before.Equal(prev) || !before.Add(change).Equal(after) {
			a.BrokenLinks++
		}
		prev = after
	}
	a.Consistent = a.Cached.Equal(a.Folded) && a.BrokenLinks == 0
	return a
}

// PointsAudit compares a customer's cached balance against its ledger.
type PointsAudit struct {
	CustomerID   uuid.UUID `json:"customer_id"`
	Cached       int64     `json:"cached"`
	Folded       int64     `json:"folded"`
	Transactions int       `json:"transactions"`
	BrokenLinks  int       `json:"broken_links"`
	Consistent   bool      `json:"consistent"`
}

// AuditPoints expects transactions in ledger order.
func AuditPoints(c database.Customer, txs []database.LoyaltyTransaction) PointsAudit {
	a := PointsAudit{
		CustomerID:   c.ID,
		Cached:       c.LoyaltyPointsBalance,
		Folded:       FoldPoints(txs),
		Transactions: len(txs),
	}
	var prev int64
	for _, t := range txs {
		if prev+t.Points != t.BalanceAfter {
			a.BrokenLinks++
		}
		prev = t.BalanceAfter
	}
	a.Consistent = a.Cached == a.Folded && a.BrokenLinks == 0
	return a
}
