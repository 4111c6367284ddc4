package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceEntry tracks one (wallet, asset) pair. The conservation law over an
// order's lifetime: available -= ask at admission, locked += ask; per match
// locked -= delta, spent += delta; on cancel the residual locked returns to
// available. available + locked + spent only changes through SetBudget and
// Credit.
type BalanceEntry struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	WalletID  uuid.UUID       `gorm:"type:uuid;index:idx_balance_key,unique" json:"wallet_id"`
	AssetID   uuid.UUID       `gorm:"type:uuid;index:idx_balance_key,unique" json:"asset_id"`
	Available decimal.Decimal `gorm:"type:decimal(38,18)" json:"available"`
	Locked    decimal.Decimal `gorm:"type:decimal(38,18)" json:"locked"`
	Spent     decimal.Decimal `gorm:"type:decimal(38,18)" json:"spent"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total is the sum of all three buckets.
func (e *BalanceEntry) Total() decimal.Decimal {
	return e.Available.Add(e.Locked).Add(e.Spent)
}

// Summary aggregates utilisation across all balance entries.
type Summary struct {
	TotalAvailable decimal.Decimal `json:"total_available"`
	TotalLocked    decimal.Decimal `json:"total_locked"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	EntryCount     int64           `json:"entry_count"`
}

// UtilizationPercent is spent over the grand total, as a percentage.
func (s *Summary) UtilizationPercent() float64 {
	total := s.TotalAvailable.Add(s.TotalLocked).Add(s.TotalSpent)
	if total.IsZero() {
		return 0
	}
	spent, _ := s.TotalSpent.Float64()
	t, _ := total.Float64()
	return spent / t * 100
}
