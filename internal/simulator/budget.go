package simulator

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetStore tracks the budgets the simulator granted to its synthetic
// accounts. It is a reporting harness, not an authority: the ledger decides
// whether a slot can actually afford its placement.
type BudgetStore struct {
	mu      sync.RWMutex
	budgets map[uuid.UUID]map[uuid.UUID]decimal.Decimal
}

func NewBudgetStore() *BudgetStore {
	return &BudgetStore{
		budgets: make(map[uuid.UUID]map[uuid.UUID]decimal.Decimal),
	}
}

// Grant records an initial budget for (wallet, asset).
func (b *BudgetStore) Grant(walletID, assetID uuid.UUID, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budgets[walletID] == nil {
		b.budgets[walletID] = make(map[uuid.UUID]decimal.Decimal)
	}
	b.budgets[walletID][assetID] = amount
}

// Granted returns the recorded budget for (wallet, asset).
func (b *BudgetStore) Granted(walletID, assetID uuid.UUID) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.budgets[walletID][assetID]
}

// Wallets lists every wallet holding a recorded budget.
func (b *BudgetStore) Wallets() []uuid.UUID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	wallets := make([]uuid.UUID, 0, len(b.budgets))
	for id := range b.budgets {
		wallets = append(wallets, id)
	}
	return wallets
}

// TotalGranted sums recorded budgets per asset.
func (b *BudgetStore) TotalGranted() map[uuid.UUID]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, assets := range b.budgets {
		for asset, amount := range assets {
			if cur, ok := totals[asset]; ok {
				totals[asset] = cur.Add(amount)
			} else {
				totals[asset] = amount
			}
		}
	}
	return totals
}
