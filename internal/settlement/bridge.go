package settlement

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/corvex/exchange-core/internal/types"
)

// Result is the bridge's verdict on one trade hand-off.
type Result struct {
	Settled bool
	TxRef   string
	Reason  string
}

// Bridge is the on-chain settlement hand-off. Submit blocks until the chain
// acknowledges or rejects the trade; the processor serialises calls.
type Bridge interface {
	Submit(ctx context.Context, trade *types.Trade) (*Result, error)
}

// SimulatedBridge stands in for the chain during development and tests. It
// settles trades at a configurable failure rate and mints synthetic
// transaction references.
type SimulatedBridge struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
}

func NewSimulatedBridge(failureRate float64, seed int64) *SimulatedBridge {
	return &SimulatedBridge{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
	}
}

func (b *SimulatedBridge) Submit(ctx context.Context, trade *types.Trade) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	failed := b.rng.Float64() < b.failureRate
	b.mu.Unlock()

	if failed {
		return &Result{Settled: false, Reason: "chain rejected transfer"}, nil
	}
	ref := "0x" + strings.ReplaceAll(uuid.New().String(), "-", "")
	return &Result{Settled: true, TxRef: ref}, nil
}
