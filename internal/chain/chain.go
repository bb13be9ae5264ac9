package chain

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mintpass/mintpass-go/internal/config"
)

// Ledger submits marketplace transactions to the on-chain contract and waits
// for inclusion. Callers sequence the ledger call before any store write.
type Ledger interface {
	// CancelListing cancels the resale listing for tokenID on the event
	// contract and blocks until the transaction is included. Cancelling a
	// listing that is already cancelled on-chain succeeds, so retries after a
	// store failure are safe.
	CancelListing(ctx context.Context, contractAddress string, tokenID uint64) (string, error)
}

// MockLedger simulates the chain for local development, with a configurable
// success rate and inclusion delay.
type MockLedger struct {
	config *config.Config

	mu        sync.Mutex
	cancelled map[string]string // contract:token -> tx hash
}

func NewMockLedger(cfg *config.Config) *MockLedger {
	return &MockLedger{
		config:    cfg,
		cancelled: make(map[string]string),
	}
}

func (l *MockLedger) CancelListing(ctx context.Context, contractAddress string, tokenID uint64) (string, error) {
	key := fmt.Sprintf("%s:%d", contractAddress, tokenID)

	l.mu.Lock()
	if txHash, ok := l.cancelled[key]; ok {
		l.mu.Unlock()
		return txHash, nil
	}
	l.mu.Unlock()

	// Simulate waiting for inclusion
	select {
	case <-time.After(l.config.ChainConfirmDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if rand.Float64() >= l.config.MockChainSuccessRate {
		return "", fmt.Errorf("transaction reverted for token %d on %s", tokenID, contractAddress)
	}

	txHash := fmt.Sprintf("0xmock%d%d", tokenID, time.Now().UnixNano())

	l.mu.Lock()
	l.cancelled[key] = txHash
	l.mu.Unlock()

	return txHash, nil
}
