package health

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// HeaderClient is the part of the node client a health check needs.
type HeaderClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// RPCChecker reports whether the node answers and is still producing blocks.
type RPCChecker struct {
	sourceID string
	client   HeaderClient
	maxAge   time.Duration
	nowFunc  func() time.Time
}

// NewRPCChecker creates a checker for one node. A zero maxAge disables the
// staleness check on the latest header.
func NewRPCChecker(sourceID string, client HeaderClient, maxAge time.Duration) *RPCChecker {
	return &RPCChecker{
		sourceID: sourceID,
		client:   client,
		maxAge:   maxAge,
		nowFunc:  time.Now,
	}
}

// Ping fetches the latest header.
func (c *RPCChecker) Ping(ctx context.Context) error {
	h, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("evm source %s: %w", c.sourceID, err)
	}
	if h == nil {
		return fmt.Errorf("evm source %s: empty latest header", c.sourceID)
	}
	if c.maxAge > 0 {
		age := c.nowFunc().Sub(time.Unix(int64(h.Time), 0))
		if age > c.maxAge {
			return fmt.Errorf("evm source %s: latest block %d is %s old", c.sourceID, h.Number.Uint64(), age.Truncate(time.Second))
		}
	}
	return nil
}
