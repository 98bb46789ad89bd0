package evm

import (
	"context"
	"fmt"
	"io"

	ethereum "github.com/ethereum/go-ethereum"
)

// HeadStream yields new-head notifications from a node subscription.
type HeadStream struct {
	sub     ethereum.Subscription
	headers chan *NodeHeader
}

// SubscribeHeads opens a new-head subscription.
func SubscribeHeads(ctx context.Context, client HeadClient) (*HeadStream, error) {
	headers := make(chan *NodeHeader, 16)
	sub, err := client.SubscribeNodeHeads(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}
	return &HeadStream{sub: sub, headers: headers}, nil
}

// Next blocks until the next head arrives. It returns io.EOF once the
// subscription is closed.
func (s *HeadStream) Next(ctx context.Context) (Head, error) {
	select {
	case <-ctx.Done():
		return Head{}, ctx.Err()
	case err, ok := <-s.sub.Err():
		if !ok || err == nil {
			return Head{}, io.EOF
		}
		return Head{}, fmt.Errorf("head subscription: %w", err)
	case h := <-s.headers:
		if h == nil {
			return Head{}, fmt.Errorf("head subscription: empty header")
		}
		return h.Head(), nil
	}
}

// Close ends the subscription.
func (s *HeadStream) Close() {
	s.sub.Unsubscribe()
}
