package evm

import (
	"context"
	"fmt"
	"sort"

	"github.com/devblac/swap-watch/internal/swap"
	"github.com/devblac/swap-watch/internal/window"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// NodeHeader is the block identity as the node reports it. The hash is
// taken from the response, never recomputed from header fields, so header
// fields added by later forks cannot change it.
type NodeHeader struct {
	Number hexutil.Uint64 `json:"number"`
	Hash   common.Hash    `json:"hash"`
}

// Head converts the node's identity to a notification.
func (h NodeHeader) Head() Head {
	return Head{Height: uint64(h.Number), Hash: h.Hash}
}

// BlockClient is the node surface the fetcher needs.
type BlockClient interface {
	NodeHeaderByNumber(ctx context.Context, height uint64) (NodeHeader, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// HeadClient is a BlockClient that can also push new heads.
type HeadClient interface {
	BlockClient
	SubscribeNodeHeads(ctx context.Context, ch chan<- *NodeHeader) (ethereum.Subscription, error)
}

// RPCClient wraps ethclient.Client and the raw RPC connection under it. It
// satisfies HeadClient.
type RPCClient struct {
	*ethclient.Client
	rpc *rpc.Client
}

// NewRPCClient builds an RPC client to an EVM node. Subscriptions need a
// ws:// or wss:// URL.
func NewRPCClient(ctx context.Context, rpcURL string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: ethclient.NewClient(c), rpc: c}, nil
}

// NodeHeaderByNumber fetches the number and hash of the block at height.
func (c *RPCClient) NodeHeaderByNumber(ctx context.Context, height uint64) (NodeHeader, error) {
	var h *NodeHeader
	if err := c.rpc.CallContext(ctx, &h, "eth_getBlockByNumber", hexutil.EncodeUint64(height), false); err != nil {
		return NodeHeader{}, err
	}
	if h == nil {
		return NodeHeader{}, ethereum.NotFound
	}
	return *h, nil
}

// SubscribeNodeHeads subscribes to newHeads, keeping the node's hashes.
func (c *RPCClient) SubscribeNodeHeads(ctx context.Context, ch chan<- *NodeHeader) (ethereum.Subscription, error) {
	sub, err := c.rpc.EthSubscribe(ctx, ch, "newHeads")
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Fetcher loads block snapshots of the pool's swaps. It performs no
// retries; a failed call is returned to the window as is.
type Fetcher struct {
	client  BlockClient
	decoder *SwapDecoder
}

// NewFetcher builds a window.Fetcher over client.
func NewFetcher(client BlockClient, decoder *SwapDecoder) *Fetcher {
	return &Fetcher{client: client, decoder: decoder}
}

var _ window.Fetcher = (*Fetcher)(nil)

// Snapshot fetches the block identity at height and the pool's Swap logs in
// that exact block.
func (f *Fetcher) Snapshot(ctx context.Context, height uint64) (window.Snapshot, error) {
	header, err := f.client.NodeHeaderByNumber(ctx, height)
	if err != nil {
		return window.Snapshot{}, fmt.Errorf("header %d: %w", height, err)
	}
	if uint64(header.Number) != height {
		return window.Snapshot{}, fmt.Errorf("header %d: node returned block %d", height, uint64(header.Number))
	}
	if header.Hash == (common.Hash{}) {
		return window.Snapshot{}, fmt.Errorf("header %d: node returned no hash", height)
	}
	hash := header.Hash

	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		BlockHash: &hash,
		Addresses: []common.Address{f.decoder.Address()},
		Topics:    [][]common.Hash{{f.decoder.Topic()}},
	})
	if err != nil {
		return window.Snapshot{}, fmt.Errorf("filter logs %d: %w", height, err)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Index < logs[j].Index })

	events := make([]swap.Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := f.decoder.Decode(lg)
		if err != nil {
			return window.Snapshot{}, fmt.Errorf("block %d: %w", height, err)
		}
		events = append(events, ev)
	}

	return window.Snapshot{Height: height, Hash: hash, Events: events}, nil
}
