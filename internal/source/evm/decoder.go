package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/devblac/swap-watch/internal/swap"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// uniswapV3SwapABI is used when no loaded ABI defines the configured event.
const uniswapV3SwapABI = `[
	{"type":"event","name":"Swap","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"amount0","type":"int256","indexed":false},
		{"name":"amount1","type":"int256","indexed":false},
		{"name":"sqrtPriceX96","type":"uint160","indexed":false},
		{"name":"liquidity","type":"uint128","indexed":false},
		{"name":"tick","type":"int24","indexed":false}
	]}
]`

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// Decimals holds the token scales of the pool's two amounts.
type Decimals struct {
	A uint8
	B uint8
}

// SwapDecoder turns pool logs into swap records. The event's first two
// inputs must be the two accounts and the next two the signed amounts.
type SwapDecoder struct {
	address  common.Address
	event    *abi.Event
	decimals Decimals
}

// NewSwapDecoder resolves event (a name such as "Swap" or a full signature)
// against the loaded ABIs, falling back to the built-in Uniswap V3 Swap event.
func NewSwapDecoder(contract, event string, abis map[string]*abi.ABI, decimals Decimals) (*SwapDecoder, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	if event == "" {
		event = "Swap"
	}

	ev, err := resolveEvent(event, abis)
	if err != nil {
		return nil, err
	}
	if err := checkSwapShape(ev); err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.Sig, err)
	}

	return &SwapDecoder{
		address:  common.HexToAddress(contract),
		event:    ev,
		decimals: decimals,
	}, nil
}

func resolveEvent(event string, abis map[string]*abi.ABI) (*abi.Event, error) {
	if strings.Contains(event, "(") {
		return syntheticEvent(event)
	}
	if found, ok := FindEvent(abis, event); ok {
		return found, nil
	}
	builtin, err := abi.JSON(strings.NewReader(uniswapV3SwapABI))
	if err != nil {
		return nil, fmt.Errorf("parse built-in abi: %w", err)
	}
	if ev, ok := builtin.Events[event]; ok {
		return &ev, nil
	}
	return nil, fmt.Errorf("event %s not found in loaded abis", event)
}

func checkSwapShape(ev *abi.Event) error {
	if len(ev.Inputs) < 4 {
		return fmt.Errorf("need at least 4 inputs, have %d", len(ev.Inputs))
	}
	for i := 0; i < 2; i++ {
		if ev.Inputs[i].Type.T != abi.AddressTy {
			return fmt.Errorf("input %d must be an address, is %s", i, ev.Inputs[i].Type)
		}
	}
	for i := 2; i < 4; i++ {
		if ev.Inputs[i].Type.T != abi.IntTy || ev.Inputs[i].Type.Size != 256 {
			return fmt.Errorf("input %d must be int256, is %s", i, ev.Inputs[i].Type)
		}
	}
	return nil
}

// Address returns the pool contract.
func (d *SwapDecoder) Address() common.Address { return d.address }

// Topic returns the event signature hash.
func (d *SwapDecoder) Topic() common.Hash { return d.event.ID }

// DecodeLog parses the topics and data of lg into the event's typed inputs.
func (d *SwapDecoder) DecodeLog(lg types.Log) (DecodedEvent, error) {
	if lg.Address != d.address {
		return DecodedEvent{}, fmt.Errorf("%w: log from %s, want %s", ErrDecode, lg.Address.Hex(), d.address.Hex())
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != d.event.ID {
		return DecodedEvent{}, fmt.Errorf("%w: topic0 mismatch in tx %s", ErrDecode, lg.TxHash.Hex())
	}

	indexed, nonIndexed := splitIndexed(d.event.Inputs)
	if len(lg.Topics)-1 != len(indexed) {
		return DecodedEvent{}, fmt.Errorf("%w: %d indexed topics, want %d", ErrDecode, len(lg.Topics)-1, len(indexed))
	}

	args := map[string]any{}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return DecodedEvent{}, fmt.Errorf("%w: parse topics: %v", ErrDecode, err)
	}
	if err := nonIndexed.UnpackIntoMap(args, lg.Data); err != nil {
		return DecodedEvent{}, fmt.Errorf("%w: unpack data: %v", ErrDecode, err)
	}

	params := make([]any, len(d.event.Inputs))
	for i, in := range d.event.Inputs {
		params[i] = args[in.Name]
	}
	return DecodedEvent{Name: d.event.Name, Params: params}, nil
}

// Decode builds the swap carried by lg.
func (d *SwapDecoder) Decode(lg types.Log) (swap.Event, error) {
	ev, err := d.DecodeLog(lg)
	if err != nil {
		return swap.Event{}, err
	}

	accountA, okA := ev.Params[0].(common.Address)
	accountB, okB := ev.Params[1].(common.Address)
	if !okA || !okB {
		return swap.Event{}, fmt.Errorf("%w: accounts are %T and %T", ErrDecode, ev.Params[0], ev.Params[1])
	}
	rawA, err := toWord(ev.Params[2])
	if err != nil {
		return swap.Event{}, err
	}
	rawB, err := toWord(ev.Params[3])
	if err != nil {
		return swap.Event{}, err
	}

	rec, err := swap.Build(accountA, accountB, rawA, rawB, d.decimals.A, d.decimals.B)
	if err != nil {
		return swap.Event{}, fmt.Errorf("tx %s log %d: %w", lg.TxHash.Hex(), lg.Index, err)
	}
	return swap.Event{TxHash: lg.TxHash, LogIndex: lg.Index, Record: rec}, nil
}

// toWord re-encodes a signed amount as its 256-bit two's-complement word.
func toWord(v any) (*uint256.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("%w: amount is %T", ErrDecode, v)
	}
	b := n
	if n.Sign() < 0 {
		b = new(big.Int).Add(n, two256)
	}
	w, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount %s outside int256", ErrDecode, n)
	}
	return w, nil
}

// syntheticEvent builds an ABI event from a signature like
// Swap(address indexed,address indexed,int256,int256). Inputs are named
// arg0..argN.
func syntheticEvent(signature string) (*abi.Event, error) {
	l := strings.Index(signature, "(")
	r := strings.LastIndex(signature, ")")
	if l <= 0 || r <= l {
		return nil, fmt.Errorf("invalid event signature: %s", signature)
	}
	name := signature[:l]
	rawArgs := strings.Split(signature[l+1:r], ",")
	args := make(abi.Arguments, 0, len(rawArgs))
	for _, a := range rawArgs {
		fields := strings.Fields(a)
		if len(fields) == 0 {
			continue
		}
		t, err := abi.NewType(fields[0], "", nil)
		if err != nil {
			return nil, fmt.Errorf("parse type %s: %w", fields[0], err)
		}
		indexed := len(fields) > 1 && fields[1] == "indexed"
		args = append(args, abi.Argument{Name: fmt.Sprintf("arg%d", len(args)), Type: t, Indexed: indexed})
	}
	ev := abi.NewEvent(name, name, false, args)
	return &ev, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
