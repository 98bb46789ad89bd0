package evm

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrDecode signals a log that does not match the expected Swap event shape.
var ErrDecode = errors.New("swap log decode failed")

// Head is a new-block notification.
type Head struct {
	Height uint64
	Hash   common.Hash
}

// DecodedEvent holds the typed parameters of one log, in ABI input order.
type DecodedEvent struct {
	Name   string
	Params []any
}
