// Package chain defines the interface required for the blockchain connection.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction status constants
const (
	TrxReverted uint8 = 0
	TrxSuccess  uint8 = 1
)

// Receipt contains the fields of a mined transaction the wallet cares about.
type Receipt struct {
	Hash   common.Hash `json:"hash"`
	Block  uint64      `json:"block"`
	Status uint8       `json:"status"`
	Fee    *big.Int    `json:"fee"` // gas used * effective price
}

// Errors returned
var (
	ErrNotMined   = errors.New("transaction not mined yet")
	ErrNoResolver = errors.New("name could not be resolved")
)

// Client is an interface with the chain operations the wallet needs. It has been designed to be as much standard as
// possible, network transport and retries are the implementation's responsibility.
type Client interface {
	// read methods
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, from, to common.Address, value *big.Int) (uint64, error)
	ResolveName(ctx context.Context, name string) (common.Address, error)
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	// write method
	Send(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (common.Hash, error)
	// member-type methods
	AvgBlock() int // average block mining rate in seconds, used as receipt polling cadence
	Close()
}
