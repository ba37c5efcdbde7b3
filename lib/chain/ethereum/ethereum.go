// Implements the chain interface for ethereum networks
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	ens "github.com/wealdtech/go-ens/v3"

	"github.com/miniwallet/miniwallet/lib/chain"
)

// Ethereum implements a connection to an ethereum-type chain.
type Ethereum struct {
	c       *ethclient.Client
	chainID *big.Int
}

// Init returns a connection to an ethereum node. The chain id is read once at connection time and reused for signing.
func Init(node string) (*Ethereum, error) {
	c, err := ethclient.Dial(node)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to ethereum blockchain in %s: %w", node, err)
	}
	id, err := c.ChainID(context.Background())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("cannot read chain id from %s: %w", node, err)
	}
	return &Ethereum{c: c, chainID: id}, nil
}

// AvgBlock returns the average time to mine a block in seconds.
func (e *Ethereum) AvgBlock() int {
	return 12 // we could put this in the config file...
}

// Close ends a connection
func (e *Ethereum) Close() {
	e.c.Close()
}

// Balance returns the ether balance of the address in wei.
func (e *Ethereum) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return e.c.BalanceAt(ctx, addr, nil)
}

// GasPrice returns the current suggested gas price in wei.
func (e *Ethereum) GasPrice(ctx context.Context) (*big.Int, error) {
	return e.c.SuggestGasPrice(ctx)
}

// EstimateGas returns the gas units needed to transfer value from one address to another.
func (e *Ethereum) EstimateGas(ctx context.Context, from, to common.Address, value *big.Int) (uint64, error) {
	return e.c.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value})
}

// ResolveName resolves an ENS name to its registered address.
func (e *Ethereum) ResolveName(ctx context.Context, name string) (common.Address, error) {
	addr, err := ens.Resolve(e.c, name)
	if err != nil {
		return common.Address{}, chain.ErrNoResolver
	}
	return addr, nil
}

// Send signs an ether transfer with the given key and submits it, returning the transaction hash. The nonce, gas
// limit and gas price are fetched from the node at submission time.
func (e *Ethereum) Send(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := e.c.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not get nonce: %w", err)
	}
	price, err := e.c.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not get gas price: %w", err)
	}
	gas, err := e.c.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value})
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not estimate gas: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: price,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not sign transaction: %w", err)
	}
	if err = e.c.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("could not send transaction: %w", err)
	}
	return signed.Hash(), nil
}

// Receipt returns the receipt of a mined transaction, or chain.ErrNotMined while the transaction is still pending.
func (e *Ethereum) Receipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	r, err := e.c.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, chain.ErrNotMined
	}
	if err != nil {
		return nil, err
	}
	rec := &chain.Receipt{Hash: hash, Status: chain.TrxReverted}
	if r.Status == types.ReceiptStatusSuccessful {
		rec.Status = chain.TrxSuccess
	}
	if r.BlockNumber != nil {
		rec.Block = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		rec.Fee = new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	}
	return rec, nil
}
