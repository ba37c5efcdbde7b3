package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miniwallet/miniwallet/lib/chain"
	"github.com/miniwallet/miniwallet/lib/msg"
)

// fakeChain is an in-memory chain.Client double for the wallet tests. The zero polling cadence keeps receipt loops
// fast; the hook lets a test mutate session state from inside a balance query to exercise in-flight interleavings.
type fakeChain struct {
	mu          sync.Mutex
	balance     *big.Int
	gasPrice    *big.Int
	gas         uint64
	names       map[string]common.Address
	receipt     *chain.Receipt
	notMined    int // remaining receipt polls replying not-mined before receipt is served
	hash        common.Hash
	balanceErr  error
	priceErr    error
	estimateErr error
	resolveErr  error
	sendErr     error
	receiptErr  error
	calls       map[string]int
	balanceHook func()
	sendGate    chan struct{} // when set, Send blocks until the gate is closed
	sendStarted chan struct{}
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balance:  big.NewInt(0),
		gasPrice: big.NewInt(1),
		gas:      21000,
		names:    make(map[string]common.Address),
		hash:     common.HexToHash("0xb00000000000000000000000000000000000000000000000000000000000beef"),
		calls:    make(map[string]int),
	}
}

func (f *fakeChain) setBalance(wei *big.Int) {
	f.mu.Lock()
	f.balance = new(big.Int).Set(wei)
	f.mu.Unlock()
}

func (f *fakeChain) setHook(h func()) {
	f.mu.Lock()
	f.balanceHook = h
	f.mu.Unlock()
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.calls["balance"]++
	val := new(big.Int).Set(f.balance)
	err := f.balanceErr
	hook := f.balanceHook
	f.mu.Unlock()
	// the hook runs after the reply value is captured, so its mutations model a response already in flight
	if hook != nil {
		hook()
	}
	return val, err
}

func (f *fakeChain) GasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["gasPrice"]++
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, from, to common.Address, value *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["estimateGas"]++
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.gas, nil
}

func (f *fakeChain) ResolveName(ctx context.Context, name string) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["resolveName"]++
	if f.resolveErr != nil {
		return common.Address{}, f.resolveErr
	}
	addr, ok := f.names[name]
	if !ok {
		return common.Address{}, chain.ErrNoResolver
	}
	return addr, nil
}

func (f *fakeChain) Receipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["receipt"]++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.notMined > 0 {
		f.notMined--
		return nil, chain.ErrNotMined
	}
	if f.receipt == nil {
		return nil, chain.ErrNotMined
	}
	r := *f.receipt
	r.Hash = hash
	return &r, nil
}

func (f *fakeChain) Send(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (common.Hash, error) {
	f.mu.Lock()
	f.calls["send"]++
	err := f.sendErr
	hash := f.hash
	gate, started := f.sendGate, f.sendStarted
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (f *fakeChain) AvgBlock() int { return 0 }

func (f *fakeChain) Close() {}

// fakeBroker records published transfer events instead of talking to a real broker.
type fakeBroker struct {
	mu     sync.Mutex
	events []msg.TransferEvent
}

func (f *fakeBroker) Setup(x interface{}) error { return nil }

func (f *fakeBroker) Close() error { return nil }

func (f *fakeBroker) SendEvent(e msg.TransferEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeBroker) GetEvents(mut *sync.Mutex) (<-chan msg.TransferEvent, <-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eves := make(chan msg.TransferEvent, len(f.events))
	for _, e := range f.events {
		eves <- e
	}
	close(eves)
	return eves, make(chan error), nil
}

// outcomes returns the published event outcomes, in order.
func (f *fakeBroker) outcomes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Outcome
	}
	return out
}
