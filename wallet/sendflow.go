package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/miniwallet/miniwallet/lib/chain"
	"github.com/miniwallet/miniwallet/lib/msg"
)

// SendState is the stage a submission is in. The flow moves Idle -> Validating -> Estimating -> Submitting ->
// AwaitingConfirmation; failures before submission return to Idle with no side effects, while anything after a
// successful broadcast is irreversible.
type SendState uint8

const (
	StateIdle SendState = iota
	StateValidating
	StateEstimating
	StateSubmitting
	StateAwaitingConfirmation
)

// Outcome of a submitted transfer.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReverted  Outcome = "reverted"
	OutcomePending   Outcome = "pending"
)

// Result reports the outcome of a submission. Hash is set as soon as the transfer is broadcast.
type Result struct {
	Hash    common.Hash `json:"hash"`
	Outcome Outcome     `json:"outcome"`
}

// Errors returned by the send flow.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for amount plus fee")
	ErrSubmitInFlight    = errors.New("a submission is already in flight")
	ErrFeeUnavailable    = errors.New("fee estimate unavailable")
)

// SendFlow drives a transfer from form input to confirmation: recipient resolution, cost estimation, funds check,
// submission and receipt polling. At most one submission is in flight per session.
type SendFlow struct {
	mu       sync.Mutex
	state    SendState
	chain    chain.Client
	sessions *SessionManager
	mb       msg.MsgBroker // optional, may be nil
	poll     time.Duration
}

// NewSendFlow returns a send flow polling receipts at the chain's average block rate.
func NewSendFlow(c chain.Client, sessions *SessionManager, mb msg.MsgBroker) *SendFlow {
	return &SendFlow{
		chain:    c,
		sessions: sessions,
		mb:       mb,
		poll:     time.Duration(c.AvgBlock()) * time.Second,
	}
}

// State returns the current submission state.
func (f *SendFlow) State() SendState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *SendFlow) setState(s SendState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// ResolveRecipient resolves a name-service name (".eth" suffix) through the chain client, or validates text as a
// syntactically well-formed address. A resolution-service failure is downgraded to a validation error.
func (f *SendFlow) ResolveRecipient(ctx context.Context, text string) (common.Address, error) {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, ".eth") {
		addr, err := f.chain.ResolveName(ctx, text)
		if err != nil {
			return common.Address{}, &ValidationError{Field: "to", Msg: "name could not be resolved"}
		}
		return addr, nil
	}
	if !common.IsHexAddress(text) {
		return common.Address{}, &ValidationError{Field: "to", Msg: "not a valid address or name"}
	}
	return common.HexToAddress(text), nil
}

// parseAmount converts a strictly-positive decimal ether amount to wei.
func parseAmount(text string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return nil, &ValidationError{Field: "amount", Msg: "not a number"}
	}
	if d.Sign() <= 0 {
		return nil, &ValidationError{Field: "amount", Msg: "amount must be greater than 0"}
	}
	wei := d.Shift(18)
	if !wei.IsInteger() {
		return nil, &ValidationError{Field: "amount", Msg: "amount has more than 18 decimal places"}
	}
	return wei.BigInt(), nil
}

// EstimateCost validates the inputs and returns the estimated network fee for the transfer in wei (gas estimate
// times gas price). Validation failures are reported without touching the network. If estimation itself fails,
// ErrFeeUnavailable is returned: callers treat that as a zero fee downstream but must still re-validate at submit
// time.
func (f *SendFlow) EstimateCost(ctx context.Context, to, amount string) (*big.Int, error) {
	wei, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	recipient, err := f.ResolveRecipient(ctx, to)
	if err != nil {
		return nil, err
	}
	from, err := f.sessions.Address()
	if err != nil {
		return nil, err
	}

	gas, err := f.chain.EstimateGas(ctx, from, recipient, wei)
	if err != nil {
		return nil, ErrFeeUnavailable
	}
	price, err := f.chain.GasPrice(ctx)
	if err != nil {
		return nil, ErrFeeUnavailable
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), price), nil
}

// SubmitTransfer re-validates the inputs, checks the balance covers amount plus the current fee estimate, submits
// the transfer and polls for its receipt. Terminal outcomes are confirmed, reverted, or an error before broadcast;
// if the network stalls the transfer stays pending (no timeout is imposed, but the context can end the wait).
func (f *SendFlow) SubmitTransfer(ctx context.Context, to, amount string) (*Result, error) {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	f.state = StateValidating
	f.mu.Unlock()
	defer f.setState(StateIdle)

	// never trust form state captured earlier: inputs may have changed since estimation
	recipient, err := f.ResolveRecipient(ctx, to)
	if err != nil {
		return nil, err
	}
	wei, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	key, from, err := f.sessions.credential()
	if err != nil {
		return nil, err
	}

	f.setState(StateEstimating)
	fee, err := f.EstimateCost(ctx, to, amount)
	if errors.Is(err, ErrFeeUnavailable) {
		fee = new(big.Int)
	} else if err != nil {
		return nil, err
	}

	total := new(big.Int).Add(wei, fee)
	bal, err := f.chain.Balance(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("could not check balance: %w", err)
	}
	if bal.Cmp(total) < 0 {
		return nil, ErrInsufficientFunds
	}

	f.setState(StateSubmitting)
	hash, err := f.chain.Send(ctx, key, recipient, wei)
	if err != nil {
		// nothing was broadcast: back to idle with no partial state
		return nil, fmt.Errorf("could not submit transfer: %w", err)
	}

	// the transfer is broadcast, the flow is irreversible from here on
	f.setState(StateAwaitingConfirmation)
	f.publish(hash, from, recipient, wei, msg.Submitted)

	res := &Result{Hash: hash, Outcome: OutcomePending}
	for {
		rec, errRec := f.chain.Receipt(ctx, hash)
		switch {
		case errRec == nil:
			if rec.Status == chain.TrxSuccess {
				res.Outcome = OutcomeConfirmed
				f.publish(hash, from, recipient, wei, msg.Confirmed)
			} else {
				res.Outcome = OutcomeReverted
				f.publish(hash, from, recipient, wei, msg.Reverted)
			}
			if err = f.sessions.RefreshBalance(ctx); err != nil && !errors.Is(err, ErrNoSession) {
				log.Printf("Error refreshing balance after transfer %s:%e", hash.Hex(), err)
			}
			return res, nil
		case errors.Is(errRec, chain.ErrNotMined):
			// keep waiting
		default:
			log.Printf("Error polling receipt for %s:%e", hash.Hex(), errRec)
		}

		select {
		case <-ctx.Done():
			return res, nil // still pending, may confirm later
		case <-time.After(f.poll):
		}
	}
}

// receiptOutcome looks up the confirmation status of a previously submitted transfer.
func (w *Wallet) receiptOutcome(ctx context.Context, hash string) (Outcome, error) {
	rec, err := w.chain.Receipt(ctx, common.HexToHash(hash))
	if errors.Is(err, chain.ErrNotMined) {
		return OutcomePending, nil
	}
	if err != nil {
		return "", err
	}
	if rec.Status == chain.TrxSuccess {
		return OutcomeConfirmed, nil
	}
	return OutcomeReverted, nil
}

func (f *SendFlow) publish(hash common.Hash, from, to common.Address, wei *big.Int, outcome string) {
	if f.mb == nil {
		return
	}
	e := msg.TransferEvent{Hash: hash.Hex(), From: from.Hex(), To: to.Hex(), Value: wei.String(), Outcome: outcome}
	if err := f.mb.SendEvent(e); err != nil {
		log.Printf("Error publishing transfer event %s:%e", e.Hash, err)
	}
}
