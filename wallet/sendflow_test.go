package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miniwallet/miniwallet/lib/chain"
	"github.com/miniwallet/miniwallet/lib/msg"
	"github.com/miniwallet/miniwallet/lib/store/memory"
)

func newTestFlow(t *testing.T) (*SendFlow, *SessionManager, *fakeChain) {
	t.Helper()
	fc := newFakeChain()
	m := NewSessionManager(fc, memory.New(), time.Hour)
	if _, err := m.Import(context.Background(), testKeyA); err != nil {
		t.Fatalf("cannot import key:%e", err)
	}
	return NewSendFlow(fc, m, nil), m, fc
}

func TestResolveRecipient(t *testing.T) {
	f, _, fc := newTestFlow(t)
	alice := common.HexToAddress("0xCBA75F167B03E34B8A572C50273C082401B073ED")
	fc.names["alice.eth"] = alice

	tests := []struct {
		name string
		to   string
		want common.Address
		ok   bool
	}{
		{"hex address", alice.Hex(), alice, true},
		{"lowercase hex address", "0xcba75f167b03e34b8a572c50273c082401b073ed", alice, true},
		{"registered name", "alice.eth", alice, true},
		{"unregistered name", "bob.eth", common.Address{}, false},
		{"garbage", "not an address", common.Address{}, false},
		{"truncated address", "0xCBA75F167B03E34B", common.Address{}, false},
		{"empty", "", common.Address{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := f.ResolveRecipient(context.Background(), tt.to)
			if tt.ok {
				if err != nil {
					t.Fatalf("cannot resolve %q:%e", tt.to, err)
				}
				if addr != tt.want {
					t.Errorf("resolved %s, expected %s", addr.Hex(), tt.want.Hex())
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected a validation error for %q, got %v", tt.to, err)
			}
		})
	}
}

// A resolution-service outage is reported as a user-correctable validation error, not an internal one.
func TestResolveServiceFailure(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.resolveErr = errors.New("resolver unreachable")

	_, err := f.ResolveRecipient(context.Background(), "alice.eth")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount string
		wei    string // "" means a validation error is expected
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{"0.000000000000000001", "1"},
		{"2.75", "2750000000000000000"},
		{"0", ""},
		{"-1", ""},
		{"0.0000000000000000001", ""}, // below one wei
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			wei, err := parseAmount(tt.amount)
			if tt.wei == "" {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected a validation error for %q, got %v", tt.amount, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("cannot parse %q:%e", tt.amount, err)
			}
			if wei.String() != tt.wei {
				t.Errorf("parsed %q to %s wei, expected %s", tt.amount, wei, tt.wei)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.gas = 21000
	fc.gasPrice = big.NewInt(2)
	to := "0xCBA75F167B03E34B8A572C50273C082401B073ED"

	fee, err := f.EstimateCost(context.Background(), to, "1")
	if err != nil {
		t.Fatalf("cannot estimate cost:%e", err)
	}
	if fee.Cmp(big.NewInt(42000)) != 0 {
		t.Errorf("fee is %s, expected 42000", fee)
	}
}

// Invalid inputs must be rejected before any network call is made.
func TestEstimateRejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		to     string
		amount string
	}{
		{"bad amount", "0xCBA75F167B03E34B8A572C50273C082401B073ED", "-1"},
		{"bad recipient", "nope", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _, fc := newTestFlow(t)
			before := fc.count("estimateGas") + fc.count("gasPrice")

			_, err := f.EstimateCost(context.Background(), tt.to, tt.amount)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if after := fc.count("estimateGas") + fc.count("gasPrice"); after != before {
				t.Errorf("estimation touched the network on invalid input")
			}
		})
	}
}

func TestEstimateUnavailable(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.estimateErr = errors.New("node overloaded")

	_, err := f.EstimateCost(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if !errors.Is(err, ErrFeeUnavailable) {
		t.Errorf("expected ErrFeeUnavailable, got %v", err)
	}
}

func TestSubmitTransferConfirmed(t *testing.T) {
	f, m, fc := newTestFlow(t)
	fc.setBalance(big.NewInt(2000000000000000000)) // 2 ether
	fc.notMined = 3                                // receipt appears on the fourth poll
	fc.receipt = &chain.Receipt{Status: chain.TrxSuccess, Block: 100, Fee: big.NewInt(21000)}

	res, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if err != nil {
		t.Fatalf("cannot submit transfer:%e", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Errorf("outcome is %s, expected confirmed", res.Outcome)
	}
	if res.Hash != fc.hash {
		t.Errorf("result hash is %s, expected %s", res.Hash.Hex(), fc.hash.Hex())
	}
	if fc.count("receipt") < 4 {
		t.Errorf("receipt polled %d times, expected at least 4", fc.count("receipt"))
	}
	if f.State() != StateIdle {
		t.Errorf("flow not idle after confirmation")
	}
	// the balance was refreshed after the transfer confirmed
	if _, err = m.Balance(); err != nil {
		t.Errorf("cannot read balance after transfer:%v", err)
	}
}

func TestSubmitTransferReverted(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.setBalance(big.NewInt(2000000000000000000))
	fc.receipt = &chain.Receipt{Status: chain.TrxReverted, Block: 100, Fee: big.NewInt(21000)}

	res, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if err != nil {
		t.Fatalf("cannot submit transfer:%e", err)
	}
	if res.Outcome != OutcomeReverted {
		t.Errorf("outcome is %s, expected reverted", res.Outcome)
	}
}

// Insufficient funds must be caught before anything is broadcast.
func TestSubmitInsufficientFunds(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.setBalance(big.NewInt(1000)) // far below 1 ether plus fee

	_, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if fc.count("send") != 0 {
		t.Errorf("transfer broadcast despite insufficient funds")
	}
	if f.State() != StateIdle {
		t.Errorf("flow not idle after rejected submission")
	}
}

// When the fee estimate is unavailable the submission proceeds with a zero fee, so a balance exactly covering the
// amount passes the funds check.
func TestSubmitWithFeeUnavailable(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.estimateErr = errors.New("node overloaded")
	fc.setBalance(big.NewInt(1000000000000000000)) // exactly 1 ether
	fc.receipt = &chain.Receipt{Status: chain.TrxSuccess, Block: 100, Fee: big.NewInt(21000)}

	res, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if err != nil {
		t.Fatalf("cannot submit transfer with unavailable fee:%e", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Errorf("outcome is %s, expected confirmed", res.Outcome)
	}
}

func TestSubmitBroadcastFailure(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.setBalance(big.NewInt(2000000000000000000))
	fc.sendErr = errors.New("nonce too low")

	_, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if err == nil {
		t.Fatalf("expected a broadcast error")
	}
	if f.State() != StateIdle {
		t.Errorf("flow not idle after failed broadcast")
	}
}

// Only one submission may be in flight; a second one is rejected while the first waits for its receipt.
func TestSubmitInFlightGuard(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.setBalance(big.NewInt(2000000000000000000))
	fc.receipt = &chain.Receipt{Status: chain.TrxSuccess, Block: 100, Fee: big.NewInt(21000)}
	fc.sendGate = make(chan struct{})
	fc.sendStarted = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
		done <- err
	}()

	<-fc.sendStarted
	if _, err := f.SubmitTransfer(context.Background(), "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1"); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("expected ErrSubmitInFlight, got %v", err)
	}

	close(fc.sendGate)
	if err := <-done; err != nil {
		t.Errorf("first submission failed:%v", err)
	}
}

// Every submitted transfer publishes its lifecycle to the broker: one event on broadcast and one on the terminal
// outcome, carrying the transfer fields.
func TestTransferEventsPublished(t *testing.T) {
	fc := newFakeChain()
	m := NewSessionManager(fc, memory.New(), time.Hour)
	if _, err := m.Import(context.Background(), testKeyA); err != nil {
		t.Fatalf("cannot import key:%e", err)
	}
	fb := &fakeBroker{}
	f := NewSendFlow(fc, m, fb)
	fc.setBalance(big.NewInt(4000000000000000000)) // 4 ether
	fc.receipt = &chain.Receipt{Status: chain.TrxSuccess, Block: 100, Fee: big.NewInt(21000)}
	to := "0xCBA75F167B03E34B8A572C50273C082401B073ED"

	if _, err := f.SubmitTransfer(context.Background(), to, "1"); err != nil {
		t.Fatalf("cannot submit transfer:%e", err)
	}
	if got := fb.outcomes(); len(got) != 2 || got[0] != msg.Submitted || got[1] != msg.Confirmed {
		t.Fatalf("published outcomes are %v, expected [submitted confirmed]", got)
	}

	// the events carry the transfer fields
	from, _ := m.Address()
	e := fb.events[0]
	if e.Hash != fc.hash.Hex() || e.From != from.Hex() || e.To != common.HexToAddress(to).Hex() ||
		e.Value != "1000000000000000000" {
		t.Errorf("published event does not match the transfer:%+v", e)
	}

	// a reverted transfer publishes its terminal outcome too
	fc.receipt = &chain.Receipt{Status: chain.TrxReverted, Block: 101, Fee: big.NewInt(21000)}
	if _, err := f.SubmitTransfer(context.Background(), to, "1"); err != nil {
		t.Fatalf("cannot submit transfer:%e", err)
	}
	if got := fb.outcomes(); len(got) != 4 || got[2] != msg.Submitted || got[3] != msg.Reverted {
		t.Errorf("published outcomes are %v, expected [... submitted reverted]", got)
	}

	// the recorded stream reads back in publication order
	eves, _, err := fb.GetEvents(nil)
	if err != nil {
		t.Fatalf("cannot consume events:%e", err)
	}
	var n int
	for range eves {
		n++
	}
	if n != 4 {
		t.Errorf("consumed %d events, expected 4", n)
	}
}

// A cancelled wait leaves the transfer pending: the hash is reported and no terminal outcome is claimed.
func TestSubmitPendingOnCancel(t *testing.T) {
	f, _, fc := newTestFlow(t)
	fc.setBalance(big.NewInt(2000000000000000000))
	fc.notMined = 1 << 30 // never mined within the test

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := f.SubmitTransfer(ctx, "0xCBA75F167B03E34B8A572C50273C082401B073ED", "1")
	if err != nil {
		t.Fatalf("cancelled wait returned an error:%e", err)
	}
	if res.Outcome != OutcomePending {
		t.Errorf("outcome is %s, expected pending", res.Outcome)
	}
	if res.Hash != fc.hash {
		t.Errorf("pending result missing the transaction hash")
	}
}
