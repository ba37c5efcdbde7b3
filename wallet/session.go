package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/miniwallet/miniwallet/lib/chain"
	"github.com/miniwallet/miniwallet/lib/store"
)

const rawKeyLen = 66 // "0x" + 32 bytes of hex

// ValidationError is a user-correctable, field-scoped input error. An operation returning one has had no side
// effects.
type ValidationError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

// ErrNoSession is returned by operations that need an active credential when there is none.
var ErrNoSession = errors.New("no active session")

// session holds the active credential and the state derived from it.
type session struct {
	key     *ecdsa.PrivateKey
	address common.Address
	balance *big.Int
	epoch   uint64
	done    chan struct{} // closed when the session is replaced or ended
}

// SessionManager owns the active credential, derives its public address and mediates all chain reads for it. One
// session is active at a time: installing a new one always cancels the previous refresh timer, and an epoch counter
// makes sure responses still in flight for a replaced session are discarded instead of applied.
type SessionManager struct {
	mu      sync.Mutex
	chain   chain.Client
	keys    store.SessionStore
	refresh time.Duration
	epoch   uint64
	cur     *session
}

// NewSessionManager returns a session manager refreshing the balance every refresh interval.
func NewSessionManager(c chain.Client, keys store.SessionStore, refresh time.Duration) *SessionManager {
	return &SessionManager{chain: c, keys: keys, refresh: refresh}
}

// Create generates a fresh credential, persists its raw key to the session store and activates it. A generation
// failure is fatal to this operation and reported, not retried.
func (m *SessionManager) Create(ctx context.Context) (common.Address, error) {
	k, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	raw := "0x" + hex.EncodeToString(crypto.FromECDSA(k))
	if err = m.keys.PutKey(raw); err != nil {
		return common.Address{}, err
	}
	return m.activate(ctx, k), nil
}

// Import validates rawKey and activates it as the session credential. On a validation failure no state is mutated.
// The raw key is never echoed back to the caller.
func (m *SessionManager) Import(ctx context.Context, rawKey string) (common.Address, error) {
	k, err := parseKey(rawKey)
	if err != nil {
		return common.Address{}, err
	}
	if err = m.keys.PutKey(rawKey); err != nil {
		return common.Address{}, err
	}
	return m.activate(ctx, k), nil
}

// Restore re-activates a previously persisted key, if any. A malformed stored value is cleared and no session is
// activated, without error.
func (m *SessionManager) Restore(ctx context.Context) (common.Address, bool, error) {
	raw, err := m.keys.GetKey()
	if errors.Is(err, store.ErrNoKey) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	k, err := parseKey(raw)
	if err != nil {
		_ = m.keys.DeleteKey()
		return common.Address{}, false, nil
	}
	return m.activate(ctx, k), true, nil
}

// End clears the persisted key, cancels the refresh timer and resets all session state.
func (m *SessionManager) End() error {
	err := m.keys.DeleteKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()
	return err
}

// dropLocked retires the current session. Callers hold m.mu.
func (m *SessionManager) dropLocked() {
	if m.cur != nil {
		close(m.cur.done)
		m.cur = nil
	}
	m.epoch++
}

// activate installs k as the active session and starts the periodic balance refresh. Only one refresh loop runs per
// manager: any previous timer is cancelled first.
func (m *SessionManager) activate(ctx context.Context, k *ecdsa.PrivateKey) common.Address {
	m.mu.Lock()
	m.dropLocked()
	s := &session{
		key:     k,
		address: crypto.PubkeyToAddress(k.PublicKey),
		balance: new(big.Int),
		epoch:   m.epoch,
		done:    make(chan struct{}),
	}
	m.cur = s
	m.mu.Unlock()

	// initial fetch, then periodic refresh
	if err := m.RefreshBalance(ctx); err != nil {
		log.Printf("Error fetching initial balance for %s:%e", s.address.Hex(), err)
	}
	go m.refreshLoop(s.done)

	return s.address
}

func (m *SessionManager) refreshLoop(done chan struct{}) {
	t := time.NewTicker(m.refresh)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := m.RefreshBalance(context.Background()); err != nil && !errors.Is(err, ErrNoSession) {
				log.Printf("Error refreshing balance:%e", err)
			}
		}
	}
}

// RefreshBalance queries the chain for the active address's balance. It is idempotent and safe to interleave with
// the periodic refresh: the balance is a scalar overwrite, so the last response to arrive wins. A response belonging
// to a session that has since been replaced is discarded.
func (m *SessionManager) RefreshBalance(ctx context.Context) error {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	addr, epoch := m.cur.address, m.cur.epoch
	m.mu.Unlock()

	bal, err := m.chain.Balance(ctx, addr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.epoch != epoch {
		return nil // session changed while the request was in flight
	}
	m.cur.balance = bal
	return nil
}

// Address returns the address of the active session.
func (m *SessionManager) Address() (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return common.Address{}, ErrNoSession
	}
	return m.cur.address, nil
}

// Balance returns the last fetched balance of the active session, in wei.
func (m *SessionManager) Balance() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil, ErrNoSession
	}
	return new(big.Int).Set(m.cur.balance), nil
}

// credential returns the active signing key and its address.
func (m *SessionManager) credential() (*ecdsa.PrivateKey, common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil, common.Address{}, ErrNoSession
	}
	return m.cur.key, m.cur.address, nil
}

// parseKey checks that raw is syntactically well-formed (0x prefix, 32 bytes of hex) and decodes it.
func parseKey(raw string) (*ecdsa.PrivateKey, error) {
	if !strings.HasPrefix(raw, "0x") || len(raw) != rawKeyLen {
		return nil, &ValidationError{Field: "key", Msg: "private key must be 0x followed by 64 hex characters"}
	}
	k, err := crypto.HexToECDSA(raw[2:])
	if err != nil {
		return nil, &ValidationError{Field: "key", Msg: "invalid private key"}
	}
	return k, nil
}
