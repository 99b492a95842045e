// Package simpledao is a client for a token-gated SimpleDAO governance
// contract. The Manager tracks the wallet session and derives contract
// bindings from it; proposals are read and submitted through those bindings.
package simpledao

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/kaifufi/simpledao-client-go/chain"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

const (
	defaultFetchConcurrency = 8
	notificationBufferSize  = 16
)

// Manager owns the wallet session, the contract bindings derived from it and
// the voting power flag. All state changes go through the manager and are
// published as immutable State snapshots.
type Manager struct {
	provider     wallet.Provider
	target       Network
	contracts    chain.Addresses
	now          func() time.Time
	concurrency  int
	pollInterval time.Duration

	mu    sync.RWMutex
	state State
	busy  int

	stateFeed event.Feed

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager creates a manager with an empty session
func NewManager(config ManagerConfig) (*Manager, error) {
	target := TargetNetwork
	if config.Target != nil {
		target = *config.Target
	}

	var contracts chain.Addresses
	if config.Contracts != nil {
		contracts = *config.Contracts
	} else {
		addrs, ok := DefaultContractAddresses[target.ChainID]
		if !ok {
			return nil, fmt.Errorf("no contract addresses for chain %d", target.ChainID)
		}
		contracts = addrs
	}

	if config.Now == nil {
		config.Now = time.Now
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = defaultFetchConcurrency
	}

	return &Manager{
		provider:     config.Provider,
		target:       target,
		contracts:    contracts,
		now:          config.Now,
		concurrency:  config.FetchConcurrency,
		pollInterval: config.ReceiptPollInterval,
		inflight:     make(map[string]struct{}),
	}, nil
}

// Target returns the network the manager binds contracts on
func (m *Manager) Target() Network {
	return m.target
}

// State returns the current snapshot
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SubscribeState delivers every new snapshot to ch. Snapshots are sent
// synchronously, so ch must be drained.
func (m *Manager) SubscribeState(ch chan<- State) event.Subscription {
	return m.stateFeed.Subscribe(ch)
}

// Start consumes the provider's account and chain notifications until Close
func (m *Manager) Start() error {
	if m.provider == nil {
		return ErrProviderUnavailable
	}

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cancel != nil {
		return nil
	}

	accountsCh := make(chan []common.Address, notificationBufferSize)
	chainCh := make(chan *big.Int, notificationBufferSize)
	accountsSub := m.provider.SubscribeAccountsChanged(accountsCh)
	chainSub := m.provider.SubscribeChainChanged(chainCh)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.notificationLoop(ctx, accountsCh, chainCh, accountsSub, chainSub)
	return nil
}

// Close stops consuming notifications
func (m *Manager) Close() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}

func (m *Manager) notificationLoop(ctx context.Context, accountsCh <-chan []common.Address, chainCh <-chan *big.Int,
	accountsSub, chainSub event.Subscription) {

	defer close(m.done)
	defer accountsSub.Unsubscribe()
	defer chainSub.Unsubscribe()

	for {
		select {
		case accounts := <-accountsCh:
			m.HandleAccountsChanged(ctx, accounts)
		case chainID := <-chainCh:
			m.HandleChainChanged(ctx, chainID)
		case err := <-accountsSub.Err():
			if err != nil {
				log.Errorf("Account subscription failed: %v", err)
			}
			return
		case err := <-chainSub.Err():
			if err != nil {
				log.Errorf("Chain subscription failed: %v", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// Connect requests account authorization and establishes a new session,
// replacing any previous one. On a network other than the target the session
// is still established without bindings and a *WrongNetworkError is returned.
func (m *Manager) Connect(ctx context.Context) error {
	if m.provider == nil {
		m.setError(ErrProviderUnavailable)
		return ErrProviderUnavailable
	}

	m.begin()

	accounts, err := m.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = wallet.ErrNoAccounts
	}
	if err != nil {
		err = connectError(err)
		log.Warnf("Wallet connection failed: %v", err)
		m.finish(err, &State{})
		return err
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		err = &QueryError{Op: "get network", Err: err}
		m.finish(err, &State{})
		return err
	}

	var next State
	m.transition(func(State) (State, bool) {
		next = m.derive(accounts[0], chainID)
		if !next.OnTargetNetwork {
			next.Err = &WrongNetworkError{Target: m.target, Current: chainIDUint64(chainID)}
		}
		m.busy--
		return next, true
	})

	log.Infof("Connected %s on chain %v (target: %v)", accounts[0].Hex(), chainID, next.OnTargetNetwork)

	if next.Bindings != nil {
		_ = m.RefreshVotingPower(ctx)
	}
	return next.Err
}

// SwitchNetwork asks the wallet to move to the target network. Bindings are
// rebuilt by the resulting chain-changed notification, not here.
func (m *Manager) SwitchNetwork(ctx context.Context) error {
	if m.provider == nil {
		m.setError(ErrProviderUnavailable)
		return ErrProviderUnavailable
	}

	m.begin()

	err := m.provider.SwitchChain(ctx, m.target.BigID())
	if err != nil {
		kind := ErrSwitchFailed
		switch {
		case errors.Is(err, wallet.ErrUnrecognizedChain):
			kind = ErrUnrecognizedNetwork
		case wallet.IsUserRejection(err):
			kind = ErrSwitchRejected
		}
		err = &SwitchError{Target: m.target, Kind: kind, Err: err}
		log.Warnf("Network switch failed: %v", err)
	}

	m.finish(err, nil)
	return err
}

// Disconnect clears the session and everything derived from it. The wallet
// is not contacted.
func (m *Manager) Disconnect() {
	m.transition(func(State) (State, bool) {
		return State{}, true
	})
	log.Infof("Disconnected")
}

// RefreshVotingPower re-reads the account's token balance. Any failure
// leaves VotingPower false.
func (m *Manager) RefreshVotingPower(ctx context.Context) error {
	cur := m.State()
	if cur.Bindings == nil {
		m.transition(func(s State) (State, bool) {
			if s.Bindings != nil || (!s.VotingPower && s.TokenBalance == nil) {
				return s, false
			}
			s.VotingPower = false
			s.TokenBalance = nil
			return s, true
		})
		return ErrNotConnected
	}

	balance, err := cur.Bindings.Token.BalanceOf(ctx, cur.Account)
	if err != nil {
		log.Warnf("Failed to fetch token balance for %s: %v", cur.Account.Hex(), err)
	}

	m.transition(func(s State) (State, bool) {
		// The session moved on while the query was outstanding.
		if s.Bindings != cur.Bindings {
			return s, false
		}
		if err != nil {
			s.VotingPower = false
			s.TokenBalance = nil
			return s, true
		}
		s.TokenBalance = balance
		s.VotingPower = balance.Sign() > 0
		return s, true
	})

	if err != nil {
		return &QueryError{Op: "balanceOf", Err: err}
	}
	return nil
}

// HandleAccountsChanged applies an accounts-changed notification. An empty
// list ends the session; otherwise the first account is adopted and
// everything derived is rebuilt from scratch.
func (m *Manager) HandleAccountsChanged(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		log.Infof("Wallet reported no accounts")
		m.Disconnect()
		return
	}

	next, changed := m.transition(func(cur State) (State, bool) {
		if !cur.Connected() {
			return cur, false
		}
		next := m.derive(accounts[0], cur.ChainID)
		if !next.OnTargetNetwork {
			next.Err = cur.Err
		}
		return next, true
	})
	if !changed {
		log.Debugf("Ignoring accounts change without a session")
		return
	}

	log.Infof("Account changed to %s", accounts[0].Hex())
	if next.Bindings != nil {
		_ = m.RefreshVotingPower(ctx)
	}
}

// HandleChainChanged applies a chain-changed notification. The network is
// re-read from the wallet; the notified id is used if that fails.
func (m *Manager) HandleChainChanged(ctx context.Context, notified *big.Int) {
	if !m.State().Connected() {
		log.Debugf("Ignoring chain change to %v without a session", notified)
		return
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		log.Warnf("Failed to re-read network, using notified chain %v: %v", notified, err)
		chainID = notified
	}

	next, changed := m.transition(func(cur State) (State, bool) {
		if !cur.Connected() {
			return cur, false
		}
		next := m.derive(cur.Account, chainID)
		if !next.OnTargetNetwork {
			next.Err = &WrongNetworkError{Target: m.target, Current: chainIDUint64(chainID), Switched: true}
		}
		return next, true
	})
	if !changed {
		return
	}

	log.Infof("Network changed to %v (target: %v)", chainID, next.OnTargetNetwork)
	if next.Bindings != nil {
		_ = m.RefreshVotingPower(ctx)
	}
}

// derive builds a session for account on chainID from scratch: a new signer,
// bindings only on the target network, voting power unproven.
func (m *Manager) derive(account common.Address, chainID *big.Int) State {
	next := State{
		Account:         account,
		ChainID:         chainID,
		OnTargetNetwork: m.target.Matches(chainID),
		Signer:          chain.NewSigner(account, m.provider),
	}
	if !next.OnTargetNetwork {
		return next
	}

	bindings, err := chain.NewBindings(m.contracts, m.provider.Backend(), next.Signer)
	if err != nil {
		log.Errorf("Failed to initialize contracts: %v", err)
		next.Err = fmt.Errorf("failed to initialize smart contracts: %w", err)
		return next
	}
	next.Bindings = bindings
	return next
}

// transition applies fn to the current snapshot under the lock and
// publishes the result. fn returns false to leave the state untouched.
func (m *Manager) transition(fn func(cur State) (State, bool)) (State, bool) {
	m.mu.Lock()
	next, ok := fn(m.state)
	if !ok {
		cur := m.state
		m.mu.Unlock()
		return cur, false
	}
	next.Loading = m.busy > 0
	m.state = next
	m.mu.Unlock()

	m.stateFeed.Send(next)
	return next, true
}

// begin marks an operation as started and clears the previous error
func (m *Manager) begin() {
	m.transition(func(s State) (State, bool) {
		m.busy++
		s.Err = nil
		return s, true
	})
}

// finish marks an operation as done with err. A non-nil replacement
// becomes the new session.
func (m *Manager) finish(err error, replacement *State) {
	m.transition(func(s State) (State, bool) {
		m.busy--
		if replacement != nil {
			s = *replacement
		}
		s.Err = err
		return s, true
	})
}

func (m *Manager) setError(err error) {
	m.transition(func(s State) (State, bool) {
		s.Err = err
		return s, true
	})
}

// acquire claims key for one in-flight submission
func (m *Manager) acquire(key string) (func(), error) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()

	if _, ok := m.inflight[key]; ok {
		return nil, ErrRequestInFlight
	}
	m.inflight[key] = struct{}{}

	return func() {
		m.inflightMu.Lock()
		delete(m.inflight, key)
		m.inflightMu.Unlock()
	}, nil
}

func connectError(err error) error {
	switch {
	case wallet.IsUserRejection(err), errors.Is(err, wallet.ErrNoAccounts):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case errors.Is(err, wallet.ErrDisconnected):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("failed to connect wallet: %w", err)
	}
}

func chainIDUint64(chainID *big.Int) uint64 {
	if chainID == nil || !chainID.IsUint64() {
		return 0
	}
	return chainID.Uint64()
}
