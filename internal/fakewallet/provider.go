package fakewallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/kaifufi/simpledao-client-go/chain"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

// SentTx is a transaction request received by the provider
type SentTx struct {
	From common.Address
	To   common.Address
	Data []byte
}

// Provider is a scripted wallet in front of a Ledger. It implements
// wallet.Provider.
type Provider struct {
	ledger *Ledger

	mu          sync.Mutex
	accounts    []common.Address
	chainID     *big.Int
	knownChains map[uint64]bool
	sent        []SentTx
	switches    []*big.Int

	// Injected failures, returned as-is when set
	RequestErr error
	ChainIDErr error
	SwitchErr  error
	SendErr    error

	// MineReverts mines reverting transactions with a failed status instead
	// of rejecting them at submission
	MineReverts bool

	accountsFeed event.Feed
	chainFeed    event.Feed
}

// NewProvider creates a wallet on chainID holding accounts. The chain is
// registered with the wallet.
func NewProvider(ledger *Ledger, chainID uint64, accounts ...common.Address) *Provider {
	return &Provider{
		ledger:      ledger,
		accounts:    append([]common.Address(nil), accounts...),
		chainID:     new(big.Int).SetUint64(chainID),
		knownChains: map[uint64]bool{chainID: true},
	}
}

// AddChain registers a chain with the wallet so SwitchChain can reach it
func (p *Provider) AddChain(chainID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.knownChains[chainID] = true
}

// SetAccounts changes the authorized accounts and emits accountsChanged
func (p *Provider) SetAccounts(accounts ...common.Address) {
	p.mu.Lock()
	p.accounts = append([]common.Address(nil), accounts...)
	p.mu.Unlock()

	p.accountsFeed.Send(append([]common.Address{}, accounts...))
}

// SetChain moves the wallet to chainID and emits chainChanged
func (p *Provider) SetChain(chainID uint64) {
	id := new(big.Int).SetUint64(chainID)

	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()

	p.chainFeed.Send(new(big.Int).Set(id))
}

// Sent returns the transactions submitted so far
func (p *Provider) Sent() []SentTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentTx(nil), p.sent...)
}

// Switches returns the chains SwitchChain was asked for
func (p *Provider) Switches() []*big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*big.Int(nil), p.switches...)
}

// RequestAccounts implements wallet.Provider
func (p *Provider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RequestErr != nil {
		return nil, p.RequestErr
	}
	return append([]common.Address(nil), p.accounts...), nil
}

// ChainID implements wallet.Provider
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ChainIDErr != nil {
		return nil, p.ChainIDErr
	}
	return new(big.Int).Set(p.chainID), nil
}

// SwitchChain implements wallet.Provider
func (p *Provider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	p.mu.Lock()
	p.switches = append(p.switches, new(big.Int).Set(chainID))
	if p.SwitchErr != nil {
		err := p.SwitchErr
		p.mu.Unlock()
		return err
	}
	if !p.knownChains[chainID.Uint64()] {
		p.mu.Unlock()
		return &wallet.ProviderError{
			Code:    wallet.CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %s", chainID),
		}
	}
	p.mu.Unlock()

	p.SetChain(chainID.Uint64())
	return nil
}

// SendTransaction implements wallet.Provider
func (p *Provider) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	p.mu.Lock()
	p.sent = append(p.sent, SentTx{From: from, To: to, Data: append([]byte(nil), data...)})
	sendErr, mine := p.SendErr, p.MineReverts
	p.mu.Unlock()

	if sendErr != nil {
		return common.Hash{}, sendErr
	}
	return p.ledger.Execute(from, to, data, mine)
}

// SubscribeAccountsChanged implements wallet.Provider
func (p *Provider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

// SubscribeChainChanged implements wallet.Provider
func (p *Provider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// Backend implements wallet.Provider
func (p *Provider) Backend() chain.Backend {
	return p.ledger
}

var _ wallet.Provider = (*Provider)(nil)
