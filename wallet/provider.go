// Package wallet contains the wallet provider capability consumed by the
// connection manager and two implementations of it: a bridge to a browser
// wallet over WebSocket and a local go-ethereum keystore wallet.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/kaifufi/simpledao-client-go/chain"
)

// Provider is the capability a wallet exposes to the client. It mirrors the
// EIP-1193 surface of a browser-injected provider.
type Provider interface {
	// RequestAccounts asks the user to authorize accounts. It may block until
	// the user acts in the wallet UI.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID returns the wallet's active network.
	ChainID(ctx context.Context) (*big.Int, error)

	// SwitchChain asks the wallet to change its active network. The change is
	// reported through the chain-changed subscription, not the return value.
	SwitchChain(ctx context.Context, chainID *big.Int) error

	// SendTransaction signs and submits a call to `to` with the encoded data.
	SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)

	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription

	// Backend is the ledger read side reached through the wallet's node.
	Backend() chain.Backend
}
