package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/kaifufi/simpledao-client-go/chain"
)

// ChainClient is the node connection used by the keystore wallet.
// *ethclient.Client satisfies it.
type ChainClient interface {
	bind.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// DialFunc opens a node connection
type DialFunc func(ctx context.Context, url string) (ChainClient, error)

// PassphraseFunc is asked for the passphrase of the account being authorized.
// An empty passphrase is treated as the user declining.
type PassphraseFunc func(account accounts.Account) (string, error)

// ConfirmFunc is asked to approve a transaction before it is signed
type ConfirmFunc func(tx *types.Transaction) (bool, error)

// KeystoreConfig holds configuration for the keystore provider
type KeystoreConfig struct {
	KeyStore *keystore.KeyStore

	// Account selects the keystore account. Zero means the first account.
	Account common.Address

	// Endpoints maps chain ids to node URLs. SwitchChain only succeeds for
	// chains listed here.
	Endpoints map[uint64]string

	// InitialChain is dialed when Client is nil
	InitialChain uint64

	Client     ChainClient
	Dial       DialFunc
	Passphrase PassphraseFunc
	Confirm    ConfirmFunc
}

// KeystoreProvider is a wallet backed by a local go-ethereum keystore that
// talks to a node over JSON-RPC.
type KeystoreProvider struct {
	config KeystoreConfig
	ks     *keystore.KeyStore

	mu         sync.RWMutex
	client     ChainClient
	chainID    *big.Int
	authorized *accounts.Account

	accountsFeed event.Feed
	chainFeed    event.Feed
}

// NewKeystoreProvider creates a keystore wallet connected to the initial chain
func NewKeystoreProvider(ctx context.Context, config KeystoreConfig) (*KeystoreProvider, error) {
	if config.KeyStore == nil {
		return nil, errors.New("keystore is required")
	}
	if config.Dial == nil {
		config.Dial = DialEthClient
	}

	client := config.Client
	if client == nil {
		url, ok := config.Endpoints[config.InitialChain]
		if !ok {
			return nil, fmt.Errorf("no endpoint configured for chain %d", config.InitialChain)
		}
		var err error
		client, err = config.Dial(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RPC: %w", err)
		}
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	log.Infof("Keystore wallet connected to chain %v", chainID)

	return &KeystoreProvider{
		config:  config,
		ks:      config.KeyStore,
		client:  client,
		chainID: chainID,
	}, nil
}

// DialEthClient dials a node with go-ethereum's ethclient
func DialEthClient(ctx context.Context, url string) (ChainClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RequestAccounts implements Provider. The first call prompts for the account
// passphrase; later calls return the authorized account.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.RLock()
	authorized := p.authorized
	p.mu.RUnlock()

	if authorized != nil {
		return []common.Address{authorized.Address}, nil
	}

	account, err := p.selectAccount()
	if err != nil {
		return nil, err
	}

	if p.config.Passphrase == nil {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "no passphrase source configured"}
	}
	passphrase, err := p.config.Passphrase(account)
	if err != nil || passphrase == "" {
		log.Debugf("Passphrase prompt for %s declined: %v", account.Address.Hex(), err)
		return nil, rejected("User rejected the request.")
	}

	if err := p.unlock(account, passphrase); err != nil {
		return nil, err
	}
	return []common.Address{account.Address}, nil
}

// SelectAccount authorizes a different keystore account and notifies subscribers
func (p *KeystoreProvider) SelectAccount(address common.Address, passphrase string) error {
	account, err := p.ks.Find(accounts.Account{Address: address})
	if err != nil {
		return &ProviderError{Code: CodeUnauthorized, Message: err.Error()}
	}

	if err := p.unlock(account, passphrase); err != nil {
		return err
	}
	p.accountsFeed.Send([]common.Address{account.Address})
	return nil
}

// Revoke withdraws authorization and locks the account
func (p *KeystoreProvider) Revoke() {
	p.mu.Lock()
	authorized := p.authorized
	p.authorized = nil
	p.mu.Unlock()

	if authorized == nil {
		return
	}
	if err := p.ks.Lock(authorized.Address); err != nil {
		log.Warnf("Failed to lock %s: %v", authorized.Address.Hex(), err)
	}
	log.Infof("Authorization for %s revoked", authorized.Address.Hex())
	p.accountsFeed.Send([]common.Address{})
}

func (p *KeystoreProvider) selectAccount() (accounts.Account, error) {
	if p.config.Account != (common.Address{}) {
		account, err := p.ks.Find(accounts.Account{Address: p.config.Account})
		if err != nil {
			return accounts.Account{}, &ProviderError{Code: CodeUnauthorized, Message: err.Error()}
		}
		return account, nil
	}

	all := p.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, ErrNoAccounts
	}
	return all[0], nil
}

func (p *KeystoreProvider) unlock(account accounts.Account, passphrase string) error {
	if err := p.ks.Unlock(account, passphrase); err != nil {
		return &ProviderError{Code: CodeUnauthorized, Message: fmt.Sprintf("failed to unlock %s: %v", account.Address.Hex(), err)}
	}

	p.mu.Lock()
	p.authorized = &account
	p.mu.Unlock()

	log.Infof("Account %s authorized", account.Address.Hex())
	return nil
}

// ChainID implements Provider
func (p *KeystoreProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.chainID), nil
}

// SwitchChain implements Provider. The new node is dialed and verified before
// the old connection is dropped.
func (p *KeystoreProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	p.mu.RLock()
	current := p.chainID
	p.mu.RUnlock()

	if current.Cmp(chainID) == 0 {
		return nil
	}

	if !chainID.IsUint64() {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("Unrecognized chain ID %v", chainID)}
	}
	url, ok := p.config.Endpoints[chainID.Uint64()]
	if !ok {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("Unrecognized chain ID %v", chainID)}
	}

	client, err := p.config.Dial(ctx, url)
	if err != nil {
		return &ProviderError{Code: CodeChainDisconnected, Message: fmt.Sprintf("failed to connect to chain %v: %v", chainID, err)}
	}
	actual, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return &ProviderError{Code: CodeChainDisconnected, Message: fmt.Sprintf("failed to get chain ID: %v", err)}
	}
	if actual.Cmp(chainID) != 0 {
		client.Close()
		return fmt.Errorf("endpoint for chain %v reports chain %v", chainID, actual)
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = new(big.Int).Set(chainID)
	p.mu.Unlock()

	old.Close()

	log.Infof("Keystore wallet switched to chain %v", chainID)
	p.chainFeed.Send(new(big.Int).Set(chainID))
	return nil
}

// SendTransaction implements Provider
func (p *KeystoreProvider) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	p.mu.RLock()
	authorized, client, chainID := p.authorized, p.client, p.chainID
	p.mu.RUnlock()

	if authorized == nil || authorized.Address != from {
		return common.Hash{}, &ProviderError{Code: CodeUnauthorized, Message: fmt.Sprintf("account %s is not authorized", from.Hex())}
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	// Estimation executes the call, so a reverting call fails here with its
	// revert data attached.
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	// Add 20% safety margin
	gas = gas * 120 / 100

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)

	if p.config.Confirm != nil {
		ok, err := p.config.Confirm(tx)
		if err != nil || !ok {
			return common.Hash{}, rejected(userDeniedSignature + ".")
		}
	}

	signedTx, err := p.ks.SignTx(*authorized, tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	log.Debugf("Submitted transaction %s (nonce %d, gas %d)", signedTx.Hash().Hex(), nonce, gas)
	return signedTx.Hash(), nil
}

// SubscribeAccountsChanged implements Provider
func (p *KeystoreProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

// SubscribeChainChanged implements Provider
func (p *KeystoreProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// Backend implements Provider. Calls go to whichever node is current.
func (p *KeystoreProvider) Backend() chain.Backend {
	return p
}

func (p *KeystoreProvider) currentClient() ChainClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// CallContract implements bind.ContractCaller
func (p *KeystoreProvider) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return p.currentClient().CallContract(ctx, msg, blockNumber)
}

// CodeAt implements bind.ContractCaller
func (p *KeystoreProvider) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return p.currentClient().CodeAt(ctx, contract, blockNumber)
}

// TransactionReceipt implements chain.Backend
func (p *KeystoreProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return p.currentClient().TransactionReceipt(ctx, txHash)
}

// Close closes the node connection
func (p *KeystoreProvider) Close() {
	if client := p.currentClient(); client != nil {
		client.Close()
	}
}

var _ Provider = (*KeystoreProvider)(nil)
