package simpledao

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kaifufi/simpledao-client-go/chain"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

// ChainID represents a blockchain chain ID
type ChainID uint64

const (
	ChainIDSepolia ChainID = 11155111 // Sepolia testnet
)

// TokenDecimals is the governance token's decimals
const TokenDecimals = 18

// Network identifies the network the client operates on
type Network struct {
	ChainID ChainID
	Name    string
}

// HexID returns the chain id in the 0x-prefixed form wallets use
func (n Network) HexID() string {
	return hexutil.EncodeUint64(uint64(n.ChainID))
}

// BigID returns the chain id as a big integer
func (n Network) BigID() *big.Int {
	return new(big.Int).SetUint64(uint64(n.ChainID))
}

// Matches reports whether chainID is this network
func (n Network) Matches(chainID *big.Int) bool {
	return chainID != nil && chainID.IsUint64() && chainID.Uint64() == uint64(n.ChainID)
}

// TargetNetwork is the only network the DAO is deployed on
var TargetNetwork = Network{
	ChainID: ChainIDSepolia,
	Name:    "Sepolia Test Network",
}

// DefaultContractAddresses maps chain IDs to their contract addresses
var DefaultContractAddresses = map[ChainID]chain.Addresses{
	ChainIDSepolia: {
		GovernanceToken: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		DAO:             common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
	},
}

// ManagerConfig holds configuration for creating a Manager
type ManagerConfig struct {
	// Provider is the injected wallet capability. Nil means no wallet is
	// available and Connect fails with ErrProviderUnavailable.
	Provider wallet.Provider

	// Target and Contracts default to TargetNetwork and its compiled-in
	// addresses.
	Target    *Network
	Contracts *chain.Addresses

	// Now is the clock used to classify proposals. Defaults to time.Now.
	Now func() time.Time

	// FetchConcurrency bounds parallel proposal reads. Defaults to 8.
	FetchConcurrency int

	// ReceiptPollInterval overrides how often confirmations are polled
	ReceiptPollInterval time.Duration
}
