package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ProposalData is the raw proposal record returned by getProposal
type ProposalData struct {
	Description  string
	VotesFor     *big.Int
	VotesAgainst *big.Int
	Deadline     *big.Int
	Executed     bool
}

// Governance token ABI JSON for the read calls the client needs
const governanceTokenABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "account", "type": "address"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "symbol",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// SimpleDAO ABI JSON
const simpleDAOABIJSON = `[
	{
		"inputs": [],
		"name": "getProposalCount",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "proposalId", "type": "uint256"}
		],
		"name": "getProposal",
		"outputs": [
			{"name": "description", "type": "string"},
			{"name": "voteFor", "type": "uint256"},
			{"name": "voteAgainst", "type": "uint256"},
			{"name": "deadline", "type": "uint256"},
			{"name": "executed", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "", "type": "uint256"},
			{"name": "", "type": "address"}
		],
		"name": "voted",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "proposalId", "type": "uint256"}
		],
		"name": "getVotingResult",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "description", "type": "string"}
		],
		"name": "createProposal",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "proposalId", "type": "uint256"},
			{"name": "support", "type": "bool"}
		],
		"name": "vote",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var (
	governanceTokenABI = mustParseABI("GovernanceToken", governanceTokenABIJSON)
	simpleDAOABI       = mustParseABI("SimpleDAO", simpleDAOABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// GetGovernanceTokenABI returns the parsed governance token ABI
func GetGovernanceTokenABI() abi.ABI {
	return governanceTokenABI
}

// GetSimpleDAOABI returns the parsed SimpleDAO ABI
func GetSimpleDAOABI() abi.ABI {
	return simpleDAOABI
}
