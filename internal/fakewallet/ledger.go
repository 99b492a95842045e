// Package fakewallet provides an in-memory SimpleDAO ledger and wallet
// provider for tests. Contract calls are real ABI-encoded calls decoded
// against the contract ABIs.
package fakewallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kaifufi/simpledao-client-go/chain"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

// Default contract addresses used by NewLedger
var (
	TokenAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	DAOAddress   = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

// DefaultVotingPeriod is the deadline given to proposals created on the ledger
const DefaultVotingPeriod = 7 * 24 * time.Hour

// ProposalRecord is a proposal stored on the ledger
type ProposalRecord struct {
	Description  string
	VotesFor     *big.Int
	VotesAgainst *big.Int
	Deadline     time.Time
	Executed     bool

	// Result is what getVotingResult reports
	Result string

	Voters map[common.Address]bool
}

// Ledger is an in-memory token and DAO contract pair. It implements
// chain.Backend.
type Ledger struct {
	mu sync.Mutex

	addresses    chain.Addresses
	tokenABI     abi.ABI
	daoABI       abi.ABI
	balances     map[common.Address]*big.Int
	proposals    []*ProposalRecord
	failures     map[string]error
	calls        []string
	receipts     map[common.Hash]*types.Receipt
	receiptPolls map[common.Hash]int
	nonce        uint64
	blockNumber  uint64

	// Now is the ledger clock
	Now func() time.Time

	VotingPeriod time.Duration

	// ReceiptDelay is how many receipt lookups report not found before a
	// transaction is mined
	ReceiptDelay int

	// ReportedCount overrides what getProposalCount returns when set
	ReportedCount *big.Int
}

// NewLedger creates an empty ledger at the default addresses
func NewLedger() *Ledger {
	return &Ledger{
		addresses: chain.Addresses{
			GovernanceToken: TokenAddress,
			DAO:             DAOAddress,
		},
		tokenABI:     chain.GetGovernanceTokenABI(),
		daoABI:       chain.GetSimpleDAOABI(),
		balances:     make(map[common.Address]*big.Int),
		failures:     make(map[string]error),
		receipts:     make(map[common.Hash]*types.Receipt),
		receiptPolls: make(map[common.Hash]int),
		blockNumber:  1,
		Now:          time.Now,
		VotingPeriod: DefaultVotingPeriod,
	}
}

// Addresses returns the contract addresses
func (l *Ledger) Addresses() chain.Addresses {
	return l.addresses
}

// SetBalance sets the governance token balance of account
func (l *Ledger) SetBalance(account common.Address, balance *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = new(big.Int).Set(balance)
}

// AddProposal stores p and returns its id
func (l *Ledger) AddProposal(p ProposalRecord) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.VotesFor == nil {
		p.VotesFor = new(big.Int)
	}
	if p.VotesAgainst == nil {
		p.VotesAgainst = new(big.Int)
	}
	if p.Voters == nil {
		p.Voters = make(map[common.Address]bool)
	}
	l.proposals = append(l.proposals, &p)
	return big.NewInt(int64(len(l.proposals) - 1))
}

// ProposalByID returns a copy of a stored proposal
func (l *Ledger) ProposalByID(id int) (ProposalRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id < 0 || id >= len(l.proposals) {
		return ProposalRecord{}, false
	}
	return *l.proposals[id], true
}

// Fail makes every call to method return err until cleared with a nil err
func (l *Ledger) Fail(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.failures, method)
		return
	}
	l.failures[method] = err
}

// Calls returns the contract methods called so far, in order
func (l *Ledger) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// CallCount returns how many times method was called
func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, call := range l.calls {
		if call == method {
			n++
		}
	}
	return n
}

// CallContract implements bind.ContractCaller
func (l *Ledger) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, errors.New("contract creation not supported")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	method, args, err := l.decode(*msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	l.calls = append(l.calls, method.Name)

	if err := l.failures[method.Name]; err != nil {
		return nil, err
	}

	if !method.IsConstant() {
		// Replays of transactions only report whether they would revert.
		if reason := l.check(msg.From, method.Name, args); reason != "" {
			return nil, Revert(reason)
		}
		return nil, nil
	}

	out, err := l.view(method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

// CodeAt implements bind.ContractCaller
func (l *Ledger) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	if contract == l.addresses.GovernanceToken || contract == l.addresses.DAO {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

// TransactionReceipt implements chain.Backend
func (l *Ledger) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failures["eth_getTransactionReceipt"]; err != nil {
		return nil, err
	}

	receipt, ok := l.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if l.receiptPolls[txHash] < l.ReceiptDelay {
		l.receiptPolls[txHash]++
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// Execute applies a transaction from sender. A transaction that would revert
// is rejected with revert data when mine is false, or mined with a failed
// status when mine is true.
func (l *Ledger) Execute(from common.Address, to common.Address, data []byte, mine bool) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	method, args, err := l.decode(to, data)
	if err != nil {
		return common.Hash{}, err
	}
	l.calls = append(l.calls, method.Name)

	if err := l.failures[method.Name]; err != nil {
		return common.Hash{}, err
	}

	reason := l.check(from, method.Name, args)
	if reason != "" && !mine {
		return common.Hash{}, Revert(reason)
	}

	l.nonce++
	txHash := crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(l.nonce).Bytes(), data)
	l.blockNumber++

	status := types.ReceiptStatusSuccessful
	if reason != "" {
		status = types.ReceiptStatusFailed
	} else {
		l.apply(from, method.Name, args)
	}

	l.receipts[txHash] = &types.Receipt{
		Status:      status,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(l.blockNumber),
		GasUsed:     21000,
	}
	return txHash, nil
}

func (l *Ledger) decode(to common.Address, data []byte) (*abi.Method, []interface{}, error) {
	var contract abi.ABI
	switch to {
	case l.addresses.GovernanceToken:
		contract = l.tokenABI
	case l.addresses.DAO:
		contract = l.daoABI
	default:
		return nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}

	if len(data) < 4 {
		return nil, nil, errors.New("call data too short")
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack %s arguments: %w", method.Name, err)
	}
	return method, args, nil
}

func (l *Ledger) view(method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "balanceOf":
		return []interface{}{l.balanceOf(args[0].(common.Address))}, nil
	case "decimals":
		return []interface{}{uint8(18)}, nil
	case "symbol":
		return []interface{}{"GOV"}, nil
	case "getProposalCount":
		if l.ReportedCount != nil {
			return []interface{}{new(big.Int).Set(l.ReportedCount)}, nil
		}
		return []interface{}{big.NewInt(int64(len(l.proposals)))}, nil
	case "getProposal":
		p, err := l.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{
			p.Description,
			new(big.Int).Set(p.VotesFor),
			new(big.Int).Set(p.VotesAgainst),
			big.NewInt(p.Deadline.Unix()),
			p.Executed,
		}, nil
	case "voted":
		p, err := l.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{p.Voters[args[1].(common.Address)]}, nil
	case "getVotingResult":
		p, err := l.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{p.Result}, nil
	}
	return nil, fmt.Errorf("unsupported view %s", method)
}

// check returns the revert reason of a transaction, or "" if it succeeds
func (l *Ledger) check(from common.Address, method string, args []interface{}) string {
	switch method {
	case "createProposal":
		if args[0].(string) == "" {
			return "Description required"
		}
	case "vote":
		p, err := l.proposal(args[0].(*big.Int))
		if err != nil {
			return "Invalid proposal"
		}
		if l.balanceOf(from).Sign() <= 0 {
			return "No voting power"
		}
		if p.Voters[from] {
			return "Already voted"
		}
		if !l.Now().Before(p.Deadline) {
			return "Voting period has ended"
		}
	}
	return ""
}

func (l *Ledger) apply(from common.Address, method string, args []interface{}) {
	switch method {
	case "createProposal":
		l.proposals = append(l.proposals, &ProposalRecord{
			Description:  args[0].(string),
			VotesFor:     new(big.Int),
			VotesAgainst: new(big.Int),
			Deadline:     l.Now().Add(l.VotingPeriod),
			Voters:       make(map[common.Address]bool),
		})
	case "vote":
		p, _ := l.proposal(args[0].(*big.Int))
		weight := l.balanceOf(from)
		if args[1].(bool) {
			p.VotesFor = new(big.Int).Add(p.VotesFor, weight)
		} else {
			p.VotesAgainst = new(big.Int).Add(p.VotesAgainst, weight)
		}
		p.Voters[from] = true
	}
}

func (l *Ledger) proposal(id *big.Int) (*ProposalRecord, error) {
	if !id.IsInt64() || id.Int64() < 0 || id.Int64() >= int64(len(l.proposals)) {
		return nil, Revert("Invalid proposal")
	}
	return l.proposals[id.Int64()], nil
}

func (l *Ledger) balanceOf(account common.Address) *big.Int {
	if balance, ok := l.balances[account]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// revertSelector is the selector of Solidity's Error(string)
var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// Revert builds the error a node returns for a call reverting with reason
func Revert(reason string) error {
	stringType, _ := abi.NewType("string", "", nil)
	encoded, _ := abi.Arguments{{Type: stringType}}.Pack(reason)

	return &wallet.ProviderError{
		Code:    3,
		Message: "execution reverted: " + reason,
		Data:    hexutil.Encode(append(append([]byte{}, revertSelector...), encoded...)),
	}
}

var _ chain.Backend = (*Ledger)(nil)
