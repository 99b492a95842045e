package simpledao

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/simpledao-client-go/chain"
)

// State is an immutable snapshot of the session and everything derived
// from it. The manager replaces it wholesale on every transition.
type State struct {
	Account common.Address
	ChainID *big.Int

	// OnTargetNetwork is recomputed from ChainID on every transition
	OnTargetNetwork bool

	// Signer is present iff Account is
	Signer *chain.Signer

	// Bindings are present iff an account is connected on the target network
	Bindings *chain.Bindings

	VotingPower  bool
	TokenBalance *big.Int

	// Err is the current user-facing error, if any
	Err     error
	Loading bool
}

// Connected reports whether a session with an account exists
func (s State) Connected() bool {
	return s.Signer != nil
}

// HasBindings reports whether contract operations are possible
func (s State) HasBindings() bool {
	return s.Bindings != nil
}

// ErrorMessage returns the current error as display text
func (s State) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// FormattedBalance returns the token balance in whole tokens
func (s State) FormattedBalance() string {
	return FormatTokens(s.TokenBalance)
}

// Outcome is the result of a closed proposal
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeApproved
	OutcomeRejected
	OutcomeTie
	// OutcomeReported is a result string reported by the DAO contract
	OutcomeReported
	OutcomeAwaitingFinalization
	OutcomeUnavailable
)

// ProposalStatus separates proposals open for voting from closed ones
type ProposalStatus int

const (
	ProposalStatusActive ProposalStatus = iota
	ProposalStatusClosed
)

// Proposal is a proposal reconstructed from the ledger
type Proposal struct {
	ID           *big.Int
	Description  string
	VotesFor     *big.Int
	VotesAgainst *big.Int
	Deadline     time.Time
	Executed     bool

	// CallerHasVoted is only populated for active proposals
	CallerHasVoted bool

	Status ProposalStatus
	Result Result
}

// Result is a closed proposal's outcome with its display text
type Result struct {
	Outcome Outcome
	Detail  string
}

// String returns the display text of the result
func (r Result) String() string {
	switch r.Outcome {
	case OutcomeApproved:
		return "Approved (Executed)"
	case OutcomeRejected:
		return "Rejected (Executed)"
	case OutcomeTie:
		return "Tie (Executed)"
	case OutcomeReported:
		return r.Detail
	case OutcomeAwaitingFinalization:
		return "Awaiting Finalization"
	case OutcomeUnavailable:
		return "Error fetching result"
	default:
		return ""
	}
}

// TransactionResult represents the result of a confirmed transaction
type TransactionResult struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	GasUsed     uint64
}
