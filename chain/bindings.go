package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the read side of the ledger used by contract bindings
type Backend interface {
	bind.ContractCaller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Transactor signs and submits an encoded contract call on behalf of an account
type Transactor interface {
	SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)
}

// Signer is an account paired with the transactor able to sign for it.
// A Signer is never mutated; account or network changes produce a new one.
type Signer struct {
	account    common.Address
	transactor Transactor
}

// NewSigner creates a signer for account
func NewSigner(account common.Address, transactor Transactor) *Signer {
	return &Signer{account: account, transactor: transactor}
}

// Address returns the signing account
func (s *Signer) Address() common.Address {
	return s.account
}

// Addresses holds the deployed contract addresses
type Addresses struct {
	GovernanceToken common.Address
	DAO             common.Address
}

// Binding is a contract address and interface bound to a signer
type Binding struct {
	address  common.Address
	abi      abi.ABI
	signer   *Signer
	backend  Backend
	contract *bind.BoundContract
}

func newBinding(address common.Address, parsed abi.ABI, backend Backend, signer *Signer) *Binding {
	return &Binding{
		address:  address,
		abi:      parsed,
		signer:   signer,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, nil, nil),
	}
}

// Address returns the contract address
func (b *Binding) Address() common.Address {
	return b.address
}

// Signer returns the signer the binding was created with
func (b *Binding) Signer() *Signer {
	return b.signer
}

func (b *Binding) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: b.signer.account}
	if err := b.contract.Call(opts, &out, method, params...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

func (b *Binding) transact(ctx context.Context, method string, params ...interface{}) (*PendingTx, error) {
	data, err := b.abi.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	txHash, err := b.signer.transactor.SendTransaction(ctx, b.signer.account, b.address, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s transaction: %w", method, err)
	}
	log.Infof("Sent %s transaction %s from %s", method, txHash.Hex(), b.signer.account.Hex())

	return &PendingTx{
		Hash:    txHash,
		Method:  method,
		from:    b.signer.account,
		to:      b.address,
		data:    data,
		backend: b.backend,
	}, nil
}

// TokenBinding binds the governance token contract
type TokenBinding struct {
	*Binding
}

// BalanceOf returns the token balance of account
func (t *TokenBinding) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// DAOBinding binds the SimpleDAO contract
type DAOBinding struct {
	*Binding
}

// ProposalCount returns the number of proposals ever created
func (d *DAOBinding) ProposalCount(ctx context.Context) (*big.Int, error) {
	out, err := d.call(ctx, "getProposalCount")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Proposal returns the stored fields of proposal id
func (d *DAOBinding) Proposal(ctx context.Context, id *big.Int) (*ProposalData, error) {
	out, err := d.call(ctx, "getProposal", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("getProposal returned %d values, expected 5", len(out))
	}

	return &ProposalData{
		Description:  *abi.ConvertType(out[0], new(string)).(*string),
		VotesFor:     *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		VotesAgainst: *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Deadline:     *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		Executed:     *abi.ConvertType(out[4], new(bool)).(*bool),
	}, nil
}

// HasVoted reports whether account has voted on proposal id
func (d *DAOBinding) HasVoted(ctx context.Context, id *big.Int, account common.Address) (bool, error) {
	out, err := d.call(ctx, "voted", id, account)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// VotingResult returns the ledger-computed outcome of a closed proposal
func (d *DAOBinding) VotingResult(ctx context.Context, id *big.Int) (string, error) {
	out, err := d.call(ctx, "getVotingResult", id)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// CreateProposal submits a createProposal transaction
func (d *DAOBinding) CreateProposal(ctx context.Context, description string) (*PendingTx, error) {
	return d.transact(ctx, "createProposal", description)
}

// Vote submits a vote transaction
func (d *DAOBinding) Vote(ctx context.Context, id *big.Int, support bool) (*PendingTx, error) {
	return d.transact(ctx, "vote", id, support)
}

// Bindings holds both contract bindings created for one signer
type Bindings struct {
	Token *TokenBinding
	DAO   *DAOBinding
}

// NewBindings binds both contracts to signer
func NewBindings(addrs Addresses, backend Backend, signer *Signer) (*Bindings, error) {
	if backend == nil {
		return nil, errors.New("nil ledger backend")
	}
	if signer == nil {
		return nil, errors.New("nil signer")
	}

	return &Bindings{
		Token: &TokenBinding{newBinding(addrs.GovernanceToken, governanceTokenABI, backend, signer)},
		DAO:   &DAOBinding{newBinding(addrs.DAO, simpleDAOABI, backend, signer)},
	}, nil
}
