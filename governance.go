package simpledao

import (
	"context"
	"errors"
	"strings"

	"github.com/kaifufi/simpledao-client-go/chain"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

const createProposalKey = "createProposal"

// CreateProposal submits a new proposal and waits for it to be mined
func (m *Manager) CreateProposal(ctx context.Context, description string) (*TransactionResult, error) {
	if strings.TrimSpace(description) == "" {
		return nil, m.rejectLocally(ErrEmptyDescription)
	}

	st := m.State()
	if st.Bindings == nil {
		return nil, m.rejectLocally(ErrNotConnected)
	}

	release, err := m.acquire(createProposalKey)
	if err != nil {
		return nil, err
	}
	defer release()

	m.begin()
	pending, err := st.Bindings.DAO.CreateProposal(ctx, description)
	result, err := m.confirm(ctx, "Proposal creation", pending, err)
	m.finish(err, nil)
	if err != nil {
		return nil, err
	}

	log.Infof("Proposal created in transaction %s", result.TxHash.Hex())
	return result, nil
}

// Vote casts a vote on p and waits for it to be mined. The caller's voting
// power, prior vote and the deadline are checked before anything is sent.
func (m *Manager) Vote(ctx context.Context, p *Proposal, support bool) (*TransactionResult, error) {
	st := m.State()
	switch {
	case p == nil:
		return nil, errors.New("no proposal to vote on")
	case st.Bindings == nil:
		return nil, m.rejectLocally(ErrNotConnected)
	case !st.VotingPower:
		return nil, m.rejectLocally(ErrNoVotingPower)
	case p.CallerHasVoted:
		return nil, m.rejectLocally(ErrAlreadyVoted)
	case p.Executed || !m.now().Before(p.Deadline):
		return nil, m.rejectLocally(ErrVotingClosed)
	}

	release, err := m.acquire("vote:" + p.ID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	m.begin()
	pending, err := st.Bindings.DAO.Vote(ctx, p.ID, support)
	result, err := m.confirm(ctx, "Voting", pending, err)
	m.finish(err, nil)
	if err != nil {
		return nil, err
	}

	log.Infof("Voted %v on proposal %v in transaction %s", support, p.ID, result.TxHash.Hex())
	return result, nil
}

// confirm waits for a submitted transaction and classifies any failure
func (m *Manager) confirm(ctx context.Context, op string, pending *chain.PendingTx, err error) (*TransactionResult, error) {
	if err != nil {
		return nil, submissionError(op, err)
	}

	if m.pollInterval > 0 {
		pending.PollInterval = m.pollInterval
	}

	receipt, err := pending.Wait(ctx)
	if err != nil {
		return nil, submissionError(op, err)
	}

	return &TransactionResult{
		TxHash:      pending.Hash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (m *Manager) rejectLocally(err error) error {
	log.Debugf("Request refused: %v", err)
	m.setError(err)
	return err
}

func submissionError(op string, err error) error {
	subErr := &SubmissionError{Op: op, Err: err}
	if wallet.IsUserRejection(err) {
		subErr.Rejected = true
	} else if reason, ok := chain.RevertReason(err); ok {
		subErr.Reason = reason
	}
	log.Warnf("%v", subErr)
	return subErr
}
