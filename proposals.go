package simpledao

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaifufi/simpledao-client-go/chain"
)

// MaxProposalCount bounds the proposal count accepted from the DAO. Larger
// counts fail the listing.
const MaxProposalCount = 100_000

// ActiveProposals returns proposals still open for voting, newest first.
// CallerHasVoted is filled in for the connected account.
func (m *Manager) ActiveProposals(ctx context.Context) ([]*Proposal, error) {
	return m.listProposals(ctx, ProposalStatusActive)
}

// ProposalResults returns closed proposals with their outcome, newest first
func (m *Manager) ProposalResults(ctx context.Context) ([]*Proposal, error) {
	return m.listProposals(ctx, ProposalStatusClosed)
}

// Proposal returns a single proposal with its status filled in
func (m *Manager) Proposal(ctx context.Context, id *big.Int) (*Proposal, error) {
	st := m.State()
	if st.Bindings == nil {
		return nil, ErrNotConnected
	}

	p, err := m.loadProposal(ctx, st, id, m.now())
	if err != nil {
		return nil, m.queryFailed(err)
	}
	if err := m.complete(ctx, st, p); err != nil {
		return nil, m.queryFailed(err)
	}
	return p, nil
}

// listProposals enumerates every proposal and keeps those with status. Any
// failed field fetch fails the whole listing.
func (m *Manager) listProposals(ctx context.Context, status ProposalStatus) ([]*Proposal, error) {
	st := m.State()
	if st.Bindings == nil {
		return nil, ErrNotConnected
	}

	count, err := st.Bindings.DAO.ProposalCount(ctx)
	if err != nil {
		return nil, m.queryFailed(&QueryError{Op: "getProposalCount", Err: err})
	}
	if count.Sign() < 0 || count.Cmp(big.NewInt(MaxProposalCount)) > 0 {
		return nil, m.queryFailed(&QueryError{Op: "getProposalCount", Err: fmt.Errorf("count %v out of range", count)})
	}
	n := count.Uint64()

	now := m.now()

	var (
		mu     sync.Mutex
		loaded []*Proposal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i := uint64(0); i < n; i++ {
		i := i
		g.Go(func() error {
			p, err := m.loadProposal(gctx, st, new(big.Int).SetUint64(i), now)
			if err != nil {
				return err
			}
			if p.Status != status {
				return nil
			}
			if err := m.complete(gctx, st, p); err != nil {
				return err
			}
			mu.Lock()
			loaded = append(loaded, p)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, m.queryFailed(err)
	}

	proposals := loaded
	if proposals == nil {
		proposals = []*Proposal{}
	}
	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ID.Cmp(proposals[j].ID) > 0
	})

	log.Debugf("Loaded %d of %d proposals with status %d", len(proposals), n, status)
	return proposals, nil
}

// loadProposal fetches the stored fields of id and classifies it at now
func (m *Manager) loadProposal(ctx context.Context, st State, id *big.Int, now time.Time) (*Proposal, error) {
	data, err := st.Bindings.DAO.Proposal(ctx, id)
	if err != nil {
		return nil, &QueryError{Op: fmt.Sprintf("getProposal(%v)", id), Err: err}
	}
	return newProposal(id, data, now), nil
}

// complete fetches the per-status extras: the caller's vote for active
// proposals, the outcome for closed ones.
func (m *Manager) complete(ctx context.Context, st State, p *Proposal) error {
	if p.Status == ProposalStatusActive {
		voted, err := st.Bindings.DAO.HasVoted(ctx, p.ID, st.Account)
		if err != nil {
			return &QueryError{Op: fmt.Sprintf("voted(%v)", p.ID), Err: err}
		}
		p.CallerHasVoted = voted
		return nil
	}

	if p.Executed {
		return nil
	}

	reported, err := st.Bindings.DAO.VotingResult(ctx, p.ID)
	switch {
	case err != nil:
		log.Warnf("Failed to fetch voting result for proposal %v: %v", p.ID, err)
		p.Result = Result{Outcome: OutcomeUnavailable}
	case reported == "" || reported == undeterminedResult:
		p.Result = Result{Outcome: OutcomeAwaitingFinalization}
	default:
		p.Result = Result{Outcome: OutcomeReported, Detail: reported}
	}
	return nil
}

// undeterminedResult is what the DAO reports before a closed proposal is tallied
const undeterminedResult = "Result Undetermined"

func (m *Manager) queryFailed(err error) error {
	log.Errorf("Proposal query failed: %v", err)
	m.setError(err)
	return err
}

// newProposal classifies a proposal. It is active while the deadline is in
// the future and it has not been executed. Executed outcomes are derived
// from the tallies without another ledger query.
func newProposal(id *big.Int, data *chain.ProposalData, now time.Time) *Proposal {
	p := &Proposal{
		ID:           id,
		Description:  data.Description,
		VotesFor:     data.VotesFor,
		VotesAgainst: data.VotesAgainst,
		Deadline:     deadlineTime(data.Deadline),
		Executed:     data.Executed,
		Status:       ProposalStatusClosed,
	}

	if !data.Executed && data.Deadline.Cmp(big.NewInt(now.Unix())) > 0 {
		p.Status = ProposalStatusActive
		return p
	}

	if data.Executed {
		p.Result = Result{Outcome: executedOutcome(data.VotesFor, data.VotesAgainst)}
	}
	return p
}

// maxDeadline is the last second time.Time formats with a four-digit year
var maxDeadline = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// deadlineTime converts a uint256 unix deadline, clamping values beyond
// maxDeadline
func deadlineTime(deadline *big.Int) time.Time {
	if deadline.Sign() < 0 {
		return time.Unix(0, 0)
	}
	if deadline.Cmp(big.NewInt(maxDeadline.Unix())) > 0 {
		return maxDeadline
	}
	return time.Unix(deadline.Int64(), 0)
}

func executedOutcome(votesFor, votesAgainst *big.Int) Outcome {
	switch votesFor.Cmp(votesAgainst) {
	case 1:
		return OutcomeApproved
	case -1:
		return OutcomeRejected
	default:
		return OutcomeTie
	}
}
