package simpledao

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when no wallet provider was injected
	ErrProviderUnavailable = errors.New("no wallet provider available")

	// ErrUserRejected is returned when the user declines an authorization or signing request
	ErrUserRejected = errors.New("user rejected the request")

	// ErrSwitchRejected is returned when the user declines a network switch
	ErrSwitchRejected = errors.New("user rejected the network switch")

	// ErrUnrecognizedNetwork is returned when the wallet does not know the target network
	ErrUnrecognizedNetwork = errors.New("target network not added to wallet")

	// ErrSwitchFailed is returned for any other network switch failure
	ErrSwitchFailed = errors.New("failed to switch network")

	// ErrWrongNetwork is returned while the wallet is on a network other than the target
	ErrWrongNetwork = errors.New("wrong network")

	// ErrQueryFailed is returned when a ledger read fails
	ErrQueryFailed = errors.New("query failed")

	// ErrSubmissionFailed is returned when a transaction could not be submitted or confirmed
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrNotConnected is returned by contract operations without bindings
	ErrNotConnected = errors.New("wallet not connected to the target network")

	// ErrNoVotingPower is returned when voting without governance tokens
	ErrNoVotingPower = errors.New("no voting power")

	// ErrAlreadyVoted is returned when voting twice on a proposal
	ErrAlreadyVoted = errors.New("already voted on this proposal")

	// ErrVotingClosed is returned when voting after a proposal's deadline
	ErrVotingClosed = errors.New("voting period has ended")

	// ErrEmptyDescription is returned when creating a proposal without a description
	ErrEmptyDescription = errors.New("proposal description is empty")

	// ErrRequestInFlight is returned while an identical submission is still pending
	ErrRequestInFlight = errors.New("request already in flight")
)

// WrongNetworkError reports the wallet's network when it differs from the target
type WrongNetworkError struct {
	Target  Network
	Current uint64

	// Switched is set when the mismatch was caused by a chain change
	Switched bool
}

func (e *WrongNetworkError) Error() string {
	if e.Switched {
		return fmt.Sprintf("Switched to wrong network. Please switch to %s.", e.Target.Name)
	}
	return fmt.Sprintf("Connected, but on wrong network. Switch to %s.", e.Target.Name)
}

func (e *WrongNetworkError) Unwrap() error {
	return ErrWrongNetwork
}

// SwitchError is a failed request to move the wallet to the target network.
// Kind is ErrUnrecognizedNetwork, ErrSwitchRejected or ErrSwitchFailed.
type SwitchError struct {
	Target Network
	Kind   error
	Err    error
}

func (e *SwitchError) Error() string {
	switch e.Kind {
	case ErrUnrecognizedNetwork:
		return fmt.Sprintf("%s (Chain ID: %s) not added to wallet.", e.Target.Name, e.Target.HexID())
	case ErrSwitchRejected:
		return "Network switch rejected by user."
	default:
		return "Failed to switch network. Please do it manually."
	}
}

func (e *SwitchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// QueryError is a failed ledger read
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryFailed, e.Err}
}

// SubmissionError is a failed write. Rejected is set when the user declined
// to sign; Reason holds the ledger's revert reason when one was reported.
type SubmissionError struct {
	Op       string
	Rejected bool
	Reason   string
	Err      error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Rejected:
		return e.Op + " failed: Transaction rejected by user."
	case e.Reason != "":
		return e.Op + " failed: " + e.Reason
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return e.Op + " failed"
	}
}

func (e *SubmissionError) Unwrap() []error {
	errs := []error{ErrSubmissionFailed}
	if e.Rejected {
		errs = append(errs, ErrUserRejected)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
