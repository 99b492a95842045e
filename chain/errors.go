package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrTxReverted is returned when a mined transaction has a failed status
var ErrTxReverted = errors.New("transaction reverted")

// RevertError is a mined transaction that failed on the ledger
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "transaction " + e.TxHash.Hex() + " reverted"
	}
	return "transaction " + e.TxHash.Hex() + " reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return ErrTxReverted
}

// RevertReason extracts a Solidity Error(string) reason from an RPC error
// carrying revert data.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var revertErr *RevertError
	if errors.As(err, &revertErr) && revertErr.Reason != "" {
		return revertErr.Reason, true
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}

	var raw []byte
	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, err := hexutil.Decode(data)
		if err != nil {
			return "", false
		}
		raw = decoded
	case []byte:
		raw = data
	case hexutil.Bytes:
		raw = data
	default:
		return "", false
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}
