package wallet

import (
	"errors"
	"fmt"
	"strings"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

const userDeniedSignature = "User denied transaction signature"

var (
	// ErrUserRejected matches any provider error caused by the user declining
	ErrUserRejected = errors.New("user rejected the request")

	// ErrUnauthorized matches requests for accounts the user has not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDisconnected matches errors from a provider that lost its connection
	ErrDisconnected = errors.New("wallet provider disconnected")

	// ErrUnrecognizedChain matches a switch request for a chain the wallet does not know
	ErrUnrecognizedChain = errors.New("unrecognized chain")

	// ErrNoAccounts is returned when authorization yields no accounts
	ErrNoAccounts = errors.New("no accounts authorized")
)

// ProviderError is an error reported by the wallet provider
type ProviderError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error %d", e.Code)
	}
	return e.Message
}

// ErrorCode returns the EIP-1193 / JSON-RPC error code
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// ErrorData returns the error payload, typically revert data
func (e *ProviderError) ErrorData() interface{} {
	return e.Data
}

// Is maps provider error codes onto the package sentinels
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == CodeUserRejected || strings.Contains(e.Message, userDeniedSignature)
	case ErrUnauthorized:
		return e.Code == CodeUnauthorized
	case ErrDisconnected:
		return e.Code == CodeDisconnected || e.Code == CodeChainDisconnected
	case ErrUnrecognizedChain:
		return e.Code == CodeUnrecognizedChain
	}
	return false
}

// IsUserRejection reports whether err was caused by the user declining a request
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUserRejected) || strings.Contains(err.Error(), userDeniedSignature)
}

func rejected(message string) error {
	return &ProviderError{Code: CodeUserRejected, Message: message}
}
