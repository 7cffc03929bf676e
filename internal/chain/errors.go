package chain

import (
	"errors"
	"strings"
)

var (
	// ErrReverted marks a contract-rejected call. Never retried.
	ErrReverted = errors.New("contract reverted")
	// ErrNotConfigured is returned for operations against a variant whose
	// contract address was not supplied.
	ErrNotConfigured = errors.New("contract variant not configured")
	// ErrNotOracle is returned when the wallet is not the configured oracle.
	ErrNotOracle = errors.New("wallet is not the configured oracle")
)

var transientMarkers = []string{
	"429",
	"too many requests",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"502",
	"503",
	"bad gateway",
	"service unavailable",
	"EOF",
	"i/o timeout",
}

// IsTransient classifies an RPC error as retryable. Reverts are always
// terminal regardless of what the transport layered on top.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRevert(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// IsRevert reports whether the error carries a contract revert.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReverted) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
