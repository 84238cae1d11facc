package domain

import "fmt"

// FaultKind classifies every failure the core can surface. Raw provider and
// network errors are translated into one of these kinds at the point of the
// call; the untranslated message is kept only as a diagnostic.
type FaultKind string

const (
	// FaultUserRejected is a declined wallet prompt.
	FaultUserRejected FaultKind = "user_rejected"
	// FaultProviderAbsent means no wallet provider is available.
	FaultProviderAbsent FaultKind = "provider_absent"
	// FaultValidation is a pre-flight failure: insufficient balance, amount
	// below minimum, disconnected wallet.
	FaultValidation FaultKind = "validation"
	// FaultWrongNetwork means the provider is on a different chain and the
	// switch failed.
	FaultWrongNetwork FaultKind = "wrong_network"
	// FaultChainReverted is a mined transaction with revert status.
	FaultChainReverted FaultKind = "chain_reverted"
	// FaultUnavailable covers backend or RPC unreachability.
	FaultUnavailable FaultKind = "unavailable"
	// FaultInternal is the last-resort bucket for unclassified errors.
	FaultInternal FaultKind = "internal"
)

// Fault is the only error shape allowed to reach UI layers.
type Fault struct {
	Kind   FaultKind
	Reason string
}

// NewFault builds a fault with a human-readable reason.
func NewFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// Is allows errors.Is matching on the fault kind.
func (f *Fault) Is(target error) bool {
	other, ok := target.(*Fault)
	if !ok {
		return false
	}
	return other.Kind == f.Kind && (other.Reason == "" || other.Reason == f.Reason)
}
