package payment

import "strings"

// Status is the platform-internal payment status vocabulary. Once a payment
// reaches a terminal status it never transitions again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// TerminalStatuses is the set used by conditional SQL updates.
var TerminalStatuses = []string{
	string(StatusCompleted),
	string(StatusFailed),
	string(StatusCancelled),
	string(StatusRefunded),
}

var fedapayStatuses = map[string]Status{
	"approved":    StatusCompleted,
	"completed":   StatusCompleted,
	"transferred": StatusCompleted,
	"pending":     StatusPending,
	"declined":    StatusFailed,
	"canceled":    StatusCancelled,
	"refunded":    StatusRefunded,
}

var moneyFusionStatuses = map[string]Status{
	"success":   StatusCompleted,
	"completed": StatusCompleted,
	"pending":   StatusPending,
	"failed":    StatusFailed,
	"cancelled": StatusCancelled,
	"refunded":  StatusRefunded,
}

// MapFedapayStatus translates a FedaPay transaction status into the internal
// vocabulary. Unknown values map to pending so an unrecognized provider
// status can never fake a terminal outcome.
func MapFedapayStatus(providerStatus string) Status {
	if s, ok := fedapayStatuses[strings.ToLower(strings.TrimSpace(providerStatus))]; ok {
		return s
	}
	return StatusPending
}

// MapMoneyFusionStatus translates a Money Fusion transaction status into the
// internal vocabulary, with the same pending fallback.
func MapMoneyFusionStatus(providerStatus string) Status {
	if s, ok := moneyFusionStatuses[strings.ToLower(strings.TrimSpace(providerStatus))]; ok {
		return s
	}
	return StatusPending
}
