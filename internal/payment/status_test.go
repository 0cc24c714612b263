package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapFedapayStatus(t *testing.T) {
	tests := []struct {
		providerStatus string
		expected       Status
	}{
		{"approved", StatusCompleted},
		{"completed", StatusCompleted},
		{"transferred", StatusCompleted},
		{"pending", StatusPending},
		{"declined", StatusFailed},
		{"canceled", StatusCancelled},
		{"refunded", StatusRefunded},
		{"APPROVED", StatusCompleted},
		{"  Declined  ", StatusFailed},
		{"something-new", StatusPending},
		{"", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.providerStatus, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapFedapayStatus(tt.providerStatus))
		})
	}
}

func TestMapMoneyFusionStatus(t *testing.T) {
	tests := []struct {
		providerStatus string
		expected       Status
	}{
		{"success", StatusCompleted},
		{"completed", StatusCompleted},
		{"pending", StatusPending},
		{"failed", StatusFailed},
		{"cancelled", StatusCancelled},
		{"refunded", StatusRefunded},
		{"SUCCESS", StatusCompleted},
		{"paid_out", StatusPending},
		{"", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.providerStatus, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapMoneyFusionStatus(tt.providerStatus))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
}
