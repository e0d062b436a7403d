package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopUpTransitions(t *testing.T) {
	assert.True(t, CanTransitionTopUp(TopUpStatusPending, TopUpStatusApproved))
	assert.True(t, CanTransitionTopUp(TopUpStatusPending, TopUpStatusRejected))

	// Approved and rejected are terminal.
	assert.False(t, CanTransitionTopUp(TopUpStatusApproved, TopUpStatusRejected))
	assert.False(t, CanTransitionTopUp(TopUpStatusApproved, TopUpStatusPending))
	assert.False(t, CanTransitionTopUp(TopUpStatusRejected, TopUpStatusApproved))
	assert.False(t, CanTransitionTopUp(TopUpStatusRejected, TopUpStatusPending))

	assert.False(t, CanTransitionTopUp(TopUpStatusPending, TopUpStatusPending))
	assert.False(t, CanTransitionTopUp("unknown", TopUpStatusApproved))
}
