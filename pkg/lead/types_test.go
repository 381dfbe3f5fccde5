package lead

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeIdempotencyKey_TrimAndCaseInsensitive(t *testing.T) {
	k1 := ComputeIdempotencyKey("User@Example.com", "spring-launch")
	k2 := ComputeIdempotencyKey("  user@example.com  ", "  spring-launch  ")

	assert.Equal(t, k1, k2)
}

func TestComputeIdempotencyKey_DifferentInputsDiffer(t *testing.T) {
	k1 := ComputeIdempotencyKey("a@example.com", "c1")
	k2 := ComputeIdempotencyKey("b@example.com", "c1")

	assert.NotEqual(t, k1, k2)
}

func TestFallbackAnalysis(t *testing.T) {
	got := FallbackAnalysis("provider timed out")

	assert.Equal(t, 0, got.FitScore)
	assert.Equal(t, IntentManualReview, got.Intent)
	assert.Equal(t, DecisionIgnore, got.Decision)
	assert.Equal(t, GroundingRejected, got.GroundingStatus)
	assert.Contains(t, got.GroundingErrors, "provider timed out")
}
