package canonicaltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildComposesInOrder(t *testing.T) {
	out := Build(
		"a dog runs across the yard.",
		map[string]float64{"dog": 0.9, "grass": 0.4, "fence": 0.6},
		[]string{"Bob", "alice", "Bob"},
		2, 100,
	)
	assert.Equal(t, "a dog runs across the yard. | dog, fence | Bob, alice", out)
}

func TestBuildSkipsEmptyParts(t *testing.T) {
	out := Build("", nil, nil, 3, 100)
	assert.Equal(t, "", out)
}

func TestTrimToTokenBudgetPrefersSentenceBoundary(t *testing.T) {
	out := trimToTokenBudget("one two three. four five six seven", 6)
	assert.Equal(t, "one two three.", out)
}

func TestTrimToTokenBudgetNoBoundaryFallsBackToWordCut(t *testing.T) {
	out := trimToTokenBudget("one two three four five six seven", 3)
	assert.Equal(t, "one two three", out)
}
