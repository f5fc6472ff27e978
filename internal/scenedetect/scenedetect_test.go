package scenedetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePartitionSynthesizesFallbackScene(t *testing.T) {
	out := normalizePartition(nil, 42.0)
	assert.Equal(t, []Interval{{StartS: 0, EndS: 42.0}}, out)
}

func TestNormalizePartitionClosesGaps(t *testing.T) {
	in := []Interval{
		{StartS: 0, EndS: 9.5},
		{StartS: 10, EndS: 20},
		{StartS: 20.2, EndS: 30},
	}
	out := normalizePartition(in, 30.0)

	for i := 1; i < len(out); i++ {
		assert.Equal(t, out[i-1].EndS, out[i].StartS)
	}
	assert.Equal(t, 0.0, out[0].StartS)
	assert.Equal(t, 30.0, out[len(out)-1].EndS)
}
