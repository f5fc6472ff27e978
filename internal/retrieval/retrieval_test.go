package retrieval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsNormalizeRejectsEmptyQuery(t *testing.T) {
	p := Params{Query: ""}
	err := p.normalize()
	require.Error(t, err)
}

func TestParamsNormalizeClampsLimit(t *testing.T) {
	p := Params{Query: "cat", Limit: 500, Offset: -5}
	require.NoError(t, p.normalize())
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 0, p.Offset)
}

func TestParamsNormalizeDefaultsLimit(t *testing.T) {
	p := Params{Query: "cat"}
	require.NoError(t, p.normalize())
	assert.Equal(t, 20, p.Limit)
}

func TestDurationFilterSQLBuildsBothBounds(t *testing.T) {
	min, max := 1.0, 10.0
	p := Params{MinDuration: &min, MaxDuration: &max}
	clause, args := durationFilterSQL(&p)
	assert.Contains(t, clause, ">=")
	assert.Contains(t, clause, "<=")
	assert.Equal(t, []interface{}{min, max}, args)
}

func TestPersonFilterSQLEmptyWhenNil(t *testing.T) {
	p := Params{}
	clause, args := personFilterSQL(&p)
	assert.Equal(t, "", clause)
	assert.Nil(t, args)
}

func TestPersonFilterSQLIncludesID(t *testing.T) {
	id := uuid.New()
	p := Params{PersonID: &id}
	clause, args := personFilterSQL(&p)
	assert.Contains(t, clause, "scene_persons")
	assert.Equal(t, []interface{}{id}, args)
}

func TestParseUUIDsSkipsInvalid(t *testing.T) {
	valid := uuid.New()
	out := parseUUIDs([]string{valid.String(), "not-a-uuid"})
	assert.Equal(t, []uuid.UUID{valid}, out)
}

func TestPaginateSlicesWindow(t *testing.T) {
	results := []Result{{Score: 3}, {Score: 2}, {Score: 1}}
	got := paginate(results, 2, 1)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Score)
	assert.Equal(t, 1.0, got[1].Score)
}

func TestPaginateOffsetPastEndReturnsEmpty(t *testing.T) {
	results := []Result{{Score: 1}}
	assert.Empty(t, paginate(results, 10, 5))
}

func TestFuseRanksCombinesBothLists(t *testing.T) {
	sparse := map[string]int{"a": 1, "b": 2}
	dense := map[string]int{"b": 1, "c": 1}
	fused := fuseRanks(sparse, dense, 60, 0.3, 0.7)

	wantA := 0.3 * 1 / 61.0
	wantB := 0.3*1/62.0 + 0.7*1/61.0
	wantC := 0.7 * 1 / 61.0

	assert.InDelta(t, wantA, fused["a"], 1e-9)
	assert.InDelta(t, wantB, fused["b"], 1e-9)
	assert.InDelta(t, wantC, fused["c"], 1e-9)
}

func TestFuseRanksDenseHeavyOutranksSparseWinner(t *testing.T) {
	// a is the sparse winner but only #5 dense; b is #1 dense. With the
	// default dense-heavy weights, b must rank above a.
	sparse := map[string]int{"a": 1, "b": 10}
	dense := map[string]int{"a": 5, "b": 1}
	fused := fuseRanks(sparse, dense, 60, 0.3, 0.7)
	assert.Greater(t, fused["b"], fused["a"])
}

func TestResolveSemanticWeightsAppliesOverrides(t *testing.T) {
	e := &Engine{}
	e.Semantic.WText = 0.5
	e.Semantic.WVision = 0.35

	override := 0.9
	textW, visionW, err := e.resolveSemanticWeights(Params{TextWeight: &override})
	require.NoError(t, err)
	assert.Equal(t, 0.9, textW)
	assert.Equal(t, 0.35, visionW)
}

func TestResolveSemanticWeightsRejectsOutOfRange(t *testing.T) {
	e := &Engine{}
	bad := 1.5
	_, _, err := e.resolveSemanticWeights(Params{TextWeight: &bad})
	require.Error(t, err)
}
