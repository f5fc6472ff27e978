package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/vecmath"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// SearchHybrid fuses a sparse full-text ranking and a dense
// vector-similarity ranking via Reciprocal Rank Fusion. The HTTP handler is
// responsible for rejecting the mode when its feature flags are off.
func (e *Engine) SearchHybrid(ctx context.Context, p Params) ([]Result, int, error) {
	if err := p.normalize(); err != nil {
		return nil, 0, err
	}

	topK := e.ANN.TopKCandidates
	if topK <= 0 {
		topK = 200
	}

	sparseRank, err := e.sparseRank(p, topK)
	if err != nil {
		return nil, 0, err
	}
	denseRank, err := e.denseRank(ctx, p, topK)
	if err != nil {
		return nil, 0, err
	}

	k := float64(e.Hybrid.K)
	if k == 0 {
		k = 60
	}
	fused := fuseRanks(sparseRank, denseRank, k, e.Hybrid.WSparse, e.Hybrid.WDense)

	sceneIDs := make([]string, 0, len(fused))
	for id := range fused {
		sceneIDs = append(sceneIDs, id)
	}
	scenesByID, videosByID, err := e.loadScenesAndVideos(parseUUIDs(sceneIDs))
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(fused))
	for sceneIDStr, score := range fused {
		id, err := parseUUID(sceneIDStr)
		if err != nil {
			continue
		}
		scene, ok := scenesByID[id]
		if !ok {
			continue
		}
		video, ok := videosByID[scene.VideoID]
		if !ok {
			continue
		}
		results = append(results, Result{Scene: scene, Video: video, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	return paginate(results, p.Limit, p.Offset), len(results), nil
}

// fuseRanks combines two rank maps via Reciprocal Rank Fusion:
// score(s) = w_sparse/(k+rank_sparse) + w_dense/(k+rank_dense), with a
// missing rank in either map contributing 0 for that term.
func fuseRanks(sparseRank, denseRank map[string]int, k, wSparse, wDense float64) map[string]float64 {
	fused := make(map[string]float64, len(sparseRank)+len(denseRank))
	for sceneID, rank := range sparseRank {
		fused[sceneID] += wSparse * 1 / (k + float64(rank))
	}
	for sceneID, rank := range denseRank {
		fused[sceneID] += wDense * 1 / (k + float64(rank))
	}
	return fused
}

// sparseRank returns 1-indexed ranks of the top-topK scenes by full-text
// match, keyed by scene id string.
func (e *Engine) sparseRank(p Params, topK int) (map[string]int, error) {
	durClause, durArgs := durationFilterSQL(&p)
	personClause, personArgs := personFilterSQL(&p)

	query := fmt.Sprintf(`
		SELECT scenes.id AS scene_id
		FROM scenes
		JOIN videos ON videos.id = scenes.video_id
		WHERE videos.owner_id = ? AND videos.state = 'indexed'
			AND scenes.transcript_tsv @@ plainto_tsquery('english', ?)%s%s
		ORDER BY ts_rank(scenes.transcript_tsv, plainto_tsquery('english', ?)) DESC
		LIMIT ?
	`, durClause, personClause)

	args := []interface{}{p.OwnerID, p.Query}
	args = append(args, durArgs...)
	args = append(args, personArgs...)
	args = append(args, p.Query, topK)

	var ids []string
	if err := e.Store.Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("sparse rank query: %w", err)
	}

	ranks := make(map[string]int, len(ids))
	for i, id := range ids {
		ranks[id] = i + 1
	}
	return ranks, nil
}

// denseRank takes the topK scenes nearest the query embedding by image-vector
// distance and returns their 1-indexed ranks by the composite
// vector-similarity score.
func (e *Engine) denseRank(ctx context.Context, p Params, topK int) (map[string]int, error) {
	queryVec, err := e.Inference.EmbedTextCached(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = vecmath.Normalize(queryVec)
	if queryVec == nil {
		return nil, apperr.New(apperr.ClassInvalidInput, "query embedding has zero norm")
	}
	qv := pgvector.NewVector(queryVec)

	durClause, durArgs := durationFilterSQL(&p)
	personClause, personArgs := personFilterSQL(&p)

	query := fmt.Sprintf(`
		SELECT scenes.id AS scene_id,
			CASE WHEN scenes.image_vec IS NOT NULL THEN 1 - (scenes.image_vec <=> ?) ELSE 0 END AS vision_sim,
			CASE WHEN scenes.text_vec IS NOT NULL THEN 1 - (scenes.text_vec <=> ?) ELSE 0 END AS text_sim
		FROM scenes
		JOIN videos ON videos.id = scenes.video_id
		WHERE videos.owner_id = ? AND videos.state = 'indexed'
			AND (scenes.image_vec IS NOT NULL OR scenes.text_vec IS NOT NULL)%s%s
		ORDER BY scenes.image_vec <=> ?
		LIMIT ?
	`, durClause, personClause)

	args := []interface{}{qv, qv, p.OwnerID}
	args = append(args, durArgs...)
	args = append(args, personArgs...)
	args = append(args, qv, topK)

	var rows []struct {
		SceneID   string
		VisionSim float64
		TextSim   float64
	}
	if err := e.runVectorQuery(func(tx *gorm.DB) error {
		return tx.Raw(query, args...).Scan(&rows).Error
	}); err != nil {
		return nil, fmt.Errorf("dense rank query: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	scoredRows := make([]scored, 0, len(rows))
	for _, r := range rows {
		scoredRows = append(scoredRows, scored{id: r.SceneID, score: e.Semantic.WText*r.TextSim + e.Semantic.WVision*r.VisionSim})
	}
	sort.SliceStable(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })

	ranks := make(map[string]int, len(scoredRows))
	for i, r := range scoredRows {
		ranks[r.id] = i + 1
	}
	return ranks, nil
}
