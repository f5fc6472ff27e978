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

// SearchSemantic ranks scenes by dense vector similarity over text and
// image embeddings, fused with configurable weights plus a person-filter
// boost.
func (e *Engine) SearchSemantic(ctx context.Context, p Params) ([]Result, int, error) {
	if err := p.normalize(); err != nil {
		return nil, 0, err
	}

	wText, wVision, err := e.resolveSemanticWeights(p)
	if err != nil {
		return nil, 0, err
	}

	queryVec, err := e.Inference.EmbedTextCached(ctx, p.Query)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}
	queryVec = vecmath.Normalize(queryVec)
	if queryVec == nil {
		return nil, 0, apperr.New(apperr.ClassInvalidInput, "query embedding has zero norm")
	}
	qv := pgvector.NewVector(queryVec)

	durClause, durArgs := durationFilterSQL(&p)
	personClause, personArgs := personFilterSQL(&p)

	candidateLimit := e.ANN.TopKCandidates
	if !e.Features.ANNTuning || candidateLimit <= 0 {
		candidateLimit = 2000
	}

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
	args = append(args, qv, candidateLimit)

	var rows []struct {
		SceneID   string
		VisionSim float64
		TextSim   float64
	}
	if err := e.runVectorQuery(func(tx *gorm.DB) error {
		return tx.Raw(query, args...).Scan(&rows).Error
	}); err != nil {
		return nil, 0, fmt.Errorf("semantic search query: %w", err)
	}

	personBoost := 0.0
	if p.PersonID != nil {
		personBoost = e.Semantic.PersonBoost
	}

	sceneIDs := make([]string, 0, len(rows))
	scoreByID := make(map[string]float64, len(rows))
	for _, r := range rows {
		sceneIDs = append(sceneIDs, r.SceneID)
		scoreByID[r.SceneID] = wText*r.TextSim + wVision*r.VisionSim + personBoost
	}

	scenesByID, videosByID, err := e.loadScenesAndVideos(parseUUIDs(sceneIDs))
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		id, err := parseUUID(r.SceneID)
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
		results = append(results, Result{Scene: scene, Video: video, Score: scoreByID[r.SceneID]})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if e.Features.ANNTuning && e.ANN.FinalLimit > 0 && len(results) > e.ANN.FinalLimit {
		results = results[:e.ANN.FinalLimit]
	}

	return paginate(results, p.Limit, p.Offset), len(results), nil
}

// resolveSemanticWeights applies any request overrides within [0,1], falling
// back to the configured defaults.
func (e *Engine) resolveSemanticWeights(p Params) (textWeight, visionWeight float64, err error) {
	textWeight, visionWeight = e.Semantic.WText, e.Semantic.WVision
	if p.TextWeight != nil {
		if *p.TextWeight < 0 || *p.TextWeight > 1 {
			return 0, 0, apperr.New(apperr.ClassInvalidInput, "text_weight must be within [0,1]")
		}
		textWeight = *p.TextWeight
	}
	if p.VisionWeight != nil {
		if *p.VisionWeight < 0 || *p.VisionWeight > 1 {
			return 0, 0, apperr.New(apperr.ClassInvalidInput, "vision_weight must be within [0,1]")
		}
		visionWeight = *p.VisionWeight
	}
	return textWeight, visionWeight, nil
}
