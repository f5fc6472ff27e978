package retrieval

import (
	"fmt"
)

// SearchKeyword ranks scenes by a pure-SQL weighted sum over metadata and
// transcript substring matches.
func (e *Engine) SearchKeyword(p Params) ([]Result, int, error) {
	if err := p.normalize(); err != nil {
		return nil, 0, err
	}

	durClause, durArgs := durationFilterSQL(&p)
	personClause, personArgs := personFilterSQL(&p)

	const metadataScoreSQL = `
		CASE
			WHEN lower(video_metadata.title) = lower(?) THEN 1.0
			WHEN video_metadata.title ILIKE '%' || ? || '%' THEN 0.8
			WHEN videos.storage_key ILIKE '%' || ? || '%' THEN 0.7
			WHEN video_metadata.description ILIKE '%' || ? || '%' THEN 0.6
			WHEN video_metadata.tags::text ILIKE '%' || ? || '%' THEN 0.5
			ELSE 0
		END`
	const transcriptScoreSQL = `
		CASE WHEN scenes.transcript ILIKE '%' || ? || '%' THEN 1.0 ELSE 0 END`

	query := fmt.Sprintf(`
		SELECT scenes.id AS scene_id,
			(0.4 * (%s) + 0.2 * (%s)) AS score
		FROM scenes
		JOIN videos ON videos.id = scenes.video_id
		LEFT JOIN video_metadata ON video_metadata.video_id = videos.id
		WHERE videos.owner_id = ? AND videos.state = 'indexed'%s%s
		ORDER BY score DESC, scenes.created_at DESC
	`, metadataScoreSQL, transcriptScoreSQL, durClause, personClause)

	args := []interface{}{p.Query, p.Query, p.Query, p.Query, p.Query, p.Query, p.OwnerID}
	args = append(args, durArgs...)
	args = append(args, personArgs...)

	var rows []struct {
		SceneID string
		Score   float64
	}
	if err := e.Store.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("keyword search query: %w", err)
	}

	sceneIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		sceneIDs = append(sceneIDs, r.SceneID)
	}

	scenesByID, videosByID, err := e.loadScenesAndVideos(parseUUIDs(sceneIDs))
	if err != nil {
		return nil, 0, err
	}

	// rows is already ordered by score DESC, created_at DESC; preserve that
	// order while attaching the loaded Scene/Video rows.
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
		results = append(results, Result{Scene: scene, Video: video, Score: r.Score})
	}

	return paginate(results, p.Limit, p.Offset), len(results), nil
}
