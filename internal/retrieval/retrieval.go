// Package retrieval implements the three query-time search modes over the
// Store: keyword (metadata SQL scoring), semantic (dense vector similarity
// with weighted fusion and person boost), and hybrid (Reciprocal Rank
// Fusion of sparse full-text and dense vector rankings).
package retrieval

import (
	"fmt"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/inference"
	"github.com/videoindex/core/internal/models"
	"github.com/videoindex/core/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Engine answers search requests scoped to one owner's indexed videos.
type Engine struct {
	Store     *store.Store
	Inference *inference.Client
	ANN       config.ANN
	Hybrid    config.HybridWeights
	Semantic  config.SemanticWeights
	Features  config.Features
}

// NewEngine wires an Engine from its collaborators and configuration.
func NewEngine(st *store.Store, inf *inference.Client, ann config.ANN, hybrid config.HybridWeights, semantic config.SemanticWeights, features config.Features) *Engine {
	return &Engine{Store: st, Inference: inf, ANN: ann, Hybrid: hybrid, Semantic: semantic, Features: features}
}

// Params are the common inputs shared by all three search modes.
type Params struct {
	OwnerID      uuid.UUID
	Query        string
	Limit        int
	Offset       int
	PersonID     *uuid.UUID
	MinDuration  *float64
	MaxDuration  *float64
	TextWeight   *float64
	VisionWeight *float64
}

// Result is one ranked scene with its parent video and the score that
// placed it.
type Result struct {
	Scene models.Scene `json:"scene"`
	Video models.Video `json:"video"`
	Score float64      `json:"score"`
}

// normalize clamps pagination and rejects an empty query, the validation
// every mode shares.
func (p *Params) normalize() error {
	if p.Query == "" {
		return apperr.New(apperr.ClassInvalidInput, "query must not be empty")
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return nil
}

func durationFilterSQL(p *Params) (string, []interface{}) {
	clause := ""
	var args []interface{}
	if p.MinDuration != nil {
		clause += " AND (scenes.end_s - scenes.start_s) >= ?"
		args = append(args, *p.MinDuration)
	}
	if p.MaxDuration != nil {
		clause += " AND (scenes.end_s - scenes.start_s) <= ?"
		args = append(args, *p.MaxDuration)
	}
	return clause, args
}

func personFilterSQL(p *Params) (string, []interface{}) {
	if p.PersonID == nil {
		return "", nil
	}
	return " AND EXISTS (SELECT 1 FROM scene_persons sp WHERE sp.scene_id = scenes.id AND sp.person_id = ?)", []interface{}{*p.PersonID}
}

// runVectorQuery executes a dense ANN query, setting hnsw.ef_search for the
// transaction when ANN tuning is enabled so the index's search breadth
// matches configuration instead of the server default.
func (e *Engine) runVectorQuery(fn func(tx *gorm.DB) error) error {
	if e.Features.ANNTuning && e.ANN.EFSearch > 0 {
		return e.Store.WithANNEfSearch(e.ANN.EFSearch, fn)
	}
	return fn(e.Store.DB)
}

// loadScenesAndVideos batch-loads full Scene and Video rows for a set of
// scene ids, preserving neither order nor dedup; callers re-attach score
// and sort themselves.
func (e *Engine) loadScenesAndVideos(sceneIDs []uuid.UUID) (map[uuid.UUID]models.Scene, map[uuid.UUID]models.Video, error) {
	scenesByID := make(map[uuid.UUID]models.Scene, len(sceneIDs))
	videosByID := make(map[uuid.UUID]models.Video)
	if len(sceneIDs) == 0 {
		return scenesByID, videosByID, nil
	}

	var scenes []models.Scene
	if err := e.Store.Where("id IN ?", sceneIDs).Find(&scenes).Error; err != nil {
		return nil, nil, fmt.Errorf("load scenes: %w", err)
	}

	videoIDSet := make(map[uuid.UUID]struct{})
	for _, s := range scenes {
		scenesByID[s.ID] = s
		videoIDSet[s.VideoID] = struct{}{}
	}
	videoIDs := make([]uuid.UUID, 0, len(videoIDSet))
	for id := range videoIDSet {
		videoIDs = append(videoIDs, id)
	}

	var videos []models.Video
	if err := e.Store.Where("id IN ?", videoIDs).Find(&videos).Error; err != nil {
		return nil, nil, fmt.Errorf("load videos: %w", err)
	}
	for _, v := range videos {
		videosByID[v.ID] = v
	}
	return scenesByID, videosByID, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

func parseUUIDs(ss []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func paginate(results []Result, limit, offset int) []Result {
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
