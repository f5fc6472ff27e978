package pipeline

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/videoindex/core/internal/models"
)

const sidecarSchemaVersion = "1.0"

// sidecarTranscript holds a scene's full transcript text, the ordered ASR
// segments overlapping it, and the detected language.
type sidecarTranscript struct {
	Text     string           `json:"text"`
	Segments []sidecarSegment `json:"segments"`
	Language string           `json:"language"`
}

type sidecarSegment struct {
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
	Text   string  `json:"text"`
}

// sidecarEmbeddingInfo records model identity and dimension without the
// vector payload itself.
type sidecarEmbeddingInfo struct {
	Model        string `json:"model"`
	Dimensions   int    `json:"dimensions"`
	HasEmbedding bool   `json:"has_embedding"`
}

type sidecarEmbeddings struct {
	Text   sidecarEmbeddingInfo `json:"text"`
	Vision sidecarEmbeddingInfo `json:"vision"`
}

type sidecarPerson struct {
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	FrameCount int     `json:"frame_count"`
}

type sidecarProcessingInfo struct {
	ASRModel    string `json:"asr_model"`
	TextModel   string `json:"text_model"`
	VisionModel string `json:"vision_model"`
}

type sidecarMetadata struct {
	CreatedAt      string                `json:"created_at"`
	Version        string                `json:"version"`
	ProcessingInfo sidecarProcessingInfo `json:"processing_info"`
}

// sidecarDocument is the per-scene JSON export: identity, time bounds,
// transcript, embedding provenance (not payloads), vision tags, detected
// people, and processing metadata.
type sidecarDocument struct {
	VideoID    string             `json:"video_id"`
	SceneID    string             `json:"scene_id"`
	StartS     float64            `json:"start_s"`
	EndS       float64            `json:"end_s"`
	DurationS  float64            `json:"duration_s"`
	Transcript sidecarTranscript  `json:"transcript"`
	Embeddings sidecarEmbeddings  `json:"embeddings"`
	VisionTags map[string]float64 `json:"vision_tags"`
	People     []sidecarPerson    `json:"people"`
	Metadata   sidecarMetadata    `json:"metadata"`
}

// buildSidecarJSON serializes one scene's sidecar document. It never
// includes vector payloads, only model identity, dimension, and whether an
// embedding was actually computed for the scene.
func buildSidecarJSON(r *Runner, video *models.Video, rc *runContext, scene *sceneWork) (string, error) {
	segments := make([]sidecarSegment, 0, len(scene.Segments))
	for _, seg := range scene.Segments {
		segments = append(segments, sidecarSegment{StartS: seg.StartS, EndS: seg.EndS, Text: seg.Text})
	}

	people := make([]sidecarPerson, 0, len(scene.Persons))
	for _, p := range scene.Persons {
		people = append(people, sidecarPerson{
			PersonID:   p.PersonID.String(),
			Name:       p.Name,
			Confidence: p.Confidence,
			FrameCount: p.FrameHits,
		})
	}

	infCfg := r.Inference.Config()

	doc := sidecarDocument{
		VideoID:   video.ID.String(),
		SceneID:   scene.ID.String(),
		StartS:    scene.StartS,
		EndS:      scene.EndS,
		DurationS: scene.EndS - scene.StartS,
		Transcript: sidecarTranscript{
			Text:     scene.Transcript,
			Segments: segments,
			Language: rc.language,
		},
		Embeddings: sidecarEmbeddings{
			Text: sidecarEmbeddingInfo{
				Model:        infCfg.TextModel,
				Dimensions:   infCfg.TextDimensions,
				HasEmbedding: scene.TextVec != nil,
			},
			Vision: sidecarEmbeddingInfo{
				Model:        infCfg.VisionModel,
				Dimensions:   infCfg.VisionDimensions,
				HasEmbedding: scene.ImageVec != nil,
			},
		},
		VisionTags: scene.VisionTags,
		People:     people,
		Metadata: sidecarMetadata{
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Version:   sidecarSchemaVersion,
			ProcessingInfo: sidecarProcessingInfo{
				ASRModel:    infCfg.ASRModel,
				TextModel:   infCfg.TextModel,
				VisionModel: infCfg.VisionModel,
			},
		},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func strReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
