package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/inference"
	"github.com/videoindex/core/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlappingTranscriptIncludesStraddlingSegments(t *testing.T) {
	segments := []asrSegment{
		{StartS: 0, EndS: 5, Text: "hello"},
		{StartS: 4, EndS: 10, Text: "world"},
		{StartS: 20, EndS: 25, Text: "unrelated"},
	}
	got := overlappingTranscript(segments, 3, 6)
	assert.Equal(t, "hello world", got)
}

func TestOverlappingTranscriptEmptyWhenNoOverlap(t *testing.T) {
	segments := []asrSegment{{StartS: 0, EndS: 1, Text: "hi"}}
	assert.Equal(t, "", overlappingTranscript(segments, 10, 20))
}

func TestToJSONObjectConvertsFloatMap(t *testing.T) {
	out := toJSONObject(map[string]float64{"dog": 0.9})
	assert.Equal(t, 0.9, out["dog"])
}

func TestTextEmbeddingInputFallbackChain(t *testing.T) {
	r := &Runner{}
	title := "beach day"
	withTitle := &runContext{video: &models.Video{Metadata: &models.VideoMetadata{Title: &title}}}
	withoutTitle := &runContext{video: &models.Video{}}

	assert.Equal(t, "hello", r.textEmbeddingInput(withTitle, "hello", nil))
	assert.Equal(t, "beach day", r.textEmbeddingInput(withTitle, "", nil))
	assert.Equal(t, fallbackTextInput, r.textEmbeddingInput(withoutTitle, "", nil))
}

func TestTextEmbeddingInputCanonicalTrimUsesTags(t *testing.T) {
	r := &Runner{}
	r.Features.CanonicalTrim = true
	rc := &runContext{video: &models.Video{}}

	got := r.textEmbeddingInput(rc, "a dog runs.", map[string]float64{"dog": 0.9})
	assert.Equal(t, "a dog runs. | dog", got)
}

func TestBuildSidecarJSONRoundTrip(t *testing.T) {
	infClient, err := inference.New(config.Inference{
		QueryCacheSize:   1,
		TextModel:        "text-embed-v1",
		VisionModel:      "vision-embed-v1",
		ASRModel:         "asr-v1",
		TextDimensions:   1536,
		VisionDimensions: 1536,
	})
	require.NoError(t, err)
	runner := &Runner{Inference: infClient}

	video := &models.Video{ID: uuid.New()}
	scene := &sceneWork{
		ID:         uuid.New(),
		Index:      0,
		StartS:     0,
		EndS:       12.5,
		Transcript: "hello world",
		Segments:   []asrSegment{{StartS: 0.2, EndS: 4.8, Text: "hello world"}},
		VisionTags: map[string]float64{"outdoor": 0.7},
		TextVec:    []float32{1},
	}
	rc := &runContext{ctx: context.Background(), language: "en"}

	body, err := buildSidecarJSON(runner, video, rc, scene)
	require.NoError(t, err)

	var doc sidecarDocument
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, video.ID.String(), doc.VideoID)
	assert.Equal(t, scene.ID.String(), doc.SceneID)
	assert.Equal(t, 0.0, doc.StartS)
	assert.Equal(t, 12.5, doc.EndS)
	assert.Equal(t, "hello world", doc.Transcript.Text)
	require.Len(t, doc.Transcript.Segments, 1)
	assert.Equal(t, 0.2, doc.Transcript.Segments[0].StartS)
	assert.True(t, doc.Embeddings.Text.HasEmbedding)
	assert.False(t, doc.Embeddings.Vision.HasEmbedding)
	assert.Equal(t, 1536, doc.Embeddings.Text.Dimensions)
	assert.Equal(t, 0.7, doc.VisionTags["outdoor"])
	assert.Equal(t, sidecarSchemaVersion, doc.Metadata.Version)
}

func TestBuildSidecarJSONIncludesPeopleAndTranscript(t *testing.T) {
	infClient, err := inference.New(config.Inference{
		QueryCacheSize: 1,
		TextModel:      "text-embed-v1",
		VisionModel:    "vision-embed-v1",
		ASRModel:       "asr-v1",
	})
	require.NoError(t, err)
	runner := &Runner{Inference: infClient}

	video := &models.Video{ID: uuid.New()}
	personID := uuid.New()
	scene := &sceneWork{
		ID:         uuid.New(),
		Index:      2,
		StartS:     1,
		EndS:       5,
		Transcript: "a scene",
		Segments:   []asrSegment{{StartS: 1, EndS: 5, Text: "a scene"}},
		VisionTags: map[string]float64{"cat": 0.5},
		Persons:    []personMatch{{PersonID: personID, Name: "Alice", Confidence: 0.8, FrameHits: 1}},
	}
	rc := &runContext{ctx: context.Background(), language: "en"}

	body, err := buildSidecarJSON(runner, video, rc, scene)
	require.NoError(t, err)
	assert.Contains(t, body, `"text":"a scene"`)
	assert.Contains(t, body, `"name":"Alice"`)
	assert.Contains(t, body, `"language":"en"`)
	assert.Contains(t, body, `"asr_model":"asr-v1"`)
}
