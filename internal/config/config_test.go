package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.ANN.EFSearch)
	assert.Equal(t, 200, cfg.ANN.TopKCandidates)
	assert.Equal(t, 60, cfg.Hybrid.K)
	assert.Equal(t, 0.3, cfg.Hybrid.WSparse)
	assert.Equal(t, 0.7, cfg.Hybrid.WDense)
	assert.Equal(t, 0.5, cfg.Semantic.WText)
	assert.Equal(t, 0.35, cfg.Semantic.WVision)
	assert.Equal(t, 0.3, cfg.Semantic.PersonBoost)
	assert.Equal(t, 0.6, cfg.Pipeline.FaceMatchThreshold)
	assert.Equal(t, 4, cfg.Pipeline.SceneConcurrency)
	assert.Contains(t, cfg.Pipeline.AllowedMimeTypes, "video/mp4")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANN_EF_SEARCH", "250")
	t.Setenv("HYBRID_W_DENSE", "0.9")
	t.Setenv("FEATURE_SEMANTIC_SEARCH", "false")
	t.Setenv("PIPELINE_ALLOWED_MIME_TYPES", "video/mp4, video/webm")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.ANN.EFSearch)
	assert.Equal(t, 0.9, cfg.Hybrid.WDense)
	assert.False(t, cfg.Features.SemanticSearch)
	assert.Equal(t, []string{"video/mp4", "video/webm"}, cfg.Pipeline.AllowedMimeTypes)
}

func TestEnvHelpersIgnoreUnparseableValues(t *testing.T) {
	t.Setenv("ANN_EF_SEARCH", "not-a-number")
	t.Setenv("FEATURE_HYBRID_RRF", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.ANN.EFSearch)
	assert.True(t, cfg.Features.HybridRRF)
}

func TestPostgresDSN(t *testing.T) {
	p := Postgres{
		Host: "db", Port: "5433", User: "u", Password: "pw",
		DBName: "videoindex", SSLMode: "disable", TimeZone: "UTC",
	}
	dsn := p.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "dbname=videoindex")
}
