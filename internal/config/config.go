// Package config assembles the process configuration from environment
// variables, optionally loaded from a .env file, into one typed struct per
// subsystem.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Postgres holds Store connection parameters.
type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// DSN renders the libpq connection string gorm's postgres driver expects.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode, p.TimeZone)
}

// Redis holds the address of the Redis instance backing the asynq task bus.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Blob holds the S3-compatible object store connection parameters.
type Blob struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UploadBucket    string
	ThumbnailBucket string
	SidecarBucket   string
	PhotoBucket     string
	PresignTTL      time.Duration
	ForcePathStyle  bool
}

// Inference holds the HTTP client configuration and model identifiers for
// the external inference microservice.
type Inference struct {
	BaseURL             string
	Timeout             time.Duration
	MaxRetries          int
	KeepAliveConns      int
	MaxIdleConnsPerHost int
	QueryCacheSize      int
	ASRModel            string
	TextModel           string
	VisionModel         string
	FaceModel           string
	TextDimensions      int
	VisionDimensions    int
	FaceDimensions      int
	DefaultLanguage     string
}

// Features toggles the optional subsystems.
type Features struct {
	SemanticSearch bool
	HybridRRF      bool
	ANNTuning      bool
	CanonicalTrim  bool
	Eval           bool
	FaceEnrollment bool
	FaceDetection  bool
}

// ANN holds the approximate-nearest-neighbor tuning parameters.
type ANN struct {
	EFSearch       int
	TopKCandidates int
	FinalLimit     int
}

// HybridWeights holds the Reciprocal Rank Fusion parameters for hybrid
// search.
type HybridWeights struct {
	K       int
	WSparse float64
	WDense  float64
}

// SemanticWeights holds the semantic-search scoring weights.
type SemanticWeights struct {
	WText       float64
	WVision     float64
	WTag        float64
	PersonBoost float64
}

// Pipeline holds pipeline-wide tunables.
type Pipeline struct {
	MaxVideoSeconds       float64
	MaxVideoBytes         int64
	AllowedMimeTypes      []string
	SceneConcurrency      int
	StageMaxRetries       int
	FaceMatchThreshold    float64
	ScratchDir            string
	SceneDetectScriptPath string
	SceneDetectTimeout    time.Duration
}

// Config is the full process configuration assembled by Load.
type Config struct {
	Postgres  Postgres
	Redis     Redis
	Blob      Blob
	Inference Inference
	Features  Features
	ANN       ANN
	Hybrid    HybridWeights
	Semantic  SemanticWeights
	Pipeline  Pipeline
	HTTPPort  string
}

// Load reads the process configuration from the environment, loading a
// .env file first if present.
func Load() (*Config, error) {
	// No .env file is the normal case in containerized deploys.
	_ = godotenv.Load()

	cfg := &Config{
		Postgres: Postgres{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			User:     env("DB_USER", "videoindex"),
			Password: env("DB_PASSWORD", ""),
			DBName:   env("DB_NAME", "videoindex"),
			SSLMode:  env("DB_SSLMODE", "disable"),
			TimeZone: env("DB_TIMEZONE", "UTC"),
		},
		Redis: Redis{
			Addr:     env("REDIS_ADDR", "localhost:6379"),
			Password: env("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Blob: Blob{
			Endpoint:        env("BLOB_ENDPOINT", ""),
			Region:          env("BLOB_REGION", "us-east-1"),
			AccessKeyID:     env("BLOB_ACCESS_KEY_ID", ""),
			SecretAccessKey: env("BLOB_SECRET_ACCESS_KEY", ""),
			UploadBucket:    env("BLOB_UPLOAD_BUCKET", "videoindex-uploads"),
			ThumbnailBucket: env("BLOB_THUMBNAIL_BUCKET", "videoindex-thumbnails"),
			SidecarBucket:   env("BLOB_SIDECAR_BUCKET", "videoindex-sidecars"),
			PhotoBucket:     env("BLOB_PHOTO_BUCKET", "videoindex-face-photos"),
			PresignTTL:      envDuration("BLOB_PRESIGN_TTL", 15*time.Minute),
			ForcePathStyle:  envBool("BLOB_FORCE_PATH_STYLE", true),
		},
		Inference: Inference{
			BaseURL:             env("INFERENCE_BASE_URL", "http://localhost:9000"),
			Timeout:             envDuration("INFERENCE_TIMEOUT", 60*time.Second),
			MaxRetries:          envInt("INFERENCE_MAX_RETRIES", 2),
			KeepAliveConns:      envInt("INFERENCE_KEEPALIVE_CONNS", 10),
			MaxIdleConnsPerHost: envInt("INFERENCE_MAX_IDLE_CONNS", 20),
			QueryCacheSize:      envInt("INFERENCE_QUERY_CACHE_SIZE", 128),
			ASRModel:            env("INFERENCE_ASR_MODEL", "asr-v1"),
			TextModel:           env("INFERENCE_TEXT_MODEL", "text-embed-v1"),
			VisionModel:         env("INFERENCE_VISION_MODEL", "vision-embed-v1"),
			FaceModel:           env("INFERENCE_FACE_MODEL", "face-embed-v1"),
			TextDimensions:      envInt("INFERENCE_TEXT_DIMENSIONS", 1536),
			VisionDimensions:    envInt("INFERENCE_VISION_DIMENSIONS", 1536),
			FaceDimensions:      envInt("INFERENCE_FACE_DIMENSIONS", 512),
			DefaultLanguage:     env("INFERENCE_DEFAULT_LANGUAGE", ""),
		},
		Features: Features{
			SemanticSearch: envBool("FEATURE_SEMANTIC_SEARCH", true),
			HybridRRF:      envBool("FEATURE_HYBRID_RRF", true),
			ANNTuning:      envBool("FEATURE_ANN_TUNING", true),
			CanonicalTrim:  envBool("FEATURE_CANONICAL_TRIM", false),
			Eval:           envBool("FEATURE_EVAL", false),
			FaceEnrollment: envBool("FEATURE_FACE_ENROLLMENT", true),
			FaceDetection:  envBool("FEATURE_FACE_DETECTION", true),
		},
		ANN: ANN{
			EFSearch:       envInt("ANN_EF_SEARCH", 100),
			TopKCandidates: envInt("ANN_TOPK_CANDIDATES", 200),
			FinalLimit:     envInt("ANN_FINAL_LIMIT", 20),
		},
		Hybrid: HybridWeights{
			K:       envInt("HYBRID_K", 60),
			WSparse: envFloat("HYBRID_W_SPARSE", 0.3),
			WDense:  envFloat("HYBRID_W_DENSE", 0.7),
		},
		Semantic: SemanticWeights{
			WText:       envFloat("SEMANTIC_W_TEXT", 0.5),
			WVision:     envFloat("SEMANTIC_W_VISION", 0.35),
			WTag:        envFloat("SEMANTIC_W_TAG", 0.15),
			PersonBoost: envFloat("SEMANTIC_PERSON_BOOST", 0.3),
		},
		Pipeline: Pipeline{
			MaxVideoSeconds:       envFloat("PIPELINE_MAX_VIDEO_SECONDS", 3600),
			MaxVideoBytes:         envInt64("PIPELINE_MAX_VIDEO_BYTES", 2<<30), // 2 GiB
			AllowedMimeTypes:      envList("PIPELINE_ALLOWED_MIME_TYPES", "video/mp4,video/quicktime,video/webm,video/x-matroska"),
			SceneConcurrency:      envInt("PIPELINE_SCENE_CONCURRENCY", 4),
			StageMaxRetries:       envInt("PIPELINE_STAGE_MAX_RETRIES", 2),
			FaceMatchThreshold:    envFloat("PIPELINE_FACE_MATCH_THRESHOLD", 0.6),
			ScratchDir:            env("PIPELINE_SCRATCH_DIR", os.TempDir()),
			SceneDetectScriptPath: env("PIPELINE_SCENEDETECT_SCRIPT", "scripts/scenedetect.py"),
			SceneDetectTimeout:    envDuration("PIPELINE_SCENEDETECT_TIMEOUT", 300*time.Second),
		},
		HTTPPort: env("PORT", "8080"),
	}

	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key, def string) []string {
	v := env(key, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
