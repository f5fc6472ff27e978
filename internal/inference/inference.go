// Package inference is the HTTP client for the external model-serving
// service: ASR, text/vision embedding, and face detection. Embedding
// endpoints speak JSON; face detection and vision embedding upload frames
// as multipart form files.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/applog"
	"github.com/videoindex/core/internal/config"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Client talks to the inference service's /asr, /embed, and /face
// endpoints, with connection pooling, bounded retries, and a query-embedding
// cache used only by the retrieval engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        config.Inference
	log        *log.Logger

	queryCache *lru.Cache[string, []float32]

	warmupOnce sync.Once
	warmupErr  error
}

// New builds a Client from config.Inference. The dedicated transport keeps
// idle connections to the inference service alive between calls.
func New(cfg config.Inference) (*Client, error) {
	cache, err := lru.New[string, []float32](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query embedding cache: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cfg:        cfg,
		log:        applog.New("[inference] "),
		queryCache: cache,
	}, nil
}

// Config returns the model identifiers and dimensions the client was built
// with, so callers (e.g. sidecar serialization) can record provenance
// without duplicating configuration.
func (c *Client) Config() config.Inference { return c.cfg }

// Warmup performs one GET /health call, memoizing the result so repeated
// calls from many goroutines at process start only hit the network once.
func (c *Client) Warmup(ctx context.Context) error {
	c.warmupOnce.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			c.warmupErr = err
			return
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.warmupErr = apperr.Wrap(apperr.ClassTransientDependency, "inference health check", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.warmupErr = apperr.New(apperr.ClassTransientDependency, fmt.Sprintf("inference health check returned %d", resp.StatusCode))
		}
	})
	return c.warmupErr
}

// Segment is one ordered ASR segment.
type Segment struct {
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
	Text   string  `json:"text"`
}

// TranscribeResult is the /asr/transcribe response.
type TranscribeResult struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcribe sends 16kHz mono PCM audio bytes for speech-to-text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (*TranscribeResult, error) {
	reqBody := struct {
		AudioB64 []byte `json:"audio"`
		Language string `json:"language,omitempty"`
		Model    string `json:"model"`
	}{
		AudioB64: audio,
		Language: language,
		Model:    c.cfg.ASRModel,
	}

	var out TranscribeResult
	if err := c.postJSON(ctx, "/asr/transcribe", reqBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EmbedText returns the service's text embedding for scene transcripts or
// search queries (kind is "document" or "query"), as received: callers
// normalize it before storing or comparing.
func (c *Client) EmbedText(ctx context.Context, text, kind string) ([]float32, error) {
	reqBody := struct {
		Text  string `json:"text"`
		Kind  string `json:"kind"`
		Model string `json:"model"`
	}{Text: text, Kind: kind, Model: c.cfg.TextModel}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.postJSON(ctx, "/embed/text", reqBody, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// EmbedTextCached wraps EmbedText with the query-embedding LRU cache. Only
// the retrieval engine calls this; pipeline stages always call EmbedText
// directly so freshly-indexed scene vectors never read stale cache entries.
func (c *Client) EmbedTextCached(ctx context.Context, query string) ([]float32, error) {
	if v, ok := c.queryCache.Get(query); ok {
		return v, nil
	}
	v, err := c.EmbedText(ctx, query, "query")
	if err != nil {
		return nil, err
	}
	c.queryCache.Add(query, v)
	return v, nil
}

// VisionEmbedResult is a vision embedding plus tag scores for one sampled
// video frame.
type VisionEmbedResult struct {
	Embedding []float32          `json:"embedding"`
	Tags      map[string]float64 `json:"tags"`
}

func (c *Client) EmbedVision(ctx context.Context, frame []byte) (*VisionEmbedResult, error) {
	var out VisionEmbedResult
	err := c.postMultipart(ctx, "/embed/vision", frame, "frame.jpg", map[string]string{
		"model": c.cfg.VisionModel,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectedFace is one face returned by /face/detect.
type DetectedFace struct {
	BoundingBox [4]float64 `json:"bbox"`
	Embedding   []float32  `json:"embedding"`
	Confidence  float64    `json:"confidence"`
}

// DetectFaces sends an image (a sampled video frame, or an enrollment
// photo) and returns every face found.
func (c *Client) DetectFaces(ctx context.Context, image []byte, filename string) ([]DetectedFace, error) {
	var out struct {
		Faces []DetectedFace `json:"faces"`
	}
	err := c.postMultipart(ctx, "/face/detect", image, filename, map[string]string{
		"model": c.cfg.FaceModel,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Faces, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.ClassTransientDependency, "inference request failed", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.ClassTransientDependency, "read inference response", err)
		}

		if resp.StatusCode >= 500 {
			return apperr.New(apperr.ClassTransientDependency, fmt.Sprintf("inference %s returned %d: %s", path, resp.StatusCode, respBody))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(apperr.New(apperr.ClassInvalidInput, fmt.Sprintf("inference %s returned %d: %s", path, resp.StatusCode, respBody)))
		}

		c.log.Printf("%s completed in %v", path, time.Since(start))
		return json.Unmarshal(respBody, out)
	}

	return c.withRetry(ctx, op)
}

func (c *Client) postMultipart(ctx context.Context, path string, fileBytes []byte, filename string, fields map[string]string, out interface{}) error {
	op := func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create form file: %w", err))
		}
		if _, err := part.Write(fileBytes); err != nil {
			return backoff.Permanent(fmt.Errorf("write file bytes: %w", err))
		}
		for k, v := range fields {
			if err := writer.WriteField(k, v); err != nil {
				return backoff.Permanent(fmt.Errorf("write field %s: %w", k, err))
			}
		}
		if err := writer.Close(); err != nil {
			return backoff.Permanent(fmt.Errorf("close multipart writer: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.ClassTransientDependency, "inference request failed", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.ClassTransientDependency, "read inference response", err)
		}

		if resp.StatusCode >= 500 {
			return apperr.New(apperr.ClassTransientDependency, fmt.Sprintf("inference %s returned %d: %s", path, resp.StatusCode, respBody))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(apperr.New(apperr.ClassInvalidInput, fmt.Sprintf("inference %s returned %d: %s", path, resp.StatusCode, respBody)))
		}

		return json.Unmarshal(respBody, out)
	}

	return c.withRetry(ctx, op)
}

// withRetry applies cenkalti/backoff/v4's exponential policy, allowing up to
// cfg.MaxRetries retries after the first attempt. The operations themselves
// wrap non-retriable failures (4xx responses, request-building errors) in
// backoff.Permanent; every other error, including transient_dependency, is
// retried.
func (c *Client) withRetry(ctx context.Context, op backoff.Operation) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries))
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
