package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	c, err := New(config.Inference{
		BaseURL:             srv.URL,
		Timeout:             5 * time.Second,
		MaxRetries:          1,
		MaxIdleConnsPerHost: 5,
		QueryCacheSize:      8,
		TextModel:           "text-embed-v1",
	})
	require.NoError(t, err)
	return c
}

func TestEmbedTextPostsJSONAndParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed/text", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	emb, err := c.EmbedText(context.Background(), "hello world", "document")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb)
}

func TestEmbedTextCachedOnlyCallsOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float32{1, 2},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.EmbedTextCached(context.Background(), "who is in this clip")
	require.NoError(t, err)
	_, err = c.EmbedTextCached(context.Background(), "who is in this clip")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestDetectFacesPostsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")
		err := r.ParseMultipartForm(1 << 20)
		require.NoError(t, err)
		_, _, err = r.FormFile("file")
		require.NoError(t, err)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"faces": []map[string]interface{}{
				{"bbox": [4]float64{0, 0, 10, 10}, "embedding": []float32{0.5}, "confidence": 0.9},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	faces, err := c.DetectFaces(context.Background(), []byte("fake-jpeg-bytes"), "frame.jpg")
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.InDelta(t, 0.9, faces[0].Confidence, 1e-9)
}

func TestTranscribeSurfacesServerErrorAsTransientDependency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Transcribe(context.Background(), []byte("pcm"), "en")
	assert.Error(t, err)
	assert.Equal(t, apperr.ClassTransientDependency, apperr.ClassOf(err))
}
