package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/videoindex/core/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerOwnerIDParsesValidToken(t *testing.T) {
	id := uuid.New()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Bearer "+id.String())

	got, ok := BearerOwnerID(c)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestBearerOwnerIDRejectsMissingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := BearerOwnerID(c)
	assert.False(t, ok)
}

func TestBearerOwnerIDRejectsMalformedToken(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Bearer not-a-uuid")

	_, ok := BearerOwnerID(c)
	assert.False(t, ok)
}

func TestRequireOwnerAbortsWith401WithoutToken(t *testing.T) {
	r := gin.New()
	r.Use(requireOwner(BearerOwnerID))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireOwnerPassesThroughValidToken(t *testing.T) {
	id := uuid.New()
	r := gin.New()
	r.Use(requireOwner(BearerOwnerID))
	r.GET("/x", func(c *gin.Context) {
		assert.Equal(t, id, ownerID(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+id.String())
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaginationParamsDefaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	limit, offset := paginationParams(c)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)
}

func TestPaginationParamsClampsOutOfRangeValues(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=999&offset=-5", nil)

	limit, offset := paginationParams(c)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 0, offset)
}

func TestMimeAllowedMatchesExactly(t *testing.T) {
	allowed := []string{"video/mp4", "video/quicktime"}
	assert.True(t, mimeAllowed(allowed, "video/mp4"))
	assert.False(t, mimeAllowed(allowed, "video/avi"))
}

func TestParseCommonSearchParamsRejectsInvalidPersonID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?person_id=not-a-uuid", nil)
	c.Set(ownerIDContextKey, uuid.New())

	_, err := parseCommonSearchParams(c)
	assert.Error(t, err)
}

func TestParseCommonSearchParamsReadsDurationBounds(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?q=dog&min_duration=1.5&max_duration=9", nil)
	c.Set(ownerIDContextKey, uuid.New())

	p, err := parseCommonSearchParams(c)
	assert.NoError(t, err)
	assert.Equal(t, "dog", p.Query)
	assert.Equal(t, 1.5, *p.MinDuration)
	assert.Equal(t, 9.0, *p.MaxDuration)
}

func TestSearchSemanticReturnsNotImplementedWhenDisabled(t *testing.T) {
	s := &Server{Features: config.Features{SemanticSearch: false}, ExtractOwner: BearerOwnerID}
	r := gin.New()
	r.GET("/search/semantic", s.searchSemantic)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search/semantic", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSearchHybridReturnsNotImplementedWhenFlagsMissing(t *testing.T) {
	s := &Server{Features: config.Features{SemanticSearch: true, HybridRRF: false}, ExtractOwner: BearerOwnerID}
	r := gin.New()
	r.GET("/search/hybrid", s.searchHybrid)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search/hybrid", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestCompletePersonPhotoReturnsNotImplementedWhenDisabled(t *testing.T) {
	s := &Server{Features: config.Features{FaceEnrollment: false}, ExtractOwner: BearerOwnerID}
	r := gin.New()
	r.POST("/people/:id/photos/complete", s.completePersonPhoto)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/people/"+uuid.New().String()+"/photos/complete", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
