package api

import (
	"net/http"
	"strconv"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/retrieval"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// parseCommonSearchParams reads the inputs common to all three search
// modes: query text, pagination, optional person filter, optional duration
// bounds.
func parseCommonSearchParams(c *gin.Context) (retrieval.Params, error) {
	p := retrieval.Params{OwnerID: ownerID(c), Query: c.Query("q")}
	p.Limit, p.Offset = paginationParams(c)

	if v := c.Query("person_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, apperr.Wrap(apperr.ClassInvalidInput, "invalid person_id", err)
		}
		p.PersonID = &id
	}
	if v := c.Query("min_duration"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, apperr.Wrap(apperr.ClassInvalidInput, "invalid min_duration", err)
		}
		p.MinDuration = &f
	}
	if v := c.Query("max_duration"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, apperr.Wrap(apperr.ClassInvalidInput, "invalid max_duration", err)
		}
		p.MaxDuration = &f
	}
	return p, nil
}

// searchKeyword serves GET /search.
func (s *Server) searchKeyword(c *gin.Context) {
	p, err := parseCommonSearchParams(c)
	if err != nil {
		writeAppErr(c, err)
		return
	}

	results, total, err := s.Retrieval.SearchKeyword(p)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": total, "mode": "keyword"})
}

// searchSemantic serves GET /search/semantic. Requires the semantic_search
// feature flag.
func (s *Server) searchSemantic(c *gin.Context) {
	if !s.Features.SemanticSearch {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "semantic search is disabled"})
		return
	}

	p, err := parseCommonSearchParams(c)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	if v := c.Query("text_weight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid text_weight", err))
			return
		}
		p.TextWeight = &f
	}
	if v := c.Query("vision_weight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid vision_weight", err))
			return
		}
		p.VisionWeight = &f
	}

	results, total, err := s.Retrieval.SearchSemantic(c.Request.Context(), p)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": total, "mode": "semantic"})
}

// searchHybrid serves GET /search/hybrid. Requires both the
// semantic_search and hybrid_rrf feature flags; otherwise 501.
func (s *Server) searchHybrid(c *gin.Context) {
	if !s.Features.SemanticSearch || !s.Features.HybridRRF {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "hybrid search is disabled"})
		return
	}

	p, err := parseCommonSearchParams(c)
	if err != nil {
		writeAppErr(c, err)
		return
	}

	results, total, err := s.Retrieval.SearchHybrid(c.Request.Context(), p)
	if err != nil {
		writeAppErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": total, "mode": "hybrid"})
}
