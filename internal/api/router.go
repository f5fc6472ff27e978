// Package api exposes the HTTP surface over gin, grouped into route files
// by resource (videos.go, search.go, people.go) and backed by the Store,
// Blob, taskqueue, and retrieval Engine collaborators.
package api

import (
	"net/http"

	"github.com/videoindex/core/internal/blob"
	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/retrieval"
	"github.com/videoindex/core/internal/store"
	"github.com/videoindex/core/internal/taskqueue"

	"github.com/gin-gonic/gin"
)

// Server holds everything the route handlers need.
type Server struct {
	Store        *store.Store
	UploadBlob   blob.Store
	PhotoBlob    blob.Store
	TaskClient   *taskqueue.Client
	Retrieval    *retrieval.Engine
	Pipeline     config.Pipeline
	Features     config.Features
	ExtractOwner OwnerIDExtractor
}

// NewServer wires a Server from its collaborators. extractOwner defaults to
// BearerOwnerID when nil.
func NewServer(st *store.Store, uploadBlob, photoBlob blob.Store, taskClient *taskqueue.Client, engine *retrieval.Engine, pipelineCfg config.Pipeline, features config.Features, extractOwner OwnerIDExtractor) *Server {
	if extractOwner == nil {
		extractOwner = BearerOwnerID
	}
	return &Server{
		Store:        st,
		UploadBlob:   uploadBlob,
		PhotoBlob:    photoBlob,
		TaskClient:   taskClient,
		Retrieval:    engine,
		Pipeline:     pipelineCfg,
		Features:     features,
		ExtractOwner: extractOwner,
	}
}

// Router builds the gin.Engine: recovery, CORS, an unauthenticated /health
// probe, and the bearer-scoped resource routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", s.healthCheck)

	authed := r.Group("/")
	authed.Use(requireOwner(s.ExtractOwner))
	{
		authed.POST("/videos/upload/init", s.initUpload)
		authed.POST("/videos/upload/complete", s.completeUpload)
		authed.GET("/videos", s.listVideos)
		authed.GET("/videos/:id", s.getVideo)
		authed.GET("/videos/:id/status", s.getVideoStatus)
		authed.DELETE("/videos/:id", s.deleteVideo)

		authed.GET("/search", s.searchKeyword)
		authed.GET("/search/semantic", s.searchSemantic)
		authed.GET("/search/hybrid", s.searchHybrid)

		authed.POST("/people", s.createPerson)
		authed.GET("/people", s.listPeople)
		authed.DELETE("/people/:id", s.deletePerson)
		authed.POST("/people/:id/photos", s.initPersonPhoto)
		authed.POST("/people/:id/photos/complete", s.completePersonPhoto)
	}

	return r
}

// corsMiddleware is permissive; a real deployment fronts this with a
// gateway that owns CORS policy.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	dbHealth := "ok"
	if err := s.Store.Health(); err != nil {
		dbHealth = "error: " + err.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "videoindex-core",
		"database": dbHealth,
	})
}
