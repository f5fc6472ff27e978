package api

import (
	"net/http"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// initUploadRequest is the body of POST /videos/upload/init.
type initUploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	MimeType string `json:"mime_type" binding:"required"`
	ByteSize int64  `json:"byte_size" binding:"required"`
	Title    string `json:"title"`
}

// initUpload creates a Video row in `uploading` and returns a presigned PUT
// URL. MIME and size are validated against the configured limits before
// ever touching the Store.
func (s *Server) initUpload(c *gin.Context) {
	owner := ownerID(c)

	var req initUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid upload/init body", err))
		return
	}
	if req.ByteSize > s.Pipeline.MaxVideoBytes {
		writeAppErr(c, apperr.New(apperr.ClassInvalidInput, "byte_size exceeds configured maximum"))
		return
	}
	if !mimeAllowed(s.Pipeline.AllowedMimeTypes, req.MimeType) {
		writeAppErr(c, apperr.New(apperr.ClassInvalidInput, "mime_type not in the allowed list"))
		return
	}

	video := &models.Video{
		ID:       uuid.New(),
		OwnerID:  owner,
		MimeType: req.MimeType,
		ByteSize: req.ByteSize,
		State:    models.VideoStateUploading,
	}
	video.StorageKey = "uploads/" + owner.String() + "/" + video.ID.String() + "/" + req.Filename

	if err := s.Store.CreateVideo(video); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "create video", err))
		return
	}
	if req.Title != "" {
		title := req.Title
		if err := s.Store.UpsertVideoMetadata(&models.VideoMetadata{VideoID: video.ID, Title: &title}); err != nil {
			writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "save video metadata", err))
			return
		}
	}

	url, err := s.UploadBlob.PresignPut(c.Request.Context(), video.StorageKey, defaultPresignTTL)
	if err != nil {
		writeAppErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id":   video.ID,
		"upload_url": url,
		"expires_in": int(defaultPresignTTL.Seconds()),
	})
}

// completeUploadRequest is the body of POST /videos/upload/complete.
type completeUploadRequest struct {
	VideoID string `json:"video_id" binding:"required"`
}

// completeUpload transitions a video from `uploading` to `validating` and
// enqueues its pipeline task. Calling it a second time for the same video
// returns `conflict`.
func (s *Server) completeUpload(c *gin.Context) {
	owner := ownerID(c)

	var req completeUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid upload/complete body", err))
		return
	}
	id, err := uuid.Parse(req.VideoID)
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid video_id", err))
		return
	}

	video, err := s.Store.GetVideo(id)
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassNotFound, "video not found", err))
		return
	}
	if video.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "video not found"))
		return
	}
	if video.State != models.VideoStateUploading {
		writeAppErr(c, apperr.New(apperr.ClassConflict, "video is not in the uploading state"))
		return
	}

	if err := s.Store.UpdateVideoState(id, models.VideoStateValidating, nil); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "transition to validating", err))
		return
	}
	if err := s.TaskClient.EnqueueProcessVideo(c.Request.Context(), id); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassTransientDependency, "enqueue pipeline task", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"video_id": id, "state": models.VideoStateValidating})
}

// listVideos returns an owner's videos, newest first, paginated.
func (s *Server) listVideos(c *gin.Context) {
	owner := ownerID(c)
	limit, offset := paginationParams(c)

	videos, total, err := s.Store.ListVideosByOwner(owner, limit, offset)
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "list videos", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "total": total, "limit": limit, "offset": offset})
}

// getVideo returns one video, scoped to the calling owner.
func (s *Server) getVideo(c *gin.Context) {
	owner := ownerID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid video id", err))
		return
	}

	video, err := s.Store.GetVideo(id)
	if err != nil || video.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "video not found"))
		return
	}
	c.JSON(http.StatusOK, video)
}

// getVideoStatus returns the video state plus its per-stage Job rows for
// GET /videos/{id}/status.
func (s *Server) getVideoStatus(c *gin.Context) {
	owner := ownerID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid video id", err))
		return
	}

	video, err := s.Store.GetVideo(id)
	if err != nil || video.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "video not found"))
		return
	}

	jobs, err := s.Store.GetJobsByVideo(id)
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "load jobs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id":   video.ID,
		"state":      video.State,
		"error_text": video.ErrorText,
		"jobs":       jobs,
	})
}

// deleteVideo transitions a video to `deleted`, the owner-initiated edge
// legal from every state except `deleted` itself.
func (s *Server) deleteVideo(c *gin.Context) {
	owner := ownerID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid video id", err))
		return
	}

	video, err := s.Store.GetVideo(id)
	if err != nil || video.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "video not found"))
		return
	}
	if err := s.Store.DeleteVideo(id); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassConflict, "delete video", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func mimeAllowed(allowed []string, mime string) bool {
	for _, m := range allowed {
		if m == mime {
			return true
		}
	}
	return false
}
