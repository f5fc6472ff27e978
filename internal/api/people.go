package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// createPersonRequest is the body of POST /people.
type createPersonRequest struct {
	Name string `json:"name" binding:"required"`
}

// createPerson creates an empty (no photos, no centroid) FaceProfile for
// the calling owner. Names are unique per owner, enforced by the store's
// unique index; a duplicate surfaces as `conflict`.
func (s *Server) createPerson(c *gin.Context) {
	owner := ownerID(c)

	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid people body", err))
		return
	}

	profile := &models.FaceProfile{ID: uuid.New(), OwnerID: owner, Name: req.Name}
	if err := s.Store.CreateFaceProfile(profile); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeAppErr(c, apperr.New(apperr.ClassConflict, "a person with that name already exists"))
			return
		}
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "create face profile", err))
		return
	}
	c.JSON(http.StatusCreated, profile)
}

// listPeople returns the calling owner's enrolled people.
func (s *Server) listPeople(c *gin.Context) {
	owner := ownerID(c)
	people, err := s.Store.ListFaceProfilesByOwner(owner)
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "list face profiles", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

// deletePerson removes a FaceProfile, cascading to its scene links.
func (s *Server) deletePerson(c *gin.Context) {
	owner := ownerID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid person id", err))
		return
	}

	profile, err := s.Store.GetFaceProfile(id)
	if err != nil || profile.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "person not found"))
		return
	}
	if err := s.Store.DeleteFaceProfile(id); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "delete face profile", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// initPersonPhotoRequest is the body of POST /people/{id}/photos.
type initPersonPhotoRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// initPersonPhoto returns a presigned upload URL for one enrollment photo.
// The photo key is not recorded on the profile until the client confirms
// the upload via completePersonPhoto, mirroring the video upload/init +
// upload/complete pair.
func (s *Server) initPersonPhoto(c *gin.Context) {
	owner := ownerID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid person id", err))
		return
	}

	profile, err := s.Store.GetFaceProfile(id)
	if err != nil || profile.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "person not found"))
		return
	}

	var req initPersonPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid photo upload body", err))
		return
	}

	key := fmt.Sprintf("people/%s/%s/%s", owner, id, req.Filename)
	url, err := s.PhotoBlob.PresignPut(c.Request.Context(), key, defaultPresignTTL)
	if err != nil {
		writeAppErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"photo_key":  key,
		"upload_url": url,
		"expires_in": int(defaultPresignTTL.Seconds()),
	})
}

// completePersonPhotoRequest is the body of POST /people/{id}/photos/complete.
type completePersonPhotoRequest struct {
	PhotoKey string `json:"photo_key" binding:"required"`
}

// completePersonPhoto records the uploaded photo on the profile and
// (re-)enqueues centroid computation. Enrollment is idempotent over the
// current photo set, so re-triggering after every new photo is always
// correct.
func (s *Server) completePersonPhoto(c *gin.Context) {
	if !s.Features.FaceEnrollment {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "face enrollment is disabled"})
		return
	}

	owner := ownerID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid person id", err))
		return
	}

	profile, err := s.Store.GetFaceProfile(id)
	if err != nil || profile.OwnerID != owner {
		writeAppErr(c, apperr.New(apperr.ClassNotFound, "person not found"))
		return
	}

	var req completePersonPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInvalidInput, "invalid photo complete body", err))
		return
	}

	if err := s.Store.AppendFaceProfilePhoto(id, req.PhotoKey); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassInternal, "append enrollment photo", err))
		return
	}
	if err := s.TaskClient.EnqueueFaceEnrollment(c.Request.Context(), id); err != nil {
		writeAppErr(c, apperr.Wrap(apperr.ClassTransientDependency, "enqueue face enrollment", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"person_id": id})
}
