// Package pipeline drives one Video through the ordered indexing stages:
// upload_validate, audio_extract, asr, scene_detect, per_scene_embed,
// per_scene_face_match, sidecar_build, commit.
//
// The driver re-reads authoritative Video state on every run, so retried
// and redelivered tasks behave identically to a first attempt.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/applog"
	"github.com/videoindex/core/internal/blob"
	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/ffmpeg"
	"github.com/videoindex/core/internal/inference"
	"github.com/videoindex/core/internal/models"
	"github.com/videoindex/core/internal/scenedetect"
	"github.com/videoindex/core/internal/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Runner holds every collaborator one pipeline run needs. One Runner is
// built per worker process and shared across tasks; scratch directories are
// the only per-task state, created and removed within Process.
type Runner struct {
	Store       *store.Store
	UploadBlob  blob.Store
	ThumbBlob   blob.Store
	SidecarBlob blob.Store
	Inference   *inference.Client
	FFmpeg      *ffmpeg.Client
	SceneDetect *scenedetect.Detector
	Pipeline    config.Pipeline
	Features    config.Features
	Log         *log.Logger
}

// NewRunner wires a Runner from already-constructed collaborators.
func NewRunner(
	st *store.Store,
	uploadBlob, thumbBlob, sidecarBlob blob.Store,
	inf *inference.Client,
	ff *ffmpeg.Client,
	sd *scenedetect.Detector,
	pipelineCfg config.Pipeline,
	features config.Features,
) *Runner {
	return &Runner{
		Store:       st,
		UploadBlob:  uploadBlob,
		ThumbBlob:   thumbBlob,
		SidecarBlob: sidecarBlob,
		Inference:   inf,
		FFmpeg:      ff,
		SceneDetect: sd,
		Pipeline:    pipelineCfg,
		Features:    features,
		Log:         applog.New("[pipeline] "),
	}
}

// runContext carries the per-task scratch directory and loaded video
// through every stage function.
type runContext struct {
	ctx        context.Context
	video      *models.Video
	scratchDir string
	videoPath  string
	audioPath  string
	segments   []asrSegment
	language   string
	scenes     []sceneWork
}

// Process drives videoID to `indexed` or `failed`. It is the asynq handler
// body registered on the video_processing queue. A video already `indexed`
// is treated as a no-op and acknowledged.
func (r *Runner) Process(ctx context.Context, videoID uuid.UUID) error {
	video, err := r.Store.GetVideo(videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}

	if video.State == models.VideoStateIndexed {
		r.Log.Printf("video %s already indexed, skipping", videoID)
		return nil
	}
	if video.State == models.VideoStateDeleted || video.State == models.VideoStateFailed {
		r.Log.Printf("video %s in terminal state %s, skipping", videoID, video.State)
		return nil
	}

	scratchDir, err := os.MkdirTemp(r.Pipeline.ScratchDir, "videoindex-"+videoID.String()+"-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	rc := &runContext{ctx: ctx, video: video, scratchDir: scratchDir}

	stages := []struct {
		stage models.JobStage
		run   func(*runContext) error
	}{
		{models.JobStageUploadValidate, r.stageUploadValidate},
		{models.JobStageAudioExtract, r.stageAudioExtract},
		{models.JobStageASR, r.stageASR},
		{models.JobStageSceneDetect, r.stageSceneDetect},
		{models.JobStagePerSceneEmbed, r.stagePerSceneEmbed},
		{models.JobStageFaceMatch, r.stageFaceMatch},
		{models.JobStageSidecarBuild, r.stageSidecarBuild},
		{models.JobStageCommit, r.stageCommit},
	}

	for _, s := range stages {
		if err := r.runStage(rc, s.stage, s.run); err != nil {
			if apperr.IsFatalMedia(err) || !apperr.IsRetriable(err) {
				r.failVideo(rc, err)
				return nil // fatal: don't ask asynq to retry, video is now `failed`
			}
			return err // retriable: surface so asynq retries the whole task
		}
	}

	return nil
}

// runStage wraps one stage with Job bookkeeping (a row created as running,
// then updated to completed/failed); the status endpoint reads these rows as the
// operator-visible audit trail.
func (r *Runner) runStage(rc *runContext, stage models.JobStage, fn func(*runContext) error) error {
	job := &models.Job{
		ID:      uuid.New(),
		VideoID: rc.video.ID,
		Stage:   stage,
		Status:  models.JobStatusRunning,
	}
	now := time.Now().UTC()
	job.StartedAt = &now
	if err := r.Store.CreateJob(job); err != nil {
		r.Log.Printf("create job row for stage %s: %v", stage, err)
	}

	err := r.runWithRetry(rc, fn)

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = models.JobStatusFailed
		msg := err.Error()
		job.ErrorText = &msg
	} else {
		job.Status = models.JobStatusCompleted
		job.Progress = 1
	}
	if uerr := r.Store.UpdateJob(job); uerr != nil {
		r.Log.Printf("update job row for stage %s: %v", stage, uerr)
	}

	return err
}

// runWithRetry retries a stage on transient dependency failures, bounded by
// Pipeline.StageMaxRetries with exponential backoff, before surfacing the
// error. The task bus's own retry policy remains the outermost backstop.
func (r *Runner) runWithRetry(rc *runContext, fn func(*runContext) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.Pipeline.StageMaxRetries)),
		rc.ctx,
	)
	return backoff.Retry(func() error {
		err := fn(rc)
		if err != nil && !apperr.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (r *Runner) failVideo(rc *runContext, cause error) {
	msg := cause.Error()
	if err := r.Store.UpdateVideoState(rc.video.ID, models.VideoStateFailed, &msg); err != nil {
		r.Log.Printf("transition video %s to failed: %v", rc.video.ID, err)
	}
}

func scratchPath(rc *runContext, name string) string {
	return filepath.Join(rc.scratchDir, name)
}
