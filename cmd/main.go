// Command videoindex is the single entrypoint for both the HTTP API
// surface and the background workers: `videoindex` runs the API server,
// `videoindex worker` runs the pipeline and face-enrollment workers
// against the same task bus.
package main

import (
	"context"
	"log"
	"os"

	"github.com/videoindex/core/internal/api"
	"github.com/videoindex/core/internal/applog"
	"github.com/videoindex/core/internal/blob"
	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/faceenroll"
	"github.com/videoindex/core/internal/ffmpeg"
	"github.com/videoindex/core/internal/inference"
	"github.com/videoindex/core/internal/pipeline"
	"github.com/videoindex/core/internal/retrieval"
	"github.com/videoindex/core/internal/scenedetect"
	"github.com/videoindex/core/internal/store"
	"github.com/videoindex/core/internal/taskqueue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "worker" {
		runWorker(cfg)
		return
	}
	runServer(cfg)
}

// runServer starts the gin-based API surface: upload init/complete, video
// listing/status, the three search modes, and people/photo enrollment
// endpoints.
func runServer(cfg *config.Config) {
	st, err := store.Open(cfg.Postgres, applog.GormLogger(false))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if err := st.Health(); err != nil {
		log.Fatalf("store health check: %v", err)
	}
	log.Println("store connection established")

	if err := st.Migrate(); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	log.Println("schema migrations applied")

	ctx := context.Background()
	uploadBlob, err := blob.New(ctx, cfg.Blob, cfg.Blob.UploadBucket)
	if err != nil {
		log.Fatalf("open upload blob store: %v", err)
	}
	photoBlob, err := blob.New(ctx, cfg.Blob, cfg.Blob.PhotoBucket)
	if err != nil {
		log.Fatalf("open photo blob store: %v", err)
	}

	infClient, err := inference.New(cfg.Inference)
	if err != nil {
		log.Fatalf("build inference client: %v", err)
	}
	if err := infClient.Warmup(ctx); err != nil {
		log.Printf("inference warmup failed (continuing): %v", err)
	}

	if err := taskqueue.Healthcheck(ctx, cfg.Redis); err != nil {
		log.Printf("task bus redis unreachable (continuing): %v", err)
	}
	taskClient := taskqueue.NewClient(cfg.Redis)
	defer taskClient.Close()

	engine := retrieval.NewEngine(st, infClient, cfg.ANN, cfg.Hybrid, cfg.Semantic, cfg.Features)

	srv := api.NewServer(st, uploadBlob, photoBlob, taskClient, engine, cfg.Pipeline, cfg.Features, nil)
	router := srv.Router()

	log.Printf("videoindex API server starting on port %s", cfg.HTTPPort)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// runWorker starts the asynq-backed pipeline and face-enrollment workers
// side by side, consuming from the video_processing and face_processing
// queues respectively.
func runWorker(cfg *config.Config) {
	log.Println("videoindex worker starting")

	st, err := store.Open(cfg.Postgres, applog.GormLogger(false))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	uploadBlob, err := blob.New(ctx, cfg.Blob, cfg.Blob.UploadBucket)
	if err != nil {
		log.Fatalf("open upload blob store: %v", err)
	}
	thumbBlob, err := blob.New(ctx, cfg.Blob, cfg.Blob.ThumbnailBucket)
	if err != nil {
		log.Fatalf("open thumbnail blob store: %v", err)
	}
	sidecarBlob, err := blob.New(ctx, cfg.Blob, cfg.Blob.SidecarBucket)
	if err != nil {
		log.Fatalf("open sidecar blob store: %v", err)
	}
	photoBlob, err := blob.New(ctx, cfg.Blob, cfg.Blob.PhotoBucket)
	if err != nil {
		log.Fatalf("open photo blob store: %v", err)
	}

	infClient, err := inference.New(cfg.Inference)
	if err != nil {
		log.Fatalf("build inference client: %v", err)
	}

	if err := taskqueue.Healthcheck(ctx, cfg.Redis); err != nil {
		log.Fatalf("task bus redis unreachable: %v", err)
	}

	ffmpegClient := ffmpeg.NewClient()
	if err := ffmpegClient.CheckAvailable(); err != nil {
		log.Fatalf("ffmpeg check: %v", err)
	}
	detector := scenedetect.NewDetector(cfg.Pipeline.SceneDetectScriptPath, cfg.Pipeline.SceneDetectTimeout)

	runner := pipeline.NewRunner(st, uploadBlob, thumbBlob, sidecarBlob, infClient, ffmpegClient, detector, cfg.Pipeline, cfg.Features)
	enroller := faceenroll.NewWorker(st, photoBlob, infClient)

	taskServer := taskqueue.NewServer(cfg.Redis, cfg.Pipeline.SceneConcurrency*2)
	taskServer.HandleProcessVideo(runner.Process)
	taskServer.HandleEnrollFace(enroller.Enroll)

	log.Println("worker ready, consuming video_processing and face_processing queues")
	if err := taskServer.Run(); err != nil {
		log.Fatalf("task server exited: %v", err)
	}
}
