// Package taskqueue is the durable task bus: a thin wrapper over
// hibiken/asynq with two named queues, id-only payloads, and bounded
// exponential-backoff retries. Delivery is at-least-once; handlers re-read
// authoritative state from the Store, so redelivery is harmless.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/videoindex/core/internal/applog"
	"github.com/videoindex/core/internal/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// QueueVideoProcessing carries per-video pipeline-run tasks.
	QueueVideoProcessing = "video_processing"
	// QueueFaceProcessing carries face-enrollment tasks.
	QueueFaceProcessing = "face_processing"

	// TypeProcessVideo is the asynq task type the Pipeline Worker handles.
	TypeProcessVideo = "video:process"
	// TypeEnrollFace is the asynq task type the Face Enrollment Worker handles.
	TypeEnrollFace = "face:enroll"
)

// ProcessVideoPayload carries only the video id; handlers re-read
// authoritative state from the Store rather than trusting anything beyond
// the id.
type ProcessVideoPayload struct {
	VideoID uuid.UUID `json:"video_id"`
}

// EnrollFacePayload is the opaque id-only payload for face enrollment.
type EnrollFacePayload struct {
	PersonID uuid.UUID `json:"person_id"`
}

// Client enqueues tasks; the API server constructs one at startup and uses
// it to enqueue on upload-complete and photo-complete. The worker does not
// hold one.
type Client struct {
	inner *asynq.Client
}

// NewClient builds an asynq.Client against the configured Redis address.
func NewClient(cfg config.Redis) *Client {
	return &Client{inner: asynq.NewClient(redisOpt(cfg))}
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error { return c.inner.Close() }

// EnqueueProcessVideo schedules a pipeline run for videoID on the
// video_processing queue.
func (c *Client) EnqueueProcessVideo(ctx context.Context, videoID uuid.UUID) error {
	payload, err := json.Marshal(ProcessVideoPayload{VideoID: videoID})
	if err != nil {
		return fmt.Errorf("marshal process-video payload: %w", err)
	}
	task := asynq.NewTask(TypeProcessVideo, payload)
	_, err = c.inner.EnqueueContext(ctx, task, asynq.Queue(QueueVideoProcessing), asynq.MaxRetry(3))
	return err
}

// EnqueueFaceEnrollment schedules a centroid computation for personID on
// the face_processing queue.
func (c *Client) EnqueueFaceEnrollment(ctx context.Context, personID uuid.UUID) error {
	payload, err := json.Marshal(EnrollFacePayload{PersonID: personID})
	if err != nil {
		return fmt.Errorf("marshal enroll-face payload: %w", err)
	}
	task := asynq.NewTask(TypeEnrollFace, payload)
	_, err = c.inner.EnqueueContext(ctx, task, asynq.Queue(QueueFaceProcessing), asynq.MaxRetry(3))
	return err
}

// Server runs the worker-side asynq.Server/ServeMux.
type Server struct {
	inner *asynq.Server
	mux   *asynq.ServeMux
}

// NewServer builds a Server with two weighted queues (video processing
// prioritized over face enrollment) and exponential-backoff-with-jitter
// retries.
func NewServer(cfg config.Redis, concurrency int) *Server {
	log := applog.New("[taskqueue] ")

	inner := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueVideoProcessing: 3,
				QueueFaceProcessing:  1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				base := time.Duration(1<<uint(n)) * 10 * time.Second
				jitter := time.Duration(rand.Int63n(int64(5 * time.Second)))
				return base + jitter
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("task %s failed: %v", task.Type(), err)
			}),
		},
	)

	return &Server{inner: inner, mux: asynq.NewServeMux()}
}

// HandleProcessVideo registers the pipeline run handler.
func (s *Server) HandleProcessVideo(fn func(ctx context.Context, videoID uuid.UUID) error) {
	s.mux.HandleFunc(TypeProcessVideo, func(ctx context.Context, task *asynq.Task) error {
		var p ProcessVideoPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal process-video payload: %w", err)
		}
		return fn(ctx, p.VideoID)
	})
}

// HandleEnrollFace registers the face-enrollment handler.
func (s *Server) HandleEnrollFace(fn func(ctx context.Context, personID uuid.UUID) error) {
	s.mux.HandleFunc(TypeEnrollFace, func(ctx context.Context, task *asynq.Task) error {
		var p EnrollFacePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal enroll-face payload: %w", err)
		}
		return fn(ctx, p.PersonID)
	})
}

// Run blocks serving registered handlers until Shutdown is called.
func (s *Server) Run() error {
	return s.inner.Run(s.mux)
}

// Shutdown stops the server gracefully, waiting for in-flight tasks.
func (s *Server) Shutdown() {
	s.inner.Shutdown()
}

// Healthcheck pings the task bus's Redis backend, so a process can fail
// fast (worker) or report degraded readiness (server) when the bus is
// unreachable.
func Healthcheck(ctx context.Context, cfg config.Redis) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	defer rdb.Close()
	return rdb.Ping(ctx).Err()
}

func redisOpt(cfg config.Redis) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
