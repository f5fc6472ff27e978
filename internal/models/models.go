// Package models defines the durable record types of the video-indexing
// core: videos, scenes, face profiles, jobs, and the owner-scoped links
// between them.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// VideoState is the lifecycle state of a Video.
type VideoState string

const (
	VideoStateUploading  VideoState = "uploading"
	VideoStateValidating VideoState = "validating"
	VideoStateProcessing VideoState = "processing"
	VideoStateIndexed    VideoState = "indexed"
	VideoStateFailed     VideoState = "failed"
	VideoStateDeleted    VideoState = "deleted"
)

// allowedVideoTransitions enumerates the legal state-machine edges.
// Owner-initiated delete is allowed from every state except deleted itself.
var allowedVideoTransitions = map[VideoState][]VideoState{
	VideoStateUploading:  {VideoStateValidating, VideoStateDeleted},
	VideoStateValidating: {VideoStateProcessing, VideoStateFailed, VideoStateDeleted},
	VideoStateProcessing: {VideoStateIndexed, VideoStateFailed, VideoStateDeleted},
	VideoStateIndexed:    {VideoStateDeleted},
	VideoStateFailed:     {VideoStateDeleted},
}

// CanTransition reports whether moving from s to next is a legal edge in the
// Video state machine.
func (s VideoState) CanTransition(next VideoState) bool {
	for _, allowed := range allowedVideoTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Video is the root entity of the pipeline: one uploaded file, owned by one
// Owner, that the Pipeline Worker drives from uploading to indexed or failed.
type Video struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID    uuid.UUID  `json:"owner_id" gorm:"type:uuid;not null;index:idx_video_owner_state,priority:1"`
	StorageKey string     `json:"storage_key" gorm:"size:1024;not null"`
	MimeType   string     `json:"mime_type" gorm:"size:128;not null"`
	ByteSize   int64      `json:"byte_size" gorm:"not null"`
	DurationS  *float64   `json:"duration_s"`
	State      VideoState `json:"state" gorm:"size:32;not null;default:'uploading';index:idx_video_owner_state,priority:2"`
	ErrorText  *string    `json:"error_text"`
	CreatedAt  time.Time  `json:"created_at"`
	IndexedAt  *time.Time `json:"indexed_at"`

	Metadata *VideoMetadata `json:"metadata,omitempty" gorm:"foreignKey:VideoID"`
	Scenes   []Scene        `json:"scenes,omitempty" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
	Jobs     []Job          `json:"jobs,omitempty" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
}

func (Video) TableName() string { return "videos" }

// Validate checks the Video's state invariants given its current scene
// count (the caller loads it; Validate does not query).
func (v *Video) Validate(sceneCount int) error {
	if v.State == VideoStateIndexed {
		if v.DurationS == nil {
			return videoInvariantError("indexed video must have a duration")
		}
		if sceneCount < 1 {
			return videoInvariantError("indexed video must have at least one scene")
		}
	}
	if v.State == VideoStateFailed {
		if v.ErrorText == nil || *v.ErrorText == "" {
			return videoInvariantError("failed video must carry error_text")
		}
	}
	return nil
}

type videoInvariantError string

func (e videoInvariantError) Error() string { return string(e) }

// VideoMetadata is the optional 1:1 title/description/tags record consumed
// by Mode-K retrieval scoring.
type VideoMetadata struct {
	VideoID     uuid.UUID       `json:"video_id" gorm:"type:uuid;primaryKey"`
	Title       *string         `json:"title" gorm:"size:512"`
	Description *string         `json:"description"`
	Tags        JSONStringArray `json:"tags" gorm:"type:jsonb;default:'[]'"`
}

func (VideoMetadata) TableName() string { return "video_metadata" }

// Scene is a temporal sub-interval of a Video produced by content-aware
// segmentation, carrying the transcript and embeddings the retrieval engine
// ranks over.
type Scene struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	VideoID    uuid.UUID `json:"video_id" gorm:"type:uuid;not null;index"`
	SceneIndex int       `json:"scene_index" gorm:"not null"`
	StartS     float64   `json:"start_s" gorm:"not null"`
	EndS       float64   `json:"end_s" gorm:"not null"`
	Transcript *string   `json:"transcript"`

	TextVec  *pgvector.Vector `json:"text_vec,omitempty" gorm:"type:vector(1536)"`
	ImageVec *pgvector.Vector `json:"image_vec,omitempty" gorm:"type:vector(1536)"`

	VisionTags   JSONObject `json:"vision_tags" gorm:"type:jsonb;default:'{}'"`
	ThumbnailKey *string    `json:"thumbnail_key" gorm:"size:1024"`
	SidecarKey   *string    `json:"sidecar_key" gorm:"size:1024"`
	CreatedAt    time.Time  `json:"created_at"`

	Video        Video         `json:"-" gorm:"foreignKey:VideoID"`
	ScenePersons []ScenePerson `json:"people,omitempty" gorm:"foreignKey:SceneID;constraint:OnDelete:CASCADE"`
}

func (Scene) TableName() string { return "scenes" }

// Duration returns end_s - start_s.
func (s *Scene) Duration() float64 { return s.EndS - s.StartS }

// ScenePerson links a Scene to a FaceProfile detected within it at a
// confidence meeting the configured threshold at creation time.
type ScenePerson struct {
	SceneID    uuid.UUID `json:"scene_id" gorm:"type:uuid;primaryKey"`
	PersonID   uuid.UUID `json:"person_id" gorm:"type:uuid;primaryKey"`
	Confidence float64   `json:"confidence" gorm:"not null"`
	FrameHits  int       `json:"frame_hits" gorm:"not null;default:1"`

	Scene  Scene       `json:"-" gorm:"foreignKey:SceneID"`
	Person FaceProfile `json:"-" gorm:"foreignKey:PersonID"`
}

func (ScenePerson) TableName() string { return "scene_persons" }

// FaceProfile is an owner-enrolled person: a name, a set of enrollment
// photos, and (once the Face Enrollment Worker has run) a centroid face
// embedding.
type FaceProfile struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID        `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name      string           `json:"name" gorm:"size:256;not null"`
	FaceVec   *pgvector.Vector `json:"face_vec,omitempty" gorm:"type:vector(512)"`
	PhotoKeys JSONStringArray  `json:"photo_keys" gorm:"type:jsonb;default:'[]'"`
	ErrorText *string          `json:"error_text"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (FaceProfile) TableName() string { return "face_profiles" }

// Enrolling reports whether the profile has photos but no centroid yet and
// has not errored, i.e. an enrollment job is pending or in flight.
func (f *FaceProfile) Enrolling() bool {
	return len(f.PhotoKeys) > 0 && f.FaceVec == nil && f.ErrorText == nil
}

// JobStage enumerates the pipeline stages a Job row can track.
type JobStage string

const (
	JobStageUploadValidate JobStage = "upload_validate"
	JobStageAudioExtract   JobStage = "audio_extract"
	JobStageASR            JobStage = "asr"
	JobStageSceneDetect    JobStage = "scene_detect"
	JobStagePerSceneEmbed  JobStage = "per_scene_embed"
	JobStageFaceMatch      JobStage = "per_scene_face_match"
	JobStageSidecarBuild   JobStage = "sidecar_build"
	JobStageCommit         JobStage = "commit"
	JobStageFaceEnrollment JobStage = "face_enrollment"
)

// JobStatus is the execution state of a Job row.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is the audit-trail / operator-visible progress row for one pipeline
// stage run. It is not the pipeline's control state (the Video.State and the
// task-bus payload are); it exists so GET /videos/{id}/status has something
// to report.
type Job struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	VideoID    uuid.UUID  `json:"video_id" gorm:"type:uuid;not null;index"`
	Stage      JobStage   `json:"stage" gorm:"size:32;not null"`
	Status     JobStatus  `json:"status" gorm:"size:32;not null;default:'pending'"`
	Progress   float64    `json:"progress" gorm:"not null;default:0"`
	ErrorText  *string    `json:"error_text"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Metadata   JSONObject `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Job) TableName() string { return "jobs" }

// JSONStringArray is a jsonb-backed []string.
type JSONStringArray []string

func (j *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

// JSONObject is a jsonb-backed map[string]interface{}.
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}
