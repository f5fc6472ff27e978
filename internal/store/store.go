// Package store wraps the Postgres/pgvector connection used by every other
// component: the gorm.Open + connection-pool setup plus one query method per
// read/write the pipeline, retrieval engine, and handlers need. Schema setup
// is raw-SQL migrations instead of AutoMigrate (pgvector columns and HNSW
// indexes aren't expressible as gorm struct tags alone).
package store

import (
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/models"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is the gorm handle plus the query methods the pipeline, retrieval
// engine, and API handlers use to read and write videos, scenes, face
// profiles, and jobs.
type Store struct {
	*gorm.DB
}

// Open connects to Postgres (10 idle / 100 open / 1h max conn lifetime).
func Open(cfg config.Postgres, gormLogger logger.Interface) (*Store, error) {
	// TranslateError lets callers match driver-level constraint violations
	// (e.g. the unique owner/name index on face_profiles) against
	// gorm.ErrDuplicatedKey instead of parsing pq error strings.
	gormCfg := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db}, nil
}

// Migrate applies every migrations/*.sql file, in filename order, inside one
// transaction. There is no down-migration support and no version table;
// files are expected to be idempotent (IF NOT EXISTS).
func (s *Store) Migrate() error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return s.Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			body, err := migrationFS.ReadFile("migrations/" + name)
			if err != nil {
				return fmt.Errorf("read migration %s: %w", name, err)
			}
			if err := tx.Exec(string(body)).Error; err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
		return nil
	})
}

// Health pings the underlying connection.
func (s *Store) Health() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// WithANNEfSearch runs fn inside a transaction with hnsw.ef_search set.
// SET LOCAL is transaction-scoped so the setting never leaks onto a pooled
// connection reused by an unrelated query.
func (s *Store) WithANNEfSearch(efSearch int, fn func(tx *gorm.DB) error) error {
	return s.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)).Error; err != nil {
			return fmt.Errorf("set hnsw.ef_search: %w", err)
		}
		return fn(tx)
	})
}

// CreateVideo inserts a new video row.
func (s *Store) CreateVideo(v *models.Video) error {
	return s.Create(v).Error
}

// GetVideo loads a video by id, including its metadata and scenes.
func (s *Store) GetVideo(id uuid.UUID) (*models.Video, error) {
	var v models.Video
	err := s.Preload("Metadata").Preload("Scenes").First(&v, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVideosByOwner returns an owner's videos newest-first, paginated.
func (s *Store) ListVideosByOwner(ownerID uuid.UUID, limit, offset int) ([]models.Video, int64, error) {
	var videos []models.Video
	var total int64

	if err := s.Model(&models.Video{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := s.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&videos).Error
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// UpdateVideoState transitions a video's state, rejecting the call if the
// edge is not legal per models.VideoState.CanTransition or if the resulting
// row would violate the state's invariants (indexed requires a duration and
// at least one scene, failed requires error text).
func (s *Store) UpdateVideoState(id uuid.UUID, next models.VideoState, errorText *string) error {
	var v models.Video
	if err := s.First(&v, "id = ?", id).Error; err != nil {
		return err
	}
	if !v.State.CanTransition(next) {
		return fmt.Errorf("illegal video state transition: %s -> %s", v.State, next)
	}

	candidate := v
	candidate.State = next
	if errorText != nil {
		candidate.ErrorText = errorText
	}
	var sceneCount int64
	if next == models.VideoStateIndexed {
		if err := s.Model(&models.Scene{}).Where("video_id = ?", id).Count(&sceneCount).Error; err != nil {
			return err
		}
	}
	if err := candidate.Validate(int(sceneCount)); err != nil {
		return fmt.Errorf("video %s cannot enter %s: %w", id, next, err)
	}

	updates := map[string]interface{}{"state": next}
	if errorText != nil {
		updates["error_text"] = *errorText
	}
	if next == models.VideoStateIndexed {
		now := time.Now().UTC()
		updates["indexed_at"] = &now
	}
	return s.Model(&v).Updates(updates).Error
}

// UpsertVideoMetadata creates or replaces a video's title/description/tags.
func (s *Store) UpsertVideoMetadata(m *models.VideoMetadata) error {
	return s.Save(m).Error
}

// ReplaceScenes deletes a video's existing scenes and inserts the given set
// in one transaction. The commit stage uses CommitSceneGraph instead, which
// also writes the scene-person links.
func (s *Store) ReplaceScenes(videoID uuid.UUID, scenes []models.Scene) error {
	return s.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&models.Scene{}).Error; err != nil {
			return err
		}
		if len(scenes) == 0 {
			return nil
		}
		return tx.Create(&scenes).Error
	})
}

// CommitSceneGraph atomically replaces a video's scenes and scene-person
// links in one transaction, so retrieval never observes a partially indexed
// video. Deleting existing scenes cascades to their scene_persons rows via
// the FK constraint.
func (s *Store) CommitSceneGraph(videoID uuid.UUID, scenes []models.Scene, persons []models.ScenePerson) error {
	return s.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&models.Scene{}).Error; err != nil {
			return err
		}
		if len(scenes) > 0 {
			if err := tx.Create(&scenes).Error; err != nil {
				return err
			}
		}
		if len(persons) > 0 {
			if err := tx.Create(&persons).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetScenesByVideo returns a video's scenes in temporal order.
func (s *Store) GetScenesByVideo(videoID uuid.UUID) ([]models.Scene, error) {
	var scenes []models.Scene
	err := s.Where("video_id = ?", videoID).Order("scene_index ASC").Find(&scenes).Error
	return scenes, err
}

// ReplaceScenePersons swaps the person links for one scene, for callers
// that recompute face matches without rebuilding the whole scene graph.
func (s *Store) ReplaceScenePersons(sceneID uuid.UUID, links []models.ScenePerson) error {
	return s.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scene_id = ?", sceneID).Delete(&models.ScenePerson{}).Error; err != nil {
			return err
		}
		if len(links) == 0 {
			return nil
		}
		return tx.Create(&links).Error
	})
}

// CreateFaceProfile inserts a new (not yet enrolled) person.
func (s *Store) CreateFaceProfile(f *models.FaceProfile) error {
	return s.Create(f).Error
}

// GetFaceProfile loads a person by id.
func (s *Store) GetFaceProfile(id uuid.UUID) (*models.FaceProfile, error) {
	var f models.FaceProfile
	if err := s.First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFaceProfilesByOwner returns all people an owner has enrolled.
func (s *Store) ListFaceProfilesByOwner(ownerID uuid.UUID) ([]models.FaceProfile, error) {
	var people []models.FaceProfile
	err := s.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&people).Error
	return people, err
}

// UpdateFaceProfileCentroid atomically sets the computed centroid embedding,
// or records a failure, for the Face Enrollment Worker.
func (s *Store) UpdateFaceProfileCentroid(id uuid.UUID, vec []float32, errText *string) error {
	updates := map[string]interface{}{"error_text": errText}
	if vec != nil {
		updates["face_vec"] = pgvector.NewVector(vec)
	}
	return s.Model(&models.FaceProfile{}).Where("id = ?", id).Updates(updates).Error
}

// CreateJob inserts a pipeline-stage tracking row.
func (s *Store) CreateJob(j *models.Job) error {
	return s.Create(j).Error
}

// UpdateJob saves a job's mutable fields (status, progress, error, timestamps).
func (s *Store) UpdateJob(j *models.Job) error {
	return s.Save(j).Error
}

// GetJobsByVideo returns a video's job rows newest-first, for the status
// endpoint.
func (s *Store) GetJobsByVideo(videoID uuid.UUID) ([]models.Job, error) {
	var jobs []models.Job
	err := s.Where("video_id = ?", videoID).Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// DeleteVideo transitions a video to `deleted`, legal from every state except
// `deleted` itself. Only the state changes: the row, its scenes and its jobs
// are kept (soft delete) so an owner's delete history remains auditable.
func (s *Store) DeleteVideo(id uuid.UUID) error {
	var v models.Video
	if err := s.First(&v, "id = ?", id).Error; err != nil {
		return err
	}
	if !v.State.CanTransition(models.VideoStateDeleted) {
		return fmt.Errorf("illegal video state transition: %s -> %s", v.State, models.VideoStateDeleted)
	}
	return s.Model(&v).Update("state", models.VideoStateDeleted).Error
}

// DeleteFaceProfile removes a person and its scene links (ON DELETE CASCADE
// on scene_persons.person_id).
func (s *Store) DeleteFaceProfile(id uuid.UUID) error {
	return s.Delete(&models.FaceProfile{}, "id = ?", id).Error
}

// AppendFaceProfilePhoto adds a blob key to a profile's enrollment-photo
// list, used by the photo-upload-complete handler before it enqueues
// (re-)enrollment.
func (s *Store) AppendFaceProfilePhoto(id uuid.UUID, key string) error {
	var f models.FaceProfile
	if err := s.First(&f, "id = ?", id).Error; err != nil {
		return err
	}
	f.PhotoKeys = append(f.PhotoKeys, key)
	return s.Model(&f).Update("photo_keys", f.PhotoKeys).Error
}
