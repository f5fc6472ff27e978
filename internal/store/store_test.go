package store

import (
	"regexp"
	"testing"
	"time"

	"github.com/videoindex/core/internal/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Store{gdb}, mock
}

func TestCreateVideoInsertsRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "videos"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	v := &models.Video{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		StorageKey: "uploads/abc.mp4",
		MimeType:   "video/mp4",
		ByteSize:   1024,
		State:      models.VideoStateUploading,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.CreateVideo(v)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVideoStateRejectsIllegalTransition(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "storage_key", "mime_type", "byte_size", "state", "created_at"}).
		AddRow(id, uuid.New(), "k", "video/mp4", 10, "indexed", time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "videos"`)).WillReturnRows(rows)

	err := s.UpdateVideoState(id, models.VideoStateProcessing, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "illegal video state transition")
}

func TestUpdateVideoStateRejectsIndexedWithoutScenes(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "storage_key", "mime_type", "byte_size", "duration_s", "state", "created_at"}).
		AddRow(id, uuid.New(), "k", "video/mp4", 10, 30.0, "processing", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "videos"`)).WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "scenes"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := s.UpdateVideoState(id, models.VideoStateIndexed, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot enter indexed")
}

func TestUpdateVideoStateRejectsFailedWithoutErrorText(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "storage_key", "mime_type", "byte_size", "state", "created_at"}).
		AddRow(id, uuid.New(), "k", "video/mp4", 10, "processing", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "videos"`)).WillReturnRows(rows)

	err := s.UpdateVideoState(id, models.VideoStateFailed, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot enter failed")
}

func TestReplaceScenesWithNoScenesOnlyDeletes(t *testing.T) {
	s, mock := newMockStore(t)
	videoID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "scenes"`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.ReplaceScenes(videoID, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
