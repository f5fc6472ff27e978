package pipeline

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/videoindex/core/internal/applog"
	"github.com/videoindex/core/internal/store"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &store.Store{DB: gdb}, mock
}

func TestProcessSkipsAlreadyIndexedVideo(t *testing.T) {
	st, mock := newMockStore(t)
	videoID := uuid.New()

	videoRows := sqlmock.NewRows([]string{"id", "owner_id", "storage_key", "mime_type", "byte_size", "state", "created_at"}).
		AddRow(videoID, uuid.New(), "uploads/k.mp4", "video/mp4", 1024, "indexed", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "videos"`)).WillReturnRows(videoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "video_metadata"`)).
		WillReturnRows(sqlmock.NewRows([]string{"video_id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "scenes"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := &Runner{Store: st, Log: applog.New("[pipeline] ")}
	err := r.Process(context.Background(), videoID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessSkipsTerminalStates(t *testing.T) {
	for _, state := range []string{"deleted", "failed"} {
		st, mock := newMockStore(t)
		videoID := uuid.New()

		videoRows := sqlmock.NewRows([]string{"id", "owner_id", "storage_key", "mime_type", "byte_size", "state", "created_at"}).
			AddRow(videoID, uuid.New(), "uploads/k.mp4", "video/mp4", 1024, state, time.Now())
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "videos"`)).WillReturnRows(videoRows)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "video_metadata"`)).
			WillReturnRows(sqlmock.NewRows([]string{"video_id"}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "scenes"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		r := &Runner{Store: st, Log: applog.New("[pipeline] ")}
		err := r.Process(context.Background(), videoID)
		require.NoError(t, err, "state %s", state)
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}
