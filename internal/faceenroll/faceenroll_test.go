package faceenroll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/videoindex/core/internal/blob"
	"github.com/videoindex/core/internal/config"
	"github.com/videoindex/core/internal/inference"
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

func testInferenceClient(t *testing.T, srv *httptest.Server) *inference.Client {
	c, err := inference.New(config.Inference{
		BaseURL:             srv.URL,
		Timeout:             5 * time.Second,
		MaxRetries:          1,
		MaxIdleConnsPerHost: 5,
		QueryCacheSize:      8,
		FaceModel:           "face-embed-v1",
	})
	require.NoError(t, err)
	return c
}

func TestEnrollComputesNormalizedCentroid(t *testing.T) {
	personID := uuid.New()
	photoBlob := blob.NewFake()
	photoBlob.Put("photos/p1.jpg", []byte("photo-bytes"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"faces": []map[string]interface{}{
				{"bbox": [4]float64{0, 0, 1, 1}, "embedding": []float32{3, 4}, "confidence": 0.95},
			},
		})
	}))
	defer srv.Close()

	st, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "photo_keys", "created_at", "updated_at"}).
		AddRow(personID, uuid.New(), "Alice", `["photos/p1.jpg"]`, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "face_profiles"`)).WillReturnRows(rows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "face_profiles"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := NewWorker(st, photoBlob, testInferenceClient(t, srv))
	err := w.Enroll(context.Background(), personID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRecordsErrorWhenNoFacesFound(t *testing.T) {
	personID := uuid.New()
	photoBlob := blob.NewFake()
	photoBlob.Put("photos/p1.jpg", []byte("photo-bytes"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"faces": []map[string]interface{}{}})
	}))
	defer srv.Close()

	st, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "photo_keys", "created_at", "updated_at"}).
		AddRow(personID, uuid.New(), "Alice", `["photos/p1.jpg"]`, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "face_profiles"`)).WillReturnRows(rows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "face_profiles"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := NewWorker(st, photoBlob, testInferenceClient(t, srv))
	err := w.Enroll(context.Background(), personID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
