// Package faceenroll implements the face-enrollment worker: given a
// FaceProfile id, download its enrollment photos, detect and embed the face
// in each, and write the normalized centroid atomically.
package faceenroll

import (
	"context"
	"fmt"
	"log"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/applog"
	"github.com/videoindex/core/internal/blob"
	"github.com/videoindex/core/internal/inference"
	"github.com/videoindex/core/internal/store"
	"github.com/videoindex/core/internal/vecmath"

	"github.com/google/uuid"
)

// Worker computes or recomputes a FaceProfile's centroid embedding.
type Worker struct {
	Store     *store.Store
	PhotoBlob blob.Store
	Inference *inference.Client
	Log       *log.Logger
}

// NewWorker wires a Worker from its collaborators.
func NewWorker(st *store.Store, photoBlob blob.Store, inf *inference.Client) *Worker {
	return &Worker{Store: st, PhotoBlob: photoBlob, Inference: inf, Log: applog.New("[faceenroll] ")}
}

// Enroll is the asynq handler body registered on the face_processing queue.
// It is idempotent: the stored centroid depends only on the profile's
// current photo set, so repeated enrollment of the same profile converges
// on the same result.
func (w *Worker) Enroll(ctx context.Context, personID uuid.UUID) error {
	profile, err := w.Store.GetFaceProfile(personID)
	if err != nil {
		return fmt.Errorf("load face profile %s: %w", personID, err)
	}

	var embeddings [][]float32
	for _, key := range profile.PhotoKeys {
		photo, err := w.PhotoBlob.Download(ctx, key)
		if err != nil {
			w.Log.Printf("profile %s: download photo %s: %v", personID, key, err)
			continue
		}

		faces, err := w.Inference.DetectFaces(ctx, photo, key)
		if err != nil {
			w.Log.Printf("profile %s: detect faces in %s: %v", personID, key, err)
			continue
		}
		if len(faces) == 0 {
			continue
		}

		best := faces[0]
		for _, f := range faces[1:] {
			if f.Confidence > best.Confidence {
				best = f
			}
		}

		norm := vecmath.Normalize(best.Embedding)
		if norm == nil {
			continue
		}
		embeddings = append(embeddings, norm)
	}

	if len(embeddings) == 0 {
		errText := "no usable face found in any enrollment photo"
		if err := w.Store.UpdateFaceProfileCentroid(personID, nil, &errText); err != nil {
			return apperr.Wrap(apperr.ClassInternal, "record enrollment failure", err)
		}
		return nil
	}

	centroid := vecmath.Normalize(vecmath.Average(embeddings))
	if want := w.Inference.Config().FaceDimensions; want > 0 && len(centroid) != want {
		return apperr.New(apperr.ClassInternal, fmt.Sprintf(
			"face centroid has %d dimensions, schema expects %d", len(centroid), want))
	}
	if err := w.Store.UpdateFaceProfileCentroid(personID, centroid, nil); err != nil {
		return apperr.Wrap(apperr.ClassInternal, "persist centroid", err)
	}
	return nil
}
