package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/models"
	"github.com/videoindex/core/internal/pipeline/canonicaltext"
	"github.com/videoindex/core/internal/vecmath"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
)

const (
	canonicalTopTags     = 5
	canonicalTokenBudget = 256
	fallbackTextInput    = "untitled video scene"
)

// asrSegment is one ordered transcript span, trimmed down from
// inference.Segment to what the pipeline needs for overlap arithmetic.
type asrSegment struct {
	StartS float64
	EndS   float64
	Text   string
}

// personMatch is one face-match hit pending commit as a models.ScenePerson.
type personMatch struct {
	PersonID   uuid.UUID
	Name       string
	Confidence float64
	FrameHits  int
}

// sceneWork accumulates one scene's in-progress state across stages, keyed
// by a UUID assigned at scene_detect time so face-match and sidecar-build
// can reference it before the scene row is ever persisted.
type sceneWork struct {
	ID              uuid.UUID
	Index           int
	StartS, EndS    float64
	Transcript      string
	Segments        []asrSegment
	TextVec         []float32
	ImageVec        []float32
	VisionTags      map[string]float64
	MiddleFramePath string
	ThumbnailKey    string
	SidecarKey      string
	Persons         []personMatch
}

type enrolledFace struct {
	ID       uuid.UUID
	Name     string
	Centroid []float32
}

// stageUploadValidate downloads the source video, probes its duration, and
// fails the video fatally if the probe fails or duration is out of bounds.
func (r *Runner) stageUploadValidate(rc *runContext) error {
	if rc.video.State == models.VideoStateUploading {
		if err := r.Store.UpdateVideoState(rc.video.ID, models.VideoStateValidating, nil); err != nil {
			return apperr.Wrap(apperr.ClassInternal, "transition to validating", err)
		}
		rc.video.State = models.VideoStateValidating
	}

	data, err := r.UploadBlob.Download(rc.ctx, rc.video.StorageKey)
	if err != nil {
		return apperr.Wrap(apperr.ClassFatalMedia, "download source video", err)
	}

	rc.videoPath = scratchPath(rc, "source")
	if err := os.WriteFile(rc.videoPath, data, 0o600); err != nil {
		return apperr.Wrap(apperr.ClassInternal, "write source video to scratch", err)
	}

	duration, err := r.FFmpeg.Duration(rc.videoPath)
	if err != nil {
		return apperr.Wrap(apperr.ClassFatalMedia, "probe container duration", err)
	}
	if duration <= 0 || duration > r.Pipeline.MaxVideoSeconds {
		return apperr.New(apperr.ClassFatalMedia, fmt.Sprintf("duration %.2fs out of bounds (max %.2fs)", duration, r.Pipeline.MaxVideoSeconds))
	}

	if err := r.Store.Model(&models.Video{}).Where("id = ?", rc.video.ID).Update("duration_s", duration).Error; err != nil {
		return apperr.Wrap(apperr.ClassInternal, "persist duration", err)
	}
	rc.video.DurationS = &duration

	if rc.video.State != models.VideoStateProcessing {
		if err := r.Store.UpdateVideoState(rc.video.ID, models.VideoStateProcessing, nil); err != nil {
			return apperr.Wrap(apperr.ClassInternal, "transition to processing", err)
		}
		rc.video.State = models.VideoStateProcessing
	}

	return nil
}

// stageAudioExtract produces the 16kHz mono PCM stream the asr stage sends
// to Inference.
func (r *Runner) stageAudioExtract(rc *runContext) error {
	rc.audioPath = scratchPath(rc, "audio.pcm")
	if err := r.FFmpeg.ExtractPCM16kMono(rc.videoPath, rc.audioPath); err != nil {
		return apperr.Wrap(apperr.ClassFatalMedia, "extract audio", err)
	}
	return nil
}

// stageASR transcribes the extracted audio. Failure is soft: the pipeline
// continues with an empty transcript rather than failing the video.
func (r *Runner) stageASR(rc *runContext) error {
	audio, err := os.ReadFile(rc.audioPath)
	if err != nil {
		return apperr.Wrap(apperr.ClassFatalMedia, "read extracted audio", err)
	}

	result, err := r.Inference.Transcribe(rc.ctx, audio, r.Inference.Config().DefaultLanguage)
	if err != nil {
		r.Log.Printf("video %s: asr failed, proceeding with empty transcript: %v", rc.video.ID, err)
		return nil
	}

	rc.segments = make([]asrSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		rc.segments = append(rc.segments, asrSegment{StartS: seg.StartS, EndS: seg.EndS, Text: seg.Text})
	}
	rc.language = result.Language
	return nil
}

// stageSceneDetect partitions [0, duration] into scenes, assigning each a
// stable id used by every later stage.
func (r *Runner) stageSceneDetect(rc *runContext) error {
	if rc.video.DurationS == nil {
		return apperr.New(apperr.ClassFatalMedia, "missing duration before scene detection")
	}

	intervals, err := r.SceneDetect.Detect(rc.ctx, rc.videoPath, *rc.video.DurationS)
	if err != nil {
		return apperr.Wrap(apperr.ClassFatalMedia, "scene detection", err)
	}

	rc.scenes = make([]sceneWork, len(intervals))
	for i, iv := range intervals {
		rc.scenes[i] = sceneWork{ID: uuid.New(), Index: i, StartS: iv.StartS, EndS: iv.EndS}
	}
	return nil
}

// stagePerSceneEmbed computes transcript, text embedding, vision embedding,
// and vision tags for every scene, fanned out with bounded parallelism.
func (r *Runner) stagePerSceneEmbed(rc *runContext) error {
	g, ctx := errgroup.WithContext(rc.ctx)
	g.SetLimit(r.Pipeline.SceneConcurrency)

	for i := range rc.scenes {
		i := i
		g.Go(func() error {
			r.embedScene(ctx, rc, &rc.scenes[i])
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) embedScene(ctx context.Context, rc *runContext, scene *sceneWork) {
	scene.Segments = overlappingSegments(rc.segments, scene.StartS, scene.EndS)
	scene.Transcript = overlappingTranscript(rc.segments, scene.StartS, scene.EndS)

	fractions := [3]float64{0.25, 0.50, 0.75}
	var embeddings [][]float32
	mergedTags := map[string]float64{}
	sceneDur := scene.EndS - scene.StartS

	for fi, frac := range fractions {
		t := scene.StartS + frac*sceneDur
		framePath := scratchPath(rc, fmt.Sprintf("scene-%d-frame-%d.jpg", scene.Index, fi))

		if err := r.FFmpeg.ExtractFrameAt(rc.videoPath, t, framePath); err != nil {
			r.Log.Printf("video %s scene %d: extract frame at %.2fs: %v", rc.video.ID, scene.Index, t, err)
			continue
		}
		if frac == 0.50 {
			scene.MiddleFramePath = framePath
		}

		frameBytes, err := os.ReadFile(framePath)
		if err != nil {
			continue
		}
		result, err := r.Inference.EmbedVision(ctx, frameBytes)
		if err != nil {
			r.Log.Printf("video %s scene %d: vision embed: %v", rc.video.ID, scene.Index, err)
			continue
		}
		embeddings = append(embeddings, result.Embedding)
		for tag, score := range result.Tags {
			if score > mergedTags[tag] {
				mergedTags[tag] = score
			}
		}
	}
	scene.VisionTags = mergedTags
	if len(embeddings) > 0 {
		scene.ImageVec = vecmath.Normalize(vecmath.Average(embeddings))
	}

	textVec, err := r.Inference.EmbedText(ctx, r.textEmbeddingInput(rc, scene.Transcript, mergedTags), "document")
	if err != nil {
		r.Log.Printf("video %s scene %d: text embed: %v", rc.video.ID, scene.Index, err)
		return
	}
	scene.TextVec = vecmath.Normalize(textVec)
}

// textEmbeddingInput picks the text a scene's embedding is computed from:
// the (optionally canonicalized) transcript, else the video title, else a
// fixed placeholder, so every scene stays retrievable even when silent.
func (r *Runner) textEmbeddingInput(rc *runContext, transcript string, tags map[string]float64) string {
	textInput := transcript
	if r.Features.CanonicalTrim {
		textInput = canonicaltext.Build(transcript, tags, nil, canonicalTopTags, canonicalTokenBudget)
	}
	if textInput != "" {
		return textInput
	}
	if rc.video.Metadata != nil && rc.video.Metadata.Title != nil && *rc.video.Metadata.Title != "" {
		return *rc.video.Metadata.Title
	}
	return fallbackTextInput
}

// stageFaceMatch iff face detection is enabled and the owner has at least
// one enrolled FaceProfile, matches detected faces in each scene's middle
// frame against enrolled centroids.
func (r *Runner) stageFaceMatch(rc *runContext) error {
	if !r.Features.FaceDetection {
		return nil
	}

	profiles, err := r.Store.ListFaceProfilesByOwner(rc.video.OwnerID)
	if err != nil {
		r.Log.Printf("video %s: list face profiles: %v", rc.video.ID, err)
		return nil
	}

	var enrolled []enrolledFace
	for _, p := range profiles {
		if p.FaceVec == nil {
			continue
		}
		vec := p.FaceVec.Slice()
		enrolled = append(enrolled, enrolledFace{ID: p.ID, Name: p.Name, Centroid: vec})
	}
	if len(enrolled) == 0 {
		return nil
	}

	for i := range rc.scenes {
		scene := &rc.scenes[i]
		if scene.MiddleFramePath == "" {
			continue
		}
		frameBytes, err := os.ReadFile(scene.MiddleFramePath)
		if err != nil {
			continue
		}
		faces, err := r.Inference.DetectFaces(rc.ctx, frameBytes, "frame.jpg")
		if err != nil {
			r.Log.Printf("video %s scene %d: face detect failed: %v", rc.video.ID, scene.Index, err)
			continue
		}

		best := map[uuid.UUID]float64{}
		names := map[uuid.UUID]string{}
		for _, face := range faces {
			norm := vecmath.Normalize(face.Embedding)
			if norm == nil {
				continue
			}
			for _, ef := range enrolled {
				sim := vecmath.CosineSimilarity(norm, ef.Centroid)
				if sim < r.Pipeline.FaceMatchThreshold {
					continue
				}
				if cur, ok := best[ef.ID]; !ok || sim > cur {
					best[ef.ID] = sim
					names[ef.ID] = ef.Name
				}
			}
		}
		for personID, sim := range best {
			scene.Persons = append(scene.Persons, personMatch{PersonID: personID, Name: names[personID], Confidence: sim, FrameHits: 1})
		}
	}
	return nil
}

// stageSidecarBuild serializes and uploads each scene's sidecar JSON and
// thumbnail.
func (r *Runner) stageSidecarBuild(rc *runContext) error {
	for i := range rc.scenes {
		scene := &rc.scenes[i]

		sidecarKey := fmt.Sprintf("sidecars/%s/%s/%d.json", rc.video.OwnerID, rc.video.ID, scene.Index)
		body, err := buildSidecarJSON(r, rc.video, rc, scene)
		if err != nil {
			r.Log.Printf("video %s scene %d: build sidecar: %v", rc.video.ID, scene.Index, err)
			continue
		}
		if err := r.SidecarBlob.Upload(rc.ctx, sidecarKey, strReader(body), "application/json"); err != nil {
			r.Log.Printf("video %s scene %d: upload sidecar: %v", rc.video.ID, scene.Index, err)
			continue
		}
		scene.SidecarKey = sidecarKey

		if scene.MiddleFramePath == "" {
			continue
		}
		thumbPath := scratchPath(rc, fmt.Sprintf("scene-%d-thumb.webp", scene.Index))
		if err := r.FFmpeg.GenerateThumbnail(scene.MiddleFramePath, thumbPath); err != nil {
			r.Log.Printf("video %s scene %d: generate thumbnail: %v", rc.video.ID, scene.Index, err)
			continue
		}
		thumbBytes, err := os.ReadFile(thumbPath)
		if err != nil {
			continue
		}
		thumbKey := fmt.Sprintf("%s/%d.webp", rc.video.ID, scene.Index)
		if err := r.ThumbBlob.Upload(rc.ctx, thumbKey, bytesReader(thumbBytes), "image/webp"); err != nil {
			r.Log.Printf("video %s scene %d: upload thumbnail: %v", rc.video.ID, scene.Index, err)
			continue
		}
		scene.ThumbnailKey = thumbKey
	}
	return nil
}

// stageCommit writes the scene graph in one transaction, then transitions
// the video to indexed in a separate update.
func (r *Runner) stageCommit(rc *runContext) error {
	scenes := make([]models.Scene, len(rc.scenes))
	var persons []models.ScenePerson

	for i, sw := range rc.scenes {
		s := models.Scene{
			ID:         sw.ID,
			VideoID:    rc.video.ID,
			SceneIndex: sw.Index,
			StartS:     sw.StartS,
			EndS:       sw.EndS,
			VisionTags: toJSONObject(sw.VisionTags),
		}
		if sw.Transcript != "" {
			t := sw.Transcript
			s.Transcript = &t
		}
		if sw.TextVec != nil {
			v := pgvector.NewVector(sw.TextVec)
			s.TextVec = &v
		}
		if sw.ImageVec != nil {
			v := pgvector.NewVector(sw.ImageVec)
			s.ImageVec = &v
		}
		if sw.SidecarKey != "" {
			k := sw.SidecarKey
			s.SidecarKey = &k
		}
		if sw.ThumbnailKey != "" {
			k := sw.ThumbnailKey
			s.ThumbnailKey = &k
		}
		scenes[i] = s

		for _, pm := range sw.Persons {
			persons = append(persons, models.ScenePerson{
				SceneID:    sw.ID,
				PersonID:   pm.PersonID,
				Confidence: pm.Confidence,
				FrameHits:  pm.FrameHits,
			})
		}
	}

	if len(scenes) == 0 {
		return apperr.New(apperr.ClassFatalMedia, "no scenes produced for video")
	}

	if err := r.checkVectorDimensions(scenes); err != nil {
		return err
	}

	if err := r.Store.CommitSceneGraph(rc.video.ID, scenes, persons); err != nil {
		return apperr.Wrap(apperr.ClassInternal, "commit scene graph", err)
	}

	if err := r.Store.UpdateVideoState(rc.video.ID, models.VideoStateIndexed, nil); err != nil {
		return apperr.Wrap(apperr.ClassInternal, "transition to indexed", err)
	}
	return nil
}

// checkVectorDimensions refuses to write a vector whose length differs from
// the model's declared dimension. The schema pins column dimensions at
// table-creation time, so a mismatch means misconfiguration, not data to
// silently truncate.
func (r *Runner) checkVectorDimensions(scenes []models.Scene) error {
	cfg := r.Inference.Config()
	for _, s := range scenes {
		if s.TextVec != nil && len(s.TextVec.Slice()) != cfg.TextDimensions {
			return apperr.New(apperr.ClassInternal, fmt.Sprintf(
				"scene %s text embedding has %d dimensions, schema expects %d",
				s.ID, len(s.TextVec.Slice()), cfg.TextDimensions))
		}
		if s.ImageVec != nil && len(s.ImageVec.Slice()) != cfg.VisionDimensions {
			return apperr.New(apperr.ClassInternal, fmt.Sprintf(
				"scene %s image embedding has %d dimensions, schema expects %d",
				s.ID, len(s.ImageVec.Slice()), cfg.VisionDimensions))
		}
	}
	return nil
}

func toJSONObject(tags map[string]float64) models.JSONObject {
	out := make(models.JSONObject, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func overlappingTranscript(segments []asrSegment, start, end float64) string {
	var parts []string
	for _, seg := range segments {
		if seg.StartS <= end && seg.EndS >= start && seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// overlappingSegments returns the ordered ASR segments whose [start,end]
// overlaps the scene's bounds. A segment that straddles a scene boundary is
// included in every scene it overlaps.
func overlappingSegments(segments []asrSegment, start, end float64) []asrSegment {
	var out []asrSegment
	for _, seg := range segments {
		if seg.StartS <= end && seg.EndS >= start {
			out = append(out, seg)
		}
	}
	return out
}
