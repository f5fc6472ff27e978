// Package ffmpeg wraps the ffmpeg/ffprobe binaries the pipeline shells out
// to for container probing, audio extraction, frame sampling, and thumbnail
// generation.
package ffmpeg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Stream describes one ffprobe stream entry.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Width      int               `json:"width,omitempty"`
	Height     int               `json:"height,omitempty"`
	SampleRate string            `json:"sample_rate,omitempty"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// FormatInfo is ffprobe's top-level "format" object.
type FormatInfo struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// ProbeResult is the parsed ffprobe JSON output.
type ProbeResult struct {
	Streams []Stream   `json:"streams"`
	Format  FormatInfo `json:"format"`
}

// Client shells out to ffmpeg/ffprobe. It holds no state beyond the binary
// paths.
type Client struct {
	ffprobePath string
	ffmpegPath  string
}

// NewClient returns a Client using "ffprobe"/"ffmpeg" from $PATH.
func NewClient() *Client {
	return &Client{ffprobePath: "ffprobe", ffmpegPath: "ffmpeg"}
}

// Probe runs ffprobe and parses its JSON metadata, used by upload_validate.
func (c *Client) Probe(videoPath string) (*ProbeResult, error) {
	cmd := exec.Command(c.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var result ProbeResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// Duration extracts just the container duration in seconds, used by
// upload_validate to populate Video.DurationS.
func (c *Client) Duration(videoPath string) (float64, error) {
	cmd := exec.Command(c.ffprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	durationStr := strings.TrimSpace(out.String())
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", durationStr, err)
	}
	return duration, nil
}

// ExtractPCM16kMono decodes the video's audio track to 16kHz mono
// signed-16-bit PCM at outputPath, the format the asr stage sends to
// Inference.
func (c *Client) ExtractPCM16kMono(videoPath, outputPath string) error {
	cmd := exec.Command(c.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "s16le",
		outputPath)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg audio extract failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// ExtractFrameAt captures a single JPEG frame at timestamp t (seconds) into
// outputPath, used for per-scene vision-embedding sampling and for
// capturing the middle frame for thumbnails/face matching.
func (c *Client) ExtractFrameAt(videoPath string, t float64, outputPath string) error {
	cmd := exec.Command(c.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", t),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		outputPath)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg frame extract at %.3fs failed: %w, stderr: %s", t, err, stderr.String())
	}
	return nil
}

// GenerateThumbnail center-crops the source frame to 16:9 and scales it to
// 320x180, writing a webp at outputPath.
func (c *Client) GenerateThumbnail(framePath, outputPath string) error {
	cmd := exec.Command(c.ffmpegPath,
		"-y",
		"-i", framePath,
		"-vf", "crop='min(iw,ih*16/9)':'min(ih,iw*9/16)',scale=320:180",
		"-c:v", "libwebp",
		outputPath)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail generation failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// CheckAvailable verifies both binaries are on $PATH, used at process
// startup so a missing ffmpeg install fails fast instead of mid-pipeline.
func (c *Client) CheckAvailable() error {
	if err := exec.Command(c.ffprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	if err := exec.Command(c.ffmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}
