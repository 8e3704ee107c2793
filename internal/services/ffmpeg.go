package services

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// MediaMuxer
// Everything the exporter needs from a muxer, behind an interface so the core
// never depends on FFmpeg directly. FFmpegMuxer is the shipping implementation.
// ---------------------------------------------------------------------------

type MediaMuxer interface {
	// Probe verifies the muxer binaries are available.
	Probe(ctx context.Context) error

	// ImageToClip renders a still image into an MP4 clip of the given length,
	// scaled and padded to w×h at fps.
	ImageToClip(ctx context.Context, imagePath string, duration float64, w, h, fps int, outputPath string) error

	// Concat joins clips via a concat-file manifest, muxes the audio track,
	// and truncates the result to the audio length.
	Concat(ctx context.Context, clipPaths []string, audioPath, outputPath string) error

	// Trim stream-copies the first targetDuration seconds of a clip.
	Trim(ctx context.Context, clipPath string, targetDuration float64, outputPath string) error

	// SpeedAdjust retimes a clip by the speed factor actual/target so its
	// played duration becomes duration/factor.
	SpeedAdjust(ctx context.Context, clipPath string, factor float64, outputPath string) error

	// AudioDuration and VideoDuration return media length in seconds.
	AudioDuration(ctx context.Context, path string) (float64, error)
	VideoDuration(ctx context.Context, path string) (float64, error)
}

type FFmpegMuxer struct {
	tempDir string
}

func NewFFmpegMuxer(tempDir string) (*FFmpegMuxer, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &FFmpegMuxer{tempDir: tempDir}, nil
}

// Probe checks that ffmpeg and ffprobe respond.
func (s *FFmpegMuxer) Probe(ctx context.Context) error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		cmd := exec.CommandContext(ctx, bin, "-version")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s not available: %w", bin, err)
		}
	}
	return nil
}

func (s *FFmpegMuxer) run(ctx context.Context, label string, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 800 {
			tail = tail[len(tail)-800:]
		}
		return fmt.Errorf("ffmpeg %s failed: %w\n%s", label, err, tail)
	}
	return nil
}

// ImageToClip loops a still into a video clip. The scale+pad chain fits any
// source aspect into the target frame with black bars instead of distortion.
func (s *FFmpegMuxer) ImageToClip(ctx context.Context, imagePath string, duration float64, w, h, fps int, outputPath string) error {
	if duration <= 0 {
		return fmt.Errorf("clip duration must be positive, got %.3f", duration)
	}
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
		w, h, w, h, fps,
	)
	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "fast",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}
	return s.run(ctx, "image to clip", args...)
}

// Concat joins clips through a concat-file manifest and muxes the audio
// track. -shortest truncates the video to the audio length.
func (s *FFmpegMuxer) Concat(ctx context.Context, clipPaths []string, audioPath, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(s.tempDir, fmt.Sprintf("concat_%d.txt", os.Getpid()))
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, path := range clipPaths {
		fmt.Fprintf(f, "file '%s'\n", strings.ReplaceAll(path, "'", `'\''`))
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	if audioPath != "" {
		args = append(args,
			"-i", audioPath,
			"-map", "0:v",
			"-map", "1:a",
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", "192k",
			"-shortest",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, "-y", outputPath)
	return s.run(ctx, "concat", args...)
}

// Trim stream-copies the head of a clip; no re-encode, so natural motion is
// preserved exactly.
func (s *FFmpegMuxer) Trim(ctx context.Context, clipPath string, targetDuration float64, outputPath string) error {
	args := []string{
		"-i", clipPath,
		"-t", fmt.Sprintf("%.3f", targetDuration),
		"-c", "copy",
		"-y",
		outputPath,
	}
	return s.run(ctx, "trim", args...)
}

// SpeedAdjust retimes a clip by a speed factor: factor > 1 speeds it up,
// factor < 1 slows it down. Played duration becomes original/factor, so a
// clip generated at 2.8s reaches a 3.2s target with factor 2.8/3.2.
func (s *FFmpegMuxer) SpeedAdjust(ctx context.Context, clipPath string, factor float64, outputPath string) error {
	if factor <= 0 {
		return fmt.Errorf("speed factor must be positive, got %.4f", factor)
	}
	args := []string{
		"-i", clipPath,
		"-vf", fmt.Sprintf("setpts=PTS/%.6f", factor),
		"-an",
		"-c:v", "libx264",
		"-preset", "fast",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}
	return s.run(ctx, "speed adjust", args...)
}

func (s *FFmpegMuxer) probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return dur, nil
}

func (s *FFmpegMuxer) AudioDuration(ctx context.Context, path string) (float64, error) {
	return s.probeDuration(ctx, path)
}

func (s *FFmpegMuxer) VideoDuration(ctx context.Context, path string) (float64, error) {
	return s.probeDuration(ctx, path)
}

// Thumbnail writes a WebP preview of an image, scaled to width keeping
// aspect.
func (s *FFmpegMuxer) Thumbnail(ctx context.Context, imagePath, outPath string, width int) error {
	args := []string{
		"-i", imagePath,
		"-vf", fmt.Sprintf("scale=%d:-1", width),
		"-y",
		outPath,
	}
	return s.run(ctx, "thumbnail", args...)
}

// ---------------------------------------------------------------------------
// PCM decode — feeds the local BPM detector
// ---------------------------------------------------------------------------

// DecodePCM decodes an audio file to mono 16-bit samples at sampleRate,
// returning them as float64 in [-1,1]. maxSeconds caps how much audio is
// decoded (0 = whole file).
func (s *FFmpegMuxer) DecodePCM(ctx context.Context, path string, sampleRate int, maxSeconds float64) ([]float64, error) {
	args := []string{
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
	}
	if maxSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", maxSeconds))
	}
	args = append(args, "-v", "error", "pipe:1")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg pcm decode failed: %w", err)
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float64(v) / 32768.0
	}
	log.Printf("[FFmpeg] Decoded %d PCM samples from %s", len(samples), filepath.Base(path))
	return samples, nil
}
