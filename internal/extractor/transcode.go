package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// minAudioBytes is the floor below which an extracted WAV is treated as a
// failed extraction rather than silent audio (spec §4.6: "if output < 1 KB
// treat as failure").
const minAudioBytes = 1024

// AudioExtractor pulls a 16kHz mono WAV out of a video file. The system
// ffmpeg binary is a black-box transcoder per spec §1; this is the only
// seam that talks to it.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, destDir string) (wavPath string, err error)
}

// FrameSampler extracts still frames from a video at a fixed interval.
type FrameSampler interface {
	SampleFrames(ctx context.Context, videoPath, destDir string, intervalSecs int) (framePaths []string, err error)
}

// ffmpegAudioExtractor shells out to ffmpeg. Grounded on the teacher's
// materializer.materializeHLS (exec.CommandContext, -y, explicit codec
// flags, wrapped error).
type ffmpegAudioExtractor struct{}

// NewFFmpegAudioExtractor returns the default ffmpeg-backed AudioExtractor.
func NewFFmpegAudioExtractor() AudioExtractor { return ffmpegAudioExtractor{} }

func (ffmpegAudioExtractor) ExtractAudio(ctx context.Context, videoPath, destDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	dest := filepath.Join(destDir, filepath.Base(videoPath)+".wav")
	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extractor: ffmpeg audio extraction: %w", err)
	}
	fi, err := os.Stat(dest)
	if err != nil {
		return "", fmt.Errorf("extractor: ffmpeg produced no output: %w", err)
	}
	if fi.Size() < minAudioBytes {
		os.Remove(dest)
		return "", fmt.Errorf("extractor: ffmpeg output %d bytes, below %d byte floor", fi.Size(), minAudioBytes)
	}
	return dest, nil
}

// ffmpegFrameSampler shells out to ffmpeg's fps filter to sample one frame
// every intervalSecs seconds.
type ffmpegFrameSampler struct{}

// NewFFmpegFrameSampler returns the default ffmpeg-backed FrameSampler.
func NewFFmpegFrameSampler() FrameSampler { return ffmpegFrameSampler{} }

func (ffmpegFrameSampler) SampleFrames(ctx context.Context, videoPath, destDir string, intervalSecs int) ([]string, error) {
	if intervalSecs <= 0 {
		intervalSecs = 3
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	pattern := filepath.Join(destDir, "frame_%04d.jpg")
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", intervalSecs),
		pattern,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extractor: ffmpeg frame sampling: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(destDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("extractor: glob sampled frames: %w", err)
	}
	return matches, nil
}
