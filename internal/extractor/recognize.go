package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Transcriber runs the Whisper model over a WAV file and returns its best
// transcript. Treated as a black-box per spec §1; constructed once per run
// by the caller.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (text string, err error)
}

// OCREngine recognizes text in a still image, returning a confidence score
// in [0, 1]. Treated as a black box per spec §1.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (text string, confidence float64, err error)
}

// whisperCLITranscriber shells out to a `whisper` binary on PATH. Grounded
// on the same exec.CommandContext idiom as transcode.go.
type whisperCLITranscriber struct {
	modelPath string
}

// NewWhisperTranscriber returns a Transcriber backed by the `whisper` CLI.
// Each Transcribe call starts a separate `whisper` process, which loads the
// model named by modelPath again; the model is not kept loaded between
// calls.
func NewWhisperTranscriber(modelPath string) Transcriber {
	return whisperCLITranscriber{modelPath: modelPath}
}

func (w whisperCLITranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	args := []string{"--model", w.modelPath, "--output_format", "txt", "--output_dir", "-", wavPath}
	cmd := exec.CommandContext(ctx, "whisper", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extractor: whisper: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

// tesseractOCR shells out to the system `tesseract` binary in plain-text
// mode and reports a fixed confidence for any non-empty recognition.
type tesseractOCR struct{}

// NewTesseractOCR returns the default system-OCR-backed OCREngine.
func NewTesseractOCR() OCREngine { return tesseractOCR{} }

func (tesseractOCR) Recognize(ctx context.Context, imagePath string) (string, float64, error) {
	cmd := exec.CommandContext(ctx, "tesseract", imagePath, "stdout")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("extractor: tesseract: %w", err)
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", 0, nil
	}
	// The CLI's plain-text mode doesn't surface per-word confidence; treat
	// any non-empty recognition as a fixed, conservative confidence.
	return text, 0.75, nil
}
