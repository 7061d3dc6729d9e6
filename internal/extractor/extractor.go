// Package extractor implements the Extractor pipeline (spec §4.6): it mines
// text out of already-downloaded media (Whisper transcription of video
// audio, OCR of video frames and still images), deduplicates the result,
// and patches the record's extracted_text field.
//
// Grounded on the teacher's internal/indexer/smoketest.go (sequential
// per-item pipeline over a single resource, temp-file handling) and
// internal/materializer (subprocess-backed transforms), generalized here
// from "probe a stream" to "mine text from a file and clean up after".
package extractor

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/recordstore"
)

// Config holds a single Run's tunables (spec §6 Extractor `run` flags).
type Config struct {
	Limit       int
	SaveEvery   int
	Collection  string
	SkipWhisper bool
	SkipOCR     bool
	// FrameIntervalSecs mirrors spec §4.6's FRAME_INTERVAL_SECS constant.
	FrameIntervalSecs int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{SaveEvery: 20, FrameIntervalSecs: 3}
}

// Stats summarizes one Run.
type Stats struct {
	Considered int
	Extracted  int
	Skipped    int
	Failed     int
}

// Extractor drives the per-record text-mining pipeline over a shared
// PostStore.
type Extractor struct {
	Posts   *recordstore.PostStore
	Audio   AudioExtractor
	Frames  FrameSampler
	Whisper Transcriber
	OCR     OCREngine
	Cfg     Config

	// now is overridable in tests.
	now func() string
}

// New builds an Extractor with the default ffmpeg/whisper/tesseract-backed
// implementations.
func New(posts *recordstore.PostStore, whisperModelPath string, cfg Config) *Extractor {
	if cfg.FrameIntervalSecs <= 0 {
		cfg.FrameIntervalSecs = 3
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 20
	}
	return &Extractor{
		Posts:   posts,
		Audio:   NewFFmpegAudioExtractor(),
		Frames:  NewFFmpegFrameSampler(),
		Whisper: NewWhisperTranscriber(whisperModelPath),
		OCR:     NewTesseractOCR(),
		Cfg:     cfg,
		now:     func() string { return time.Now().UTC().Format(time.RFC3339) },
	}
}

// eligible reports whether p should be processed: it lacks extracted_text
// and has at least one media item pointing at an existing local file (spec
// §4.6 intro) — this IS the resumability guarantee (spec §4.6 "Skip
// logic").
func eligible(p model.Post) bool {
	if p.ExtractedText != nil {
		return false
	}
	for _, m := range p.Media {
		if m.LocalPath == "" {
			continue
		}
		if fi, err := os.Stat(m.LocalPath); err == nil && fi.Size() > 0 {
			return true
		}
	}
	return false
}

// Run executes the Extractor pipeline over every eligible record, patching
// the store every SaveEvery records and at end of run.
func (e *Extractor) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	posts, err := e.Posts.ReadPosts()
	if err != nil {
		return stats, fmt.Errorf("extractor: read posts: %w", err)
	}

	var targets []model.Post
	for _, p := range posts {
		if eligible(p) && p.InCollection(e.Cfg.Collection) {
			targets = append(targets, p)
		}
	}
	if e.Cfg.Limit > 0 && len(targets) > e.Cfg.Limit {
		targets = targets[:e.Cfg.Limit]
	}
	stats.Considered = len(targets)

	patches := make(map[string]recordstore.Record, e.Cfg.SaveEvery)
	flush := func() error {
		if len(patches) == 0 {
			return nil
		}
		n, err := e.Posts.PatchPosts(patches)
		if err != nil {
			return err
		}
		log.Printf("extractor: patched %d records", n)
		patches = make(map[string]recordstore.Record, e.Cfg.SaveEvery)
		return nil
	}

	for i, post := range targets {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		extracted, err := e.processRecord(ctx, post)
		if err != nil {
			stats.Failed++
			log.Printf("extractor: record %s failed: %v", post.ID, err)
			continue
		}
		rec, err := recordstore.ToRecord(extracted)
		if err != nil {
			stats.Failed++
			continue
		}
		patches[post.ID] = recordstore.Record{"extracted_text": rec}
		stats.Extracted++

		if (i+1)%e.Cfg.SaveEvery == 0 {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// processRecord runs the per-media pipeline (spec §4.6 step 1), aggregates
// and deduplicates the resulting text (step 2), and returns the
// extracted_text value to patch (step 3).
func (e *Extractor) processRecord(ctx context.Context, post model.Post) (*model.ExtractedText, error) {
	var transcripts []string
	var candidates []textCandidate

	videoPresent := false
	for _, m := range post.Media {
		if m.LocalPath == "" {
			continue
		}
		if fi, err := os.Stat(m.LocalPath); err != nil || fi.Size() == 0 {
			continue
		}

		switch m.MediaType {
		case model.MediaVideo:
			videoPresent = true
			text, frameCandidates := e.processVideo(ctx, post.ID, m.LocalPath)
			if text != "" {
				transcripts = append(transcripts, text)
			}
			candidates = append(candidates, frameCandidates...)
		case model.MediaImage:
			if e.Cfg.SkipOCR {
				continue
			}
			text, confidence, err := e.OCR.Recognize(ctx, m.LocalPath)
			if err != nil {
				log.Printf("extractor: ocr failed for %s: %v", m.LocalPath, err)
				continue
			}
			if text != "" {
				candidates = append(candidates, textCandidate{Text: text, Confidence: confidence})
			}
		}
	}

	status := model.ExtractionComplete
	switch {
	case videoPresent && e.Cfg.SkipWhisper:
		status = model.ExtractionPartialNoAudio
	case e.Cfg.SkipOCR:
		status = model.ExtractionPartialNoOCR
	}

	return &model.ExtractedText{
		AudioTranscripts: nonNilStrings(transcripts),
		OCRTexts:         aggregateOCR(candidates),
		ExtractedAt:      e.now(),
		ExtractionStatus: status,
	}, nil
}

// processVideo extracts audio (Whisper transcript) and samples frames
// (OCR candidates) from one video file. Subprocess failures in either
// phase are tolerated as per-media warnings (spec §7 error kinds); the
// other phase still runs.
func (e *Extractor) processVideo(ctx context.Context, shortcode, videoPath string) (string, []textCandidate) {
	var transcript string
	var candidates []textCandidate

	if !e.Cfg.SkipWhisper {
		tmpDir, err := os.MkdirTemp("", "extractor-audio-*")
		if err != nil {
			log.Printf("extractor: temp dir for %s audio: %v", shortcode, err)
		} else {
			defer os.RemoveAll(tmpDir)
			wav, err := e.Audio.ExtractAudio(ctx, videoPath, tmpDir)
			if err != nil {
				log.Printf("extractor: audio extraction failed for %s: %v", shortcode, err)
			} else {
				text, err := e.Whisper.Transcribe(ctx, wav)
				if err != nil {
					log.Printf("extractor: whisper failed for %s: %v", shortcode, err)
				} else {
					transcript = text
				}
			}
		}
	}

	if !e.Cfg.SkipOCR {
		tmpDir, err := os.MkdirTemp("", "extractor-frames-*")
		if err != nil {
			log.Printf("extractor: temp dir for %s frames: %v", shortcode, err)
			return transcript, candidates
		}
		defer os.RemoveAll(tmpDir)

		frames, err := e.Frames.SampleFrames(ctx, videoPath, tmpDir, e.Cfg.FrameIntervalSecs)
		if err != nil {
			log.Printf("extractor: frame sampling failed for %s: %v", shortcode, err)
			return transcript, candidates
		}
		for _, frame := range frames {
			text, confidence, err := e.OCR.Recognize(ctx, frame)
			if err != nil {
				log.Printf("extractor: ocr failed for frame %s: %v", frame, err)
				continue
			}
			if text != "" {
				candidates = append(candidates, textCandidate{Text: text, Confidence: confidence})
			}
		}
	}

	return transcript, candidates
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Sample runs the per-record pipeline for a single post (by id, or the
// first eligible post in an optional collection) and returns the would-be
// extracted_text without patching the store — the Extractor's `sample`
// CLI subcommand (spec §6).
func (e *Extractor) Sample(ctx context.Context, postID, collection string) (*model.ExtractedText, error) {
	posts, err := e.Posts.ReadPosts()
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if postID != "" && p.ID != postID {
			continue
		}
		if postID == "" && !p.InCollection(collection) {
			continue
		}
		if postID == "" && !eligible(p) {
			continue
		}
		return e.processRecord(ctx, p)
	}
	return nil, fmt.Errorf("extractor: no matching record found")
}
