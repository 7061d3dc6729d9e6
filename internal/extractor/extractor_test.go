package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/recordstore"
)

type fakeAudio struct {
	wav string
	err error
}

func (f fakeAudio) ExtractAudio(ctx context.Context, videoPath, destDir string) (string, error) {
	return f.wav, f.err
}

type fakeFrames struct {
	frames []string
	err    error
}

func (f fakeFrames) SampleFrames(ctx context.Context, videoPath, destDir string, intervalSecs int) ([]string, error) {
	return f.frames, f.err
}

type fakeWhisper struct {
	text string
	err  error
}

func (f fakeWhisper) Transcribe(ctx context.Context, wavPath string) (string, error) {
	return f.text, f.err
}

type fakeOCR struct {
	results map[string]struct {
		text       string
		confidence float64
	}
}

func (f fakeOCR) Recognize(ctx context.Context, imagePath string) (string, float64, error) {
	r, ok := f.results[imagePath]
	if !ok {
		return "default text", 0.9, nil
	}
	return r.text, r.confidence, nil
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestExtractor(t *testing.T) (*recordstore.PostStore, *Extractor) {
	t.Helper()
	dir := t.TempDir()
	store := recordstore.NewPostStore(filepath.Join(dir, "posts.json"))
	cfg := DefaultConfig()
	e := &Extractor{
		Posts:   store,
		Audio:   fakeAudio{wav: "/tmp/fake.wav"},
		Frames:  fakeFrames{},
		Whisper: fakeWhisper{text: "transcribed audio"},
		OCR:     fakeOCR{results: map[string]struct {
			text       string
			confidence float64
		}{}},
		Cfg: cfg,
		now: func() string { return "2026-07-29T00:00:00Z" },
	}
	return store, e
}

func TestRunSkipsAlreadyExtractedRecords(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	imgPath := writeFile(t, dir, "img.jpg", 10)
	_, err := store.AppendPosts([]model.Post{{
		ID:            "already1",
		Media:         []model.Media{{LocalPath: imgPath, MediaType: model.MediaImage}},
		ExtractedText: &model.ExtractedText{ExtractionStatus: model.ExtractionComplete},
	}})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Considered != 0 || stats.Extracted != 0 {
		t.Fatalf("expected zero work on an already-extracted record, got %+v", stats)
	}
}

func TestRunSkipsRecordsWithoutLocalMedia(t *testing.T) {
	store, e := newTestExtractor(t)
	_, err := store.AppendPosts([]model.Post{{
		ID:    "nomedia1",
		Media: []model.Media{{URL: "https://cdn.example/x.jpg", MediaType: model.MediaImage}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Considered != 0 {
		t.Fatalf("expected record with no local_path to be ineligible, got %+v", stats)
	}
}

func TestRunExtractsImageDirectly(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	imgPath := writeFile(t, dir, "photo.jpg", 10)
	e.OCR = fakeOCR{results: map[string]struct {
		text       string
		confidence float64
	}{
		imgPath: {text: "a sign", confidence: 0.8},
	}}
	_, err := store.AppendPosts([]model.Post{{
		ID:    "img1",
		Media: []model.Media{{LocalPath: imgPath, MediaType: model.MediaImage}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Extracted != 1 {
		t.Fatalf("expected 1 extracted, got %+v", stats)
	}
	posts, _ := store.ReadPosts()
	et := posts[0].ExtractedText
	if et == nil || et.ExtractionStatus != model.ExtractionComplete {
		t.Fatalf("expected complete status, got %+v", et)
	}
	if len(et.OCRTexts) != 1 || et.OCRTexts[0] != "a sign" {
		t.Fatalf("expected ocr text to survive, got %+v", et.OCRTexts)
	}
	if len(et.AudioTranscripts) != 0 {
		t.Fatalf("image-only record should have no audio transcripts, got %+v", et.AudioTranscripts)
	}
}

func TestRunVideoPartialMediaStillCompletesOnOCRSuccess(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	videoPath := writeFile(t, dir, "clip.mp4", 10)
	framePath := writeFile(t, dir, "frame_0001.jpg", 5)
	e.Audio = fakeAudio{err: errors.New("ffmpeg: no such filter")}
	e.Frames = fakeFrames{frames: []string{framePath}}
	e.OCR = fakeOCR{results: map[string]struct {
		text       string
		confidence float64
	}{
		framePath: {text: "caption text", confidence: 0.8},
	}}
	_, err := store.AppendPosts([]model.Post{{
		ID:    "vid1",
		Media: []model.Media{{LocalPath: videoPath, MediaType: model.MediaVideo}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Extracted != 1 {
		t.Fatalf("expected the record to still extract despite ffmpeg failure, got %+v", stats)
	}
	posts, _ := store.ReadPosts()
	et := posts[0].ExtractedText
	if et == nil {
		t.Fatal("expected extracted_text to be set")
	}
	if len(et.AudioTranscripts) != 0 {
		t.Fatalf("expected no audio transcripts when ffmpeg fails, got %+v", et.AudioTranscripts)
	}
	if len(et.OCRTexts) != 1 {
		t.Fatalf("expected ocr to still succeed, got %+v", et.OCRTexts)
	}
	if et.ExtractionStatus != model.ExtractionComplete {
		t.Fatalf("expected status complete despite ffmpeg failure (tolerated, not skipped), got %q", et.ExtractionStatus)
	}
}

func TestRunSkipWhisperMarksPartialNoAudio(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	videoPath := writeFile(t, dir, "clip2.mp4", 10)
	e.Cfg.SkipWhisper = true
	e.Frames = fakeFrames{frames: nil}
	_, err := store.AppendPosts([]model.Post{{
		ID:    "vid2",
		Media: []model.Media{{LocalPath: videoPath, MediaType: model.MediaVideo}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	posts, _ := store.ReadPosts()
	if posts[0].ExtractedText.ExtractionStatus != model.ExtractionPartialNoAudio {
		t.Fatalf("expected partial:no_audio, got %q", posts[0].ExtractedText.ExtractionStatus)
	}
}

func TestRunSkipOCRMarksPartialNoOCR(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	imgPath := writeFile(t, dir, "photo2.jpg", 10)
	e.Cfg.SkipOCR = true
	_, err := store.AppendPosts([]model.Post{{
		ID:    "img2",
		Media: []model.Media{{LocalPath: imgPath, MediaType: model.MediaImage}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	posts, _ := store.ReadPosts()
	if posts[0].ExtractedText.ExtractionStatus != model.ExtractionPartialNoOCR {
		t.Fatalf("expected partial:no_ocr, got %q", posts[0].ExtractedText.ExtractionStatus)
	}
}

func TestRunRespectsCollectionFilter(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	img1 := writeFile(t, dir, "a.jpg", 5)
	img2 := writeFile(t, dir, "b.jpg", 5)
	_, err := store.AppendPosts([]model.Post{
		{ID: "c1", Collections: []string{"travel"}, Media: []model.Media{{LocalPath: img1, MediaType: model.MediaImage}}},
		{ID: "c2", Collections: []string{"recipes"}, Media: []model.Media{{LocalPath: img2, MediaType: model.MediaImage}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Cfg.Collection = "trav"

	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Considered != 1 || stats.Extracted != 1 {
		t.Fatalf("expected exactly 1 record considered for the matching collection, got %+v", stats)
	}
}

// TestRunResumesAfterPartialRun simulates a kill between two runs: the
// first Run is capped (as if the process died after one record), and a
// fresh Extractor's second Run against the same store must pick up only
// the record the first run left untouched (spec §8 scenario "resume after
// kill").
func TestRunResumesAfterPartialRun(t *testing.T) {
	dir := t.TempDir()
	store, e1 := newTestExtractor(t)
	img1 := writeFile(t, dir, "a.jpg", 5)
	img2 := writeFile(t, dir, "b.jpg", 5)
	_, err := store.AppendPosts([]model.Post{
		{ID: "r1", Media: []model.Media{{LocalPath: img1, MediaType: model.MediaImage}}},
		{ID: "r2", Media: []model.Media{{LocalPath: img2, MediaType: model.MediaImage}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	e1.Cfg.Limit = 1

	stats1, err := e1.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if stats1.Considered != 1 || stats1.Extracted != 1 {
		t.Fatalf("expected the first (limited) run to process exactly 1 record, got %+v", stats1)
	}

	// A brand new Extractor instance over the same store stands in for a
	// fresh process restart.
	e2 := &Extractor{
		Posts:   store,
		Audio:   e1.Audio,
		Frames:  e1.Frames,
		Whisper: e1.Whisper,
		OCR:     e1.OCR,
		Cfg:     DefaultConfig(),
		now:     e1.now,
	}

	stats2, err := e2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats2.Considered != 1 || stats2.Extracted != 1 {
		t.Fatalf("expected the resumed run to pick up only the remaining record, got %+v", stats2)
	}

	posts, err := store.ReadPosts()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range posts {
		if p.ExtractedText == nil {
			t.Fatalf("record %s should have been extracted across the two runs", p.ID)
		}
	}
}

func TestSampleReturnsWithoutPatching(t *testing.T) {
	dir := t.TempDir()
	store, e := newTestExtractor(t)
	imgPath := writeFile(t, dir, "sample.jpg", 5)
	e.OCR = fakeOCR{results: map[string]struct {
		text       string
		confidence float64
	}{
		imgPath: {text: "sampled", confidence: 0.9},
	}}
	_, err := store.AppendPosts([]model.Post{{
		ID:    "sample1",
		Media: []model.Media{{LocalPath: imgPath, MediaType: model.MediaImage}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Sample(context.Background(), "sample1", "")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(result.OCRTexts) != 1 || result.OCRTexts[0] != "sampled" {
		t.Fatalf("unexpected sample result: %+v", result)
	}

	posts, _ := store.ReadPosts()
	if posts[0].ExtractedText != nil {
		t.Fatal("Sample must not patch the store")
	}
}
