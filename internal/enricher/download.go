package enricher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/snapetech/igarchive/internal/igsession"
	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/safeurl"
)

// plainUA is used for CDN media downloads: no cookies (the URLs are
// presigned), just a browser-shaped User-Agent so the CDN doesn't reject the
// request outright.
const plainUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DownloadTask is one record's worth of media to fetch to disk.
type DownloadTask struct {
	Shortcode string
	Username  string
	Media     []igsession.NormalizedMedia
}

// DownloadResult is the outcome of materializing a DownloadTask's media.
type DownloadResult struct {
	Shortcode string
	Media     []model.Media // same order as the task, LocalPath set on success
}

// Downloader is a bounded worker pool that downloads media to
// <MediaRoot>/instagram/<username>/<shortcode>_<urlhash>.<ext>.
//
// Grounded on the teacher's internal/cache (stable sanitized filenames) and
// internal/materializer (download to a temp path, atomic rename on success,
// skip-if-already-present). Generalized here from video-stream
// materialization to the Enricher's per-post image/video fan-out.
type Downloader struct {
	MediaRoot string
	Client    *http.Client
	sem       chan struct{}
}

// NewDownloader returns a Downloader capped at poolSize concurrent
// downloads (spec §4.5: "submit media downloads to a concurrent worker pool
// (≤4 workers)").
func NewDownloader(mediaRoot string, poolSize int) *Downloader {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Downloader{
		MediaRoot: mediaRoot,
		Client:    &http.Client{Timeout: 30 * time.Second},
		sem:       make(chan struct{}, poolSize),
	}
}

// Submit returns immediately with a future channel; the actual download
// runs in a goroutine gated by the pool's semaphore, so the caller's main
// loop never blocks on it (spec §4.5 step 2: "The main loop does not wait").
func (d *Downloader) Submit(ctx context.Context, task DownloadTask) <-chan DownloadResult {
	out := make(chan DownloadResult, 1)
	go func() {
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
		out <- d.run(ctx, task)
	}()
	return out
}

func (d *Downloader) run(ctx context.Context, task DownloadTask) DownloadResult {
	username := safeUsername(task.Username)
	dir := filepath.Join(d.MediaRoot, "instagram", username)
	result := DownloadResult{Shortcode: task.Shortcode, Media: make([]model.Media, len(task.Media))}

	for i, m := range task.Media {
		media := model.Media{URL: m.URL, MediaType: model.MediaType(m.Type), Width: m.Width, Height: m.Height}
		path, err := d.downloadOne(ctx, dir, task.Shortcode, m)
		if err != nil {
			// Leave local_path empty and log a warning; other media in the
			// same record still get attempted (spec §4.5, §7).
			log.Printf("enricher: download failed shortcode=%s url=%q err=%v", task.Shortcode, m.URL, err)
		} else {
			media.LocalPath = path
		}
		result.Media[i] = media
	}
	return result
}

func (d *Downloader) downloadOne(ctx context.Context, dir, shortcode string, m igsession.NormalizedMedia) (string, error) {
	if !safeurl.IsHTTPOrHTTPS(m.URL) {
		return "", fmt.Errorf("refusing non-http(s) media url %q", m.URL)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	filename := fmt.Sprintf("%s_%s%s", shortcode, urlHashPrefix(m.URL), mediaExtension(m.URL, m.Type))
	dest := filepath.Join(dir, filename)

	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		return dest, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, m.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", plainUA)

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, m.URL)
	}

	tmp, err := os.CreateTemp(dir, ".dl-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil || n == 0 {
		os.Remove(tmpName)
		if copyErr != nil {
			return "", copyErr
		}
		if closeErr != nil {
			return "", closeErr
		}
		return "", fmt.Errorf("empty response body downloading %s", m.URL)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	log.Printf("enricher: downloaded %s (%s)", dest, humanize.Bytes(uint64(n)))
	return dest, nil
}

// Drain waits on every pending future in futures, applying an overall
// timeout per spec §5 ("Futures are given a 120-second timeout at drain
// time"). Futures still pending when the timeout elapses are abandoned.
func Drain(futures []<-chan DownloadResult, timeout time.Duration) []DownloadResult {
	deadline := time.After(timeout)
	out := make([]DownloadResult, 0, len(futures))
	var mu sync.Mutex
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(len(futures))
	for _, f := range futures {
		go func(fc <-chan DownloadResult) {
			defer wg.Done()
			select {
			case r := <-fc:
				mu.Lock()
				out = append(out, r)
				mu.Unlock()
			case <-deadline:
			}
		}(f)
	}
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-deadline:
	}
	mu.Lock()
	defer mu.Unlock()
	return append([]DownloadResult(nil), out...)
}

// safeUsername strips a username to [A-Za-z0-9._-], falling back to
// "unknown" when the result is empty (spec §4.5, boundary test: "foo/bar" ->
// "foobar"; "" -> "unknown").
func safeUsername(username string) string {
	var b strings.Builder
	for _, r := range username {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// mediaExtension derives a file extension from the URL's path suffix,
// falling back to .mp4 for video and .jpg for image when unrecognized
// (spec §4.5 boundary test: ".mp4?x=1" -> ".mp4").
func mediaExtension(rawURL, mediaType string) string {
	path := rawURL
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".mov", ".webm":
		return ext
	}
	if mediaType == "video" {
		return ".mp4"
	}
	return ".jpg"
}

func urlHashPrefix(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:12]
}
