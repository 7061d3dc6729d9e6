// Package bootstrap implements the one-shot Bootstrap pipeline (spec §4.7):
// it enumerates the account's saved-post collections, paginates the saved
// feed directly through the private API, converts each item straight to a
// fully-enriched record (no separate Enricher pass — API items are
// pre-enriched), dedups against the existing store by id, and fans media
// downloads out to the same worker pool the Enricher uses.
//
// Grounded on the teacher's cmd/plex-tuner one-shot provider refresh
// (internal/provider: fetch-all, map to internal shape, write once) and the
// Enricher's save_every batching discipline, adapted here from a
// stub-then-enrich flow to the API's own pre-enriched saved-feed shape
// (original_source/platforms/instagram/api_bootstrap.py: run_sync).
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/snapetech/igarchive/internal/enricher"
	"github.com/snapetech/igarchive/internal/igsession"
	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/recordstore"
	"github.com/snapetech/igarchive/internal/synctracker"
)

// pageDelay is the sleep between saved-feed page requests, matching the
// original implementation's default (2s between API calls).
const pageDelay = 2 * time.Second

// Config holds a single Sync's tunables (spec §6 Bootstrap `sync` flags).
type Config struct {
	Limit      int // 0 = unlimited
	Delay      time.Duration
	NoMedia    bool
	Collection string
	SaveEvery  int
	PoolSize   int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{Delay: 2 * time.Second, SaveEvery: 100, PoolSize: 4}
}

// Stats summarizes one Sync.
type Stats struct {
	CollectionsFound int
	Fetched          int
	New              int
	Skipped          int
	MediaOK          int
	MediaFailed      int
}

// Bootstrap drives the one-shot collection+saved-feed sync over a shared
// PostStore.
type Bootstrap struct {
	Posts      *recordstore.PostStore
	Tracker    *synctracker.Tracker
	Session    *igsession.Session
	Downloader *enricher.Downloader
	Cfg        Config

	now func() string
}

// New builds a Bootstrap, reusing the Enricher's Downloader for media fan-out.
func New(posts *recordstore.PostStore, tracker *synctracker.Tracker, session *igsession.Session, mediaRoot string, cfg Config) *Bootstrap {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Bootstrap{
		Posts:      posts,
		Tracker:    tracker,
		Session:    session,
		Downloader: enricher.NewDownloader(mediaRoot, poolSize),
		Cfg:        cfg,
		now:        func() string { return time.Now().UTC().Format(time.RFC3339) },
	}
}

// Collections lists every saved-post collection (spec §4.7 step 1, and the
// Bootstrap `collections` CLI subcommand).
func (b *Bootstrap) Collections(ctx context.Context) ([]igsession.Collection, error) {
	return b.Session.ListCollections(ctx)
}

// Sync executes spec §4.7's full pipeline: enumerate collections, paginate
// the saved feed, convert and filter, dedup by id against the existing
// store, download media, and advance the "instagram:saved" cursor.
func (b *Bootstrap) Sync(ctx context.Context) (Stats, error) {
	var stats Stats

	collections, err := b.Session.ListCollections(ctx)
	if err != nil {
		return stats, fmt.Errorf("bootstrap: list collections: %w", err)
	}
	stats.CollectionsFound = len(collections)
	collectionNames := make(map[string]string, len(collections))
	for _, c := range collections {
		collectionNames[c.ID] = c.Name
	}

	existing, err := b.Posts.ReadPosts()
	if err != nil {
		return stats, fmt.Errorf("bootstrap: read posts: %w", err)
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, p := range existing {
		existingIDs[p.ID] = true
	}

	cursor, err := b.Tracker.Get(model.PlatformInstagram, "saved")
	if err != nil {
		return stats, fmt.Errorf("bootstrap: read cursor: %w", err)
	}

	delay := b.Cfg.Delay
	if delay <= 0 {
		delay = pageDelay
	}
	saveEvery := b.Cfg.SaveEvery
	if saveEvery <= 0 {
		saveEvery = 100
	}

	var newPosts []model.Post
	maxID := ""
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		page, err := b.Session.FetchSavedFeedPage(ctx, maxID)
		if err != nil {
			synctracker.MarkError(cursor, err.Error())
			b.Tracker.Save(cursor)
			return stats, fmt.Errorf("bootstrap: fetch saved feed: %w", err)
		}

		for _, item := range page.Items {
			stats.Fetched++
			post, ok := itemToPost(item, collectionNames, b.now())
			if !ok {
				continue
			}
			if b.Cfg.Collection != "" && !post.InCollection(b.Cfg.Collection) {
				continue
			}
			if existingIDs[post.ID] {
				stats.Skipped++
				continue
			}
			existingIDs[post.ID] = true
			newPosts = append(newPosts, post)
			stats.New++

			if b.Cfg.Limit > 0 && stats.New >= b.Cfg.Limit {
				break
			}
		}

		if b.Cfg.Limit > 0 && stats.New >= b.Cfg.Limit {
			break
		}
		if !page.MoreAvailable || page.NextMaxID == "" {
			break
		}
		maxID = page.NextMaxID
		if err := sleepCtx(ctx, delay); err != nil {
			return stats, err
		}
	}

	if len(newPosts) == 0 {
		synctracker.MarkSuccess(cursor, len(existing), "", "")
		if err := b.Tracker.Save(cursor); err != nil {
			return stats, err
		}
		return stats, nil
	}

	for start := 0; start < len(newPosts); start += saveEvery {
		end := start + saveEvery
		if end > len(newPosts) {
			end = len(newPosts)
		}
		chunk := newPosts[start:end]

		if !b.Cfg.NoMedia {
			b.downloadChunk(ctx, chunk, &stats)
		}

		n, err := b.Posts.AppendPosts(chunk)
		if err != nil {
			return stats, fmt.Errorf("bootstrap: append posts: %w", err)
		}
		log.Printf("bootstrap: appended %d new records", n)
	}

	lastID := newPosts[len(newPosts)-1].ID
	synctracker.MarkSuccess(cursor, len(existing)+len(newPosts), lastID, b.now())
	if err := b.Tracker.Save(cursor); err != nil {
		return stats, err
	}
	return stats, nil
}

// downloadChunk submits every chunk member's media to the shared
// Downloader and blocks (bounded by DrainTimeout) for the results, folding
// local_path back into each post before it is appended.
func (b *Bootstrap) downloadChunk(ctx context.Context, chunk []model.Post, stats *Stats) {
	futures := make([]<-chan enricher.DownloadResult, 0, len(chunk))
	byShortcode := make(map[string]int, len(chunk))
	for i, p := range chunk {
		if len(p.Media) == 0 {
			continue
		}
		media := make([]igsession.NormalizedMedia, len(p.Media))
		for j, m := range p.Media {
			media[j] = igsession.NormalizedMedia{URL: m.URL, Type: string(m.MediaType)}
		}
		future := b.Downloader.Submit(ctx, enricher.DownloadTask{
			Shortcode: p.ID,
			Username:  p.Author.Username,
			Media:     media,
		})
		byShortcode[p.ID] = i
		futures = append(futures, future)
	}
	if len(futures) == 0 {
		return
	}
	results := enricher.Drain(futures, enricher.DrainTimeout)
	for _, r := range results {
		idx, ok := byShortcode[r.Shortcode]
		if !ok {
			continue
		}
		chunk[idx].Media = r.Media
		for _, m := range r.Media {
			if m.LocalPath != "" {
				stats.MediaOK++
			} else {
				stats.MediaFailed++
			}
		}
	}
}

// itemToPost converts one raw saved-feed item into a fully-enriched Post,
// matching the original implementation's _api_item_to_post: the API's own
// media_type selects content_type and post_url shape, and the post is
// source == "archive+api" from the moment it's created since saved-feed
// items arrive already enriched.
func itemToPost(item map[string]any, collectionNames map[string]string, now string) (model.Post, bool) {
	norm, collectionIDs, err := igsession.NormalizeSavedFeedItem(item)
	if err != nil {
		return model.Post{}, false
	}

	media, _ := item["media"].(map[string]any)
	contentType := model.ContentSavedPost
	if mediaTypeOf(media) == 2 {
		contentType = model.ContentReel
	}

	var collections []string
	for _, id := range collectionIDs {
		if name, ok := collectionNames[id]; ok {
			collections = append(collections, name)
		}
	}
	sort.Strings(collections)

	postURL := fmt.Sprintf("https://www.instagram.com/p/%s/", norm.Shortcode)
	if contentType == model.ContentReel {
		postURL = fmt.Sprintf("https://www.instagram.com/reel/%s/", norm.Shortcode)
	}

	text := norm.Caption
	if text == "" {
		text = model.NoCaption
	}
	createdAt := ""
	if norm.TakenAt > 0 {
		createdAt = time.Unix(norm.TakenAt, 0).UTC().Format(time.RFC3339)
	}

	mediaList := make([]model.Media, len(norm.Media))
	for i, m := range norm.Media {
		mt := model.MediaImage
		if m.Type == "video" {
			mt = model.MediaVideo
		}
		mediaList[i] = model.Media{URL: m.URL, MediaType: mt, Width: m.Width, Height: m.Height}
	}

	return model.Post{
		ID:          norm.Shortcode,
		Platform:    model.PlatformInstagram,
		ContentType: contentType,
		Text:        text,
		Author: model.Author{
			Username:    norm.Username,
			DisplayName: norm.DisplayName,
			ProfileURL:  norm.ProfileURL,
		},
		Media:       mediaList,
		PostURL:     postURL,
		CreatedAt:   createdAt,
		SavedAt:     now,
		HarvestedAt: now,
		LikeCount:   norm.LikeCount,
		ReplyCount:  norm.CommentCount,
		Source:      model.SourceArchiveAPI,
		Collections: collections,
		MediaPK:     norm.PK,
	}, true
}

func mediaTypeOf(media map[string]any) int {
	switch v := media["media_type"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// FormatCollections renders a human-readable collection listing, used by
// the Bootstrap `collections` CLI subcommand.
func FormatCollections(collections []igsession.Collection, filter string) string {
	var b strings.Builder
	for _, c := range collections {
		marker := ""
		if filter != "" && strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter)) {
			marker = " <-- target"
		}
		fmt.Fprintf(&b, "%s: %d posts%s\n", c.Name, c.Count, marker)
	}
	return b.String()
}
