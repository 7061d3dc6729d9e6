// Package enricher implements the Enricher pipeline (spec §4.5): it walks
// pending records, fetches metadata and media through an igsession.Session,
// fans media downloads out to a bounded worker pool, and folds results back
// into the record store in save_every-sized batches.
//
// Grounded on the teacher's cmd/plex-tuner indexing loop (single-threaded
// driver, periodic checkpoint persistence) and internal/indexer/fetch
// (Config/Result/Stats shape, cooldown-after-N-requests discipline),
// generalized here from channel scraping to per-post enrichment.
package enricher

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/igarchive/internal/igsession"
	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/recordstore"
	"github.com/snapetech/igarchive/internal/retry"
	"github.com/snapetech/igarchive/internal/synctracker"
)

// Tunables matching spec §4.5's named constants.
const (
	CooldownEvery          = 600
	CooldownSecs           = 120 * time.Second
	RateLimitSleep         = 60 * time.Second
	MaxConsecutiveFailures = 10
	RedownloadDelay        = 2500 * time.Millisecond
	DrainTimeout           = 120 * time.Second
)

// Config holds a single Run's tunables (spec §6 Enricher `run` flags).
type Config struct {
	Limit      int           // 0 = unlimited
	Delay      time.Duration // default 3s between fetches
	SaveEvery  int           // default 20
	NoMedia    bool
	Collection string
	PoolSize   int // media download worker pool size, default 4
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{Delay: 3 * time.Second, SaveEvery: 20, PoolSize: 4}
}

// Stats summarizes one Run.
type Stats struct {
	Fetched     int
	Enriched    int
	Deleted     int
	Failed      int
	RateLimited int
	MediaOK     int
	MediaFailed int
}

// Enricher drives the per-record control loop over a shared PostStore.
type Enricher struct {
	Posts      *recordstore.PostStore
	Tracker    *synctracker.Tracker
	Session    *igsession.Session
	Downloader *Downloader
	Cfg        Config

	pacer *rate.Limiter

	consecutiveFailures int
	fetchesSinceCool    int
}

// New builds an Enricher. mediaRoot is only consulted when cfg.NoMedia is
// false. The per-fetch delay is enforced by a token-bucket rate.Limiter
// rather than a bare sleep, so a future burst allowance (spec §4.5's
// "delay" is a minimum, not a fixed cadence) is a one-line change.
func New(posts *recordstore.PostStore, tracker *synctracker.Tracker, session *igsession.Session, mediaRoot string, cfg Config) *Enricher {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Enricher{
		Posts:      posts,
		Tracker:    tracker,
		Session:    session,
		Downloader: NewDownloader(mediaRoot, poolSize),
		Cfg:        cfg,
		pacer:      rate.NewLimiter(rate.Every(delay), 1),
	}
}

type pendingOutcome struct {
	id     string
	patch  recordstore.Record
	future <-chan DownloadResult
}

// Run executes the control loop described in spec §4.5 over every pending
// record (source == "archive" with empty text), up to cfg.Limit records,
// patching the store every SaveEvery iterations and at end of run. The
// "instagram:enrichment" cursor (spec §9 "Cursor granularity") is updated
// once at the end of the run: mark_success on a clean finish, mark_partial
// if any record failed, mark_error if the run was aborted by a fatal cookie
// refresh.
func (e *Enricher) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	cursor, cursorErr := e.Tracker.Get(model.PlatformInstagram, "enrichment")
	if cursorErr != nil {
		cursor = &model.Cursor{Platform: model.PlatformInstagram, ContentType: "enrichment"}
	}

	posts, err := e.Posts.ReadPosts()
	if err != nil {
		return stats, fmt.Errorf("enricher: read posts: %w", err)
	}

	var pending []model.Post
	for _, p := range posts {
		if p.IsPending() && p.InCollection(e.Cfg.Collection) {
			pending = append(pending, p)
		}
	}
	if e.Cfg.Limit > 0 && len(pending) > e.Cfg.Limit {
		pending = pending[:e.Cfg.Limit]
	}

	saveEvery := e.Cfg.SaveEvery
	if saveEvery <= 0 {
		saveEvery = 20
	}

	fail := func(err error) (Stats, error) {
		synctracker.MarkError(cursor, err.Error())
		e.Tracker.Save(cursor)
		return stats, err
	}

	var batch []pendingOutcome
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		futures := make([]<-chan DownloadResult, 0, len(batch))
		for _, o := range batch {
			if o.future != nil {
				futures = append(futures, o.future)
			}
		}
		results := Drain(futures, DrainTimeout)
		byShortcode := make(map[string]DownloadResult, len(results))
		for _, r := range results {
			byShortcode[r.Shortcode] = r
		}

		patches := make(map[string]recordstore.Record, len(batch))
		for _, o := range batch {
			patch := o.patch
			if dr, ok := byShortcode[o.id]; ok {
				mediaRecs := make([]recordstore.Record, len(dr.Media))
				for i, m := range dr.Media {
					r, err := recordstore.ToRecord(m)
					if err != nil {
						continue
					}
					mediaRecs[i] = r
					if m.LocalPath != "" {
						stats.MediaOK++
					} else {
						stats.MediaFailed++
					}
				}
				patch["media"] = mediaRecs
			}
			patches[o.id] = patch
		}
		n, err := e.Posts.PatchPosts(patches)
		if err != nil {
			return err
		}
		log.Printf("enricher: patched %d records", n)
		batch = batch[:0]
		return nil
	}

	for i, post := range pending {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		stats.Fetched++
		res := e.fetchWithRetry(ctx, post.ID)

		switch res.Kind {
		case igsession.ResultOK:
			e.consecutiveFailures = 0
			patch := okPatch(res.Post)
			var future <-chan DownloadResult
			if !e.Cfg.NoMedia && len(res.Post.Media) > 0 {
				future = e.Downloader.Submit(ctx, DownloadTask{
					Shortcode: post.ID,
					Username:  res.Post.Username,
					Media:     res.Post.Media,
				})
			}
			batch = append(batch, pendingOutcome{id: post.ID, patch: patch, future: future})
			stats.Enriched++

		case igsession.ResultNotFound:
			e.consecutiveFailures = 0
			batch = append(batch, pendingOutcome{id: post.ID, patch: recordstore.Record{
				"source": string(model.SourceArchiveDeleted),
				"text":   model.PostDeleted,
			}})
			stats.Deleted++

		case igsession.ResultRateLimited:
			stats.RateLimited++
			if err := e.handleRateLimit(ctx); err != nil {
				flush()
				return fail(err)
			}

		default:
			e.consecutiveFailures++
			stats.Failed++
			if e.consecutiveFailures >= MaxConsecutiveFailures {
				if err := e.cooldown(ctx); err != nil {
					flush()
					return fail(err)
				}
			}
		}

		e.fetchesSinceCool++
		if e.fetchesSinceCool >= CooldownEvery {
			if err := e.cooldown(ctx); err != nil {
				flush()
				return fail(err)
			}
		}

		if (i+1)%saveEvery == 0 {
			if err := flush(); err != nil {
				return fail(err)
			}
		}

		if i != len(pending)-1 {
			if err := e.pacer.Wait(ctx); err != nil {
				return fail(err)
			}
		}
	}

	if err := flush(); err != nil {
		return fail(err)
	}

	if stats.Failed > 0 {
		synctracker.MarkPartial(cursor, len(pending), fmt.Sprintf("%d record(s) failed", stats.Failed))
	} else {
		synctracker.MarkSuccess(cursor, len(pending), "", "")
	}
	if err := e.Tracker.Save(cursor); err != nil {
		return stats, err
	}
	return stats, nil
}

func okPatch(p *igsession.NormalizedPost) recordstore.Record {
	text := p.Caption
	if text == "" {
		text = model.NoCaption
	}
	createdAt := ""
	if p.TakenAt > 0 {
		createdAt = time.Unix(p.TakenAt, 0).UTC().Format(time.RFC3339)
	}
	return recordstore.Record{
		"text":   text,
		"source": string(model.SourceArchiveAPI),
		"author": recordstore.Record{
			"username":     p.Username,
			"display_name": p.DisplayName,
			"profile_url":  p.ProfileURL,
		},
		"like_count":  p.LikeCount,
		"reply_count": p.CommentCount,
		"created_at":  createdAt,
		"media_pk":    p.PK,
	}
}

// handleRateLimit implements spec §4.5's rate-limit policy: sleep, refresh
// cookies, reset the consecutive-failure counter. A cookie-refresh failure
// is fatal to the run.
func (e *Enricher) handleRateLimit(ctx context.Context) error {
	log.Printf("enricher: rate limited, sleeping %s", RateLimitSleep)
	if err := sleepCtx(ctx, RateLimitSleep); err != nil {
		return err
	}
	if err := e.Session.Refresh(ctx); err != nil {
		return fmt.Errorf("enricher: cookie refresh after rate limit failed: %w", err)
	}
	e.consecutiveFailures = 0
	e.fetchesSinceCool = 0
	return nil
}

// cooldown implements both the proactive (every CooldownEvery fetches) and
// reactive (MaxConsecutiveFailures) cooldown paths, which share the same
// sleep-then-refresh action.
func (e *Enricher) cooldown(ctx context.Context) error {
	log.Printf("enricher: cooldown, sleeping %s", CooldownSecs)
	if err := sleepCtx(ctx, CooldownSecs); err != nil {
		return err
	}
	if err := e.Session.Refresh(ctx); err != nil {
		return fmt.Errorf("enricher: cookie refresh after cooldown failed: %w", err)
	}
	e.consecutiveFailures = 0
	e.fetchesSinceCool = 0
	return nil
}

// Redownload implements spec §4.5's re-download mode: records with
// source == "archive+api" that carry media URLs but no local_path (the CDN
// URL expired) are refetched one at a time and their media re-downloaded,
// paced at ~2.5s per post.
func (e *Enricher) Redownload(ctx context.Context, limit int) (Stats, error) {
	var stats Stats
	posts, err := e.Posts.ReadPosts()
	if err != nil {
		return stats, err
	}

	var targets []model.Post
	for _, p := range posts {
		if p.Source != model.SourceArchiveAPI {
			continue
		}
		if len(p.Media) == 0 || p.HasLocalMedia() {
			continue
		}
		targets = append(targets, p)
	}
	if limit > 0 && len(targets) > limit {
		targets = targets[:limit]
	}

	for i, post := range targets {
		stats.Fetched++
		res := e.Session.FetchPost(ctx, post.ID)
		if res.Kind != igsession.ResultOK {
			stats.Failed++
			continue
		}
		future := e.Downloader.Submit(ctx, DownloadTask{
			Shortcode: post.ID,
			Username:  res.Post.Username,
			Media:     res.Post.Media,
		})
		results := Drain([]<-chan DownloadResult{future}, DrainTimeout)
		if len(results) == 1 {
			mediaRecs := make([]recordstore.Record, len(results[0].Media))
			for j, m := range results[0].Media {
				r, err := recordstore.ToRecord(m)
				if err != nil {
					continue
				}
				mediaRecs[j] = r
				if m.LocalPath != "" {
					stats.MediaOK++
				} else {
					stats.MediaFailed++
				}
			}
			if _, err := e.Posts.PatchPosts(map[string]recordstore.Record{
				post.ID: {"media": mediaRecs},
			}); err != nil {
				return stats, err
			}
		}
		if i != len(targets)-1 {
			if err := sleepCtx(ctx, RedownloadDelay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// transportRetry retries bare transport errors (DNS/dial/timeout failures,
// not platform-level not_found/rate_limited/checkpoint responses) up to
// three times with a short exponential backoff before the control loop
// counts the fetch as a failure.
var transportRetry = retry.Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 8 * time.Second}

type transportError struct{ res igsession.FetchResult }

func (e transportError) Error() string { return e.res.Message }

// fetchWithRetry wraps Session.FetchPost so that transport-level failures
// (as opposed to platform responses like not_found or rate_limited) get a
// short retry before being surfaced to the control loop.
func (e *Enricher) fetchWithRetry(ctx context.Context, shortcode string) igsession.FetchResult {
	var last igsession.FetchResult
	retry.Do(ctx, transportRetry, func() error {
		last = e.Session.FetchPost(ctx, shortcode)
		if last.Kind == igsession.ResultError && last.Reason == igsession.ReasonTransport {
			return transportError{res: last}
		}
		return nil
	})
	return last
}
