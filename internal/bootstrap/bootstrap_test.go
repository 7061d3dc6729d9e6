package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/snapetech/igarchive/internal/igsession"
	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/recordstore"
	"github.com/snapetech/igarchive/internal/synctracker"
)

func validCookies(ctx context.Context) (igsession.CookieBundle, error) {
	return igsession.CookieBundle{SessionID: "sid", CSRFToken: "csrf", DSUserID: "42"}, nil
}

func savedItem(shortcode string, mediaType int, collectionIDs []string) map[string]any {
	return map[string]any{
		"media": map[string]any{
			"code":                 shortcode,
			"pk":                   float64(1000),
			"media_type":           float64(mediaType),
			"saved_collection_ids": toAnySlice(collectionIDs),
			"user":                 map[string]any{"username": "someone", "full_name": "Some One"},
			"like_count":           float64(5),
			"comment_count":        float64(2),
			"taken_at":             float64(1690000000),
			"caption":              map[string]any{"text": "a caption"},
			"image_versions2": map[string]any{
				"candidates": []any{map[string]any{"url": "https://cdn.example/" + shortcode + ".jpg", "width": float64(10), "height": float64(10)}},
			},
		},
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func setup(t *testing.T, mux *http.ServeMux) (*recordstore.PostStore, *synctracker.Tracker, *Bootstrap) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	posts := recordstore.NewPostStore(filepath.Join(dir, "posts.json"))
	tracker := synctracker.New(filepath.Join(dir, "sync_state.json"))

	sess, err := igsession.New(context.Background(), validCookies, igsession.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("igsession.New: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Delay = 0
	cfg.NoMedia = true
	b := New(posts, tracker, sess, filepath.Join(dir, "media"), cfg)
	return posts, tracker, b
}

func collectionsHandler(cols []map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": cols, "more_available": false})
	}
}

func TestSyncFetchesAndAppendsNewPosts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections/list/", collectionsHandler([]map[string]any{
		{"collection_id": "1", "collection_name": "Travel", "collection_media_count": float64(1)},
	}))
	mux.HandleFunc("/api/v1/feed/saved/posts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items":          []any{savedItem("AAA1111111", 1, []string{"1"})},
			"more_available": false,
		})
	})

	posts, tracker, b := setup(t, mux)
	stats, err := b.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.New != 1 || stats.CollectionsFound != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	saved, _ := posts.ReadPosts()
	if len(saved) != 1 {
		t.Fatalf("expected 1 post persisted, got %d", len(saved))
	}
	p := saved[0]
	if p.ID != "AAA1111111" || p.Source != "archive+api" {
		t.Fatalf("unexpected post: %+v", p)
	}
	if len(p.Collections) != 1 || p.Collections[0] != "Travel" {
		t.Fatalf("expected collection mapped to name, got %+v", p.Collections)
	}
	if p.PostURL != "https://www.instagram.com/p/AAA1111111/" {
		t.Fatalf("unexpected post_url for saved_post: %s", p.PostURL)
	}

	cursor, err := tracker.Get("instagram", "saved")
	if err != nil {
		t.Fatalf("Get cursor: %v", err)
	}
	if cursor.LastID != "AAA1111111" {
		t.Fatalf("expected cursor advanced to last synced id, got %+v", cursor)
	}
}

func TestSyncUsesReelURLForVideoMedia(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections/list/", collectionsHandler(nil))
	mux.HandleFunc("/api/v1/feed/saved/posts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items":          []any{savedItem("REEL000001", 2, nil)},
			"more_available": false,
		})
	})

	posts, _, b := setup(t, mux)
	if _, err := b.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	saved, _ := posts.ReadPosts()
	if len(saved) != 1 || saved[0].ContentType != "reel" {
		t.Fatalf("expected reel content type, got %+v", saved)
	}
	if saved[0].PostURL != "https://www.instagram.com/reel/REEL000001/" {
		t.Fatalf("unexpected reel post_url: %s", saved[0].PostURL)
	}
}

func TestSyncSkipsAlreadyStoredIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections/list/", collectionsHandler(nil))
	mux.HandleFunc("/api/v1/feed/saved/posts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items":          []any{savedItem("DUPE000001", 1, nil)},
			"more_available": false,
		})
	})

	posts, _, b := setup(t, mux)
	if _, err := posts.AppendPosts([]model.Post{{ID: "DUPE000001"}}); err != nil {
		t.Fatalf("seed AppendPosts: %v", err)
	}

	stats, err := b.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.New != 0 || stats.Skipped != 1 {
		t.Fatalf("expected the duplicate id to be skipped, got %+v", stats)
	}
}

func TestSyncRespectsCollectionFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections/list/", collectionsHandler([]map[string]any{
		{"collection_id": "1", "collection_name": "Travel", "collection_media_count": float64(1)},
		{"collection_id": "2", "collection_name": "Recipes", "collection_media_count": float64(1)},
	}))
	mux.HandleFunc("/api/v1/feed/saved/posts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				savedItem("TRAVEL0001", 1, []string{"1"}),
				savedItem("RECIPE0001", 1, []string{"2"}),
			},
			"more_available": false,
		})
	})

	posts, _, b := setup(t, mux)
	b.Cfg.Collection = "trav"
	stats, err := b.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.New != 1 {
		t.Fatalf("expected exactly 1 post matching the collection filter, got %+v", stats)
	}
	saved, _ := posts.ReadPosts()
	if len(saved) != 1 || saved[0].ID != "TRAVEL0001" {
		t.Fatalf("unexpected filtered result: %+v", saved)
	}
}

func TestSyncRespectsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections/list/", collectionsHandler(nil))
	mux.HandleFunc("/api/v1/feed/saved/posts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				savedItem("LIM0000001", 1, nil),
				savedItem("LIM0000002", 1, nil),
				savedItem("LIM0000003", 1, nil),
			},
			"more_available": false,
		})
	})

	posts, _, b := setup(t, mux)
	b.Cfg.Limit = 2
	stats, err := b.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.New != 2 {
		t.Fatalf("expected limit to cap new posts at 2, got %+v", stats)
	}
	saved, _ := posts.ReadPosts()
	if len(saved) != 2 {
		t.Fatalf("expected exactly 2 persisted posts, got %d", len(saved))
	}
}
