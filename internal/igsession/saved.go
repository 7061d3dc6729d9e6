package igsession

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Collection is one saved-posts collection as enumerated by
// /api/v1/collections/list/ (spec §4.7 "Enumerates collections (paginated
// collection_id, name, count)").
type Collection struct {
	ID    string
	Name  string
	Count int
}

// pageEnvelope is the decoded shape of one page from either the
// collections list or the saved-posts feed: both endpoints share the same
// items/more_available/next_max_id pagination envelope.
type pageEnvelope struct {
	Items         []map[string]any `json:"items"`
	MoreAvailable bool             `json:"more_available"`
	NextMaxID     string           `json:"next_max_id"`
}

// ListCollections paginates the full collections list, sleeping 1s between
// pages.
func (s *Session) ListCollections(ctx context.Context) ([]Collection, error) {
	var out []Collection
	maxID := ""
	for {
		env, err := s.fetchPage(ctx, "/api/v1/collections/list/", maxID)
		if err != nil {
			return out, err
		}
		for _, item := range env.Items {
			out = append(out, Collection{
				ID:    stringify(item["collection_id"]),
				Name:  stringify(item["collection_name"]),
				Count: intOf(item["collection_media_count"]),
			})
		}
		if !env.MoreAvailable || env.NextMaxID == "" {
			break
		}
		maxID = env.NextMaxID
		if err := sleepCtx(ctx, time.Second); err != nil {
			return out, err
		}
	}
	return out, nil
}

// SavedFeedPage is one page of the saved-posts feed.
type SavedFeedPage struct {
	Items         []map[string]any
	MoreAvailable bool
	NextMaxID     string
}

// FetchSavedFeedPage fetches a single page of /api/v1/feed/saved/posts/.
// maxID is "" for the first page.
func (s *Session) FetchSavedFeedPage(ctx context.Context, maxID string) (SavedFeedPage, error) {
	env, err := s.fetchPage(ctx, "/api/v1/feed/saved/posts/", maxID)
	if err != nil {
		return SavedFeedPage{}, err
	}
	return SavedFeedPage{Items: env.Items, MoreAvailable: env.MoreAvailable, NextMaxID: env.NextMaxID}, nil
}

func (s *Session) fetchPage(ctx context.Context, path, maxID string) (pageEnvelope, error) {
	u := s.baseURL + path
	if maxID != "" {
		u += "?" + url.Values{"max_id": {maxID}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return pageEnvelope{}, err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return pageEnvelope{}, fmt.Errorf("igsession: fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pageEnvelope{}, fmt.Errorf("igsession: fetch %s: unexpected status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pageEnvelope{}, fmt.Errorf("igsession: fetch %s: read body: %w", path, err)
	}
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pageEnvelope{}, fmt.Errorf("igsession: fetch %s: decode: %w", path, err)
	}
	return env, nil
}

// NormalizeSavedFeedItem unwraps one saved-feed item (which nests the post
// under "media") into a NormalizedPost plus the raw collection ids it
// reports belonging to, via the same item-shaped normalizer FetchPost uses
// (spec §4.7 "converting each item into a full record via the same
// normalizer the Enricher uses").
func NormalizeSavedFeedItem(item map[string]any) (*NormalizedPost, []string, error) {
	media, ok := item["media"].(map[string]any)
	if !ok {
		media = item
	}
	post, err := normalizeItem(media)
	if err != nil {
		return nil, nil, err
	}
	var collectionIDs []string
	if raw, ok := media["saved_collection_ids"].([]any); ok {
		for _, v := range raw {
			collectionIDs = append(collectionIDs, stringify(v))
		}
	}
	return post, collectionIDs, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
