// Package model holds the archive's record shapes: Post, its nested fields,
// and the sync cursor. These are plain JSON-tagged structs persisted by
// internal/recordstore and internal/synctracker.
package model

import "strings"

// Source tags the enrichment state of a Post record. It only ever advances
// forward: archive -> archive+api, or archive -> archive:deleted.
type Source string

const (
	SourceArchive        Source = "archive"
	SourceArchiveAPI      Source = "archive+api"
	SourceArchiveDeleted Source = "archive:deleted"
)

// ContentType distinguishes the two kinds of saved content this archive tracks.
type ContentType string

const (
	ContentSavedPost ContentType = "saved_post"
	ContentReel      ContentType = "reel"
)

// MediaType is the kind of asset referenced by a Media entry.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// ExtractionStatus records how completely text extraction succeeded for a post.
type ExtractionStatus string

const (
	ExtractionComplete       ExtractionStatus = "complete"
	ExtractionPartialNoAudio ExtractionStatus = "partial:no_audio"
	ExtractionPartialNoOCR   ExtractionStatus = "partial:no_ocr"
)

// Author is the post's author as surfaced by the platform.
type Author struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	ProfileURL  string `json:"profile_url"`
	Headline    string `json:"headline"`
}

// Media is one asset (image or video) attached to a post.
type Media struct {
	URL       string    `json:"url"`
	MediaType MediaType `json:"media_type"`
	LocalPath string    `json:"local_path"`
	AltText   string    `json:"alt_text"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// ExtractedText is the text-mining result attached to a post once its local
// media has been processed. ocr_texts holds deduplicated surface forms only
// — confidence is used to rank dedup survivors but is never persisted.
type ExtractedText struct {
	AudioTranscripts []string         `json:"audio_transcripts"`
	OCRTexts         []string         `json:"ocr_texts"`
	ExtractedAt      string           `json:"extracted_at"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
}

// Post is the archive's primary record, keyed by shortcode (ID).
type Post struct {
	ID          string      `json:"id"`
	Platform    string      `json:"platform"`
	ContentType ContentType `json:"content_type"`

	Text string `json:"text"`

	Author Author  `json:"author"`
	Media  []Media `json:"media"`

	PostURL    string `json:"post_url"`
	CreatedAt  string `json:"created_at"`
	SavedAt    string `json:"saved_at"`
	HarvestedAt string `json:"harvested_at"`

	LikeCount   int `json:"like_count"`
	ReplyCount  int `json:"reply_count"`
	RepostCount int `json:"repost_count"`

	Source Source `json:"source"`

	Collections []string `json:"collections"`

	MediaPK string `json:"media_pk"`

	ExtractedText *ExtractedText `json:"extracted_text,omitempty"`
}

// Sentinel caption/text values used by the Enricher.
const (
	NoCaption    = "[No caption]"
	PostDeleted  = "[Post no longer available]"
)

// Platform constant used throughout this archive.
const PlatformInstagram = "instagram"

// IsPending reports whether p is a stub the Enricher has not yet enriched:
// source == archive and text is empty.
func (p *Post) IsPending() bool {
	return p.Source == SourceArchive && p.Text == ""
}

// HasLocalMedia reports whether at least one media entry has a non-empty
// local_path (regardless of whether the file still exists on disk).
func (p *Post) HasLocalMedia() bool {
	for _, m := range p.Media {
		if m.LocalPath != "" {
			return true
		}
	}
	return false
}

// InCollection reports whether sub is a case-insensitive substring of any of
// the post's collection names. An empty sub always matches.
func (p *Post) InCollection(sub string) bool {
	if sub == "" {
		return true
	}
	sub = strings.ToLower(sub)
	for _, c := range p.Collections {
		if strings.Contains(strings.ToLower(c), sub) {
			return true
		}
	}
	return false
}
