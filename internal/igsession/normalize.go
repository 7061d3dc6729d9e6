package igsession

import "fmt"

// mediaTypeCarousel mirrors the platform's media_type enum value for a
// carousel post, whose child assets are listed under carousel_media.
const mediaTypeCarousel = 8

// normalizeItem converts one decoded API item (already unmarshaled into a
// generic map, from either GraphQL or REST) into a NormalizedPost. It
// extracts one media entry per asset, preserving order: a top-level
// image/video first, then carousel children (spec §4.4).
func normalizeItem(item map[string]any) (*NormalizedPost, error) {
	code, _ := item["code"].(string)
	pk := stringify(item["pk"])

	user, _ := item["user"].(map[string]any)
	username, _ := user["username"].(string)
	displayName, _ := user["full_name"].(string)
	profileURL := ""
	if username != "" {
		profileURL = "https://www.instagram.com/" + username + "/"
	}

	caption := ""
	if capMap, ok := item["caption"].(map[string]any); ok {
		caption, _ = capMap["text"].(string)
	}

	mediaType := intOf(item["media_type"])
	likeCount := intOf(item["like_count"])
	commentCount := intOf(item["comment_count"])
	takenAt := int64(intOf(item["taken_at"]))

	media := extractMediaFromItem(item)
	if mediaType == mediaTypeCarousel {
		if children, ok := item["carousel_media"].([]any); ok {
			for _, c := range children {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				media = append(media, extractMediaFromItem(cm)...)
			}
		}
	}

	if code == "" {
		return nil, fmt.Errorf("igsession: normalize: missing code")
	}

	return &NormalizedPost{
		Shortcode:    code,
		PK:           pk,
		Username:     username,
		DisplayName:  displayName,
		ProfileURL:   profileURL,
		Caption:      caption,
		LikeCount:    likeCount,
		CommentCount: commentCount,
		TakenAt:      takenAt,
		Media:        media,
	}, nil
}

// extractMediaFromItem pulls every media entry out of one item-shaped map (a
// top-level item or a carousel child). image_versions2 and video_versions
// are checked independently and unconditionally — a video post can also
// carry a thumbnail image, and both must be kept (spec §4.4: "carousel
// children after a top-level image/video if both exist").
func extractMediaFromItem(item map[string]any) []NormalizedMedia {
	var media []NormalizedMedia
	if iv, ok := item["image_versions2"].(map[string]any); ok {
		if candidates, ok := iv["candidates"].([]any); ok && len(candidates) > 0 {
			if c, ok := candidates[0].(map[string]any); ok {
				media = append(media, NormalizedMedia{
					URL:    stringify(c["url"]),
					Type:   "image",
					Width:  intOf(c["width"]),
					Height: intOf(c["height"]),
				})
			}
		}
	}
	if vids, ok := item["video_versions"].([]any); ok && len(vids) > 0 {
		if v, ok := vids[0].(map[string]any); ok {
			media = append(media, NormalizedMedia{
				URL:    stringify(v["url"]),
				Type:   "video",
				Width:  intOf(v["width"]),
				Height: intOf(v["height"]),
			})
		}
	}
	return media
}

func intOf(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	default:
		return 0
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%d", int64(t))
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return ""
	}
}
