package igsession

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// cookieFileShape is the on-disk JSON shape a cookie file must satisfy:
// the required fields plus any additional cookies under "extra".
type cookieFileShape struct {
	SessionID string            `json:"sessionid"`
	CSRFToken string            `json:"csrftoken"`
	DSUserID  string            `json:"ds_user_id"`
	Extra     map[string]string `json:"extra"`
}

// LoadCookieFile returns a CookieExtractor that reads a previously-exported
// cookie bundle from a JSON file at path. The actual extraction from a
// browser's on-disk cookie store is a separate, opaque operation (spec §1
// Non-goals); this is the pluggable seam the rest of the pipeline consumes,
// analogous to the teacher's LoadEnvFile reading process configuration from
// disk rather than hand-parsing an external format in-line.
func LoadCookieFile(path string) CookieExtractor {
	return func(ctx context.Context) (CookieBundle, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return CookieBundle{}, fmt.Errorf("igsession: read cookie file %s: %w", path, err)
		}
		var shape cookieFileShape
		if err := json.Unmarshal(data, &shape); err != nil {
			return CookieBundle{}, fmt.Errorf("igsession: decode cookie file %s: %w", path, err)
		}
		return CookieBundle{
			SessionID: shape.SessionID,
			CSRFToken: shape.CSRFToken,
			DSUserID:  shape.DSUserID,
			Extra:     shape.Extra,
		}, nil
	}
}
