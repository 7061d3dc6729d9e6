// Package synctracker is a thin wrapper over a recordstore.Store keyed by
// "<platform>:<content_type>", durably tracking per-source ingestion
// progress (spec §4.2). Grounded on the teacher's internal/indexer/fetch
// FetchState: a checkpoint struct with mark-success/mark-error semantics,
// atomically persisted — generalized here from one-file-per-provider-run to
// a JSON array of cursors, consistent with the archive's record-store idiom.
package synctracker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/snapetech/igarchive/internal/model"
	"github.com/snapetech/igarchive/internal/recordstore"
)

// Tracker persists Cursor records.
type Tracker struct {
	store *recordstore.Store
}

// New opens (or creates on first write) a sync-state store at path.
func New(path string) *Tracker {
	return &Tracker{store: recordstore.New(path, "key")}
}

// nowFunc is overridable in tests.
var nowFunc = func() string { return time.Now().UTC().Format(time.RFC3339) }

// Get returns the cursor for (platform, contentType), creating a blank one
// if absent.
func (t *Tracker) Get(platform, contentType string) (*model.Cursor, error) {
	all, err := t.GetAll()
	if err != nil {
		return nil, err
	}
	key := platform + ":" + contentType
	for _, c := range all {
		if c.Key() == key {
			return c, nil
		}
	}
	return &model.Cursor{Platform: platform, ContentType: contentType}, nil
}

// GetAll returns every cursor currently persisted.
func (t *Tracker) GetAll() ([]*model.Cursor, error) {
	raw, err := t.store.Read()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Cursor, 0, len(raw))
	for _, r := range raw {
		var c model.Cursor
		if err := recordstore.FromRecord(r, &c); err != nil {
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

// Save upserts cursor by its composite key.
func (t *Tracker) Save(c *model.Cursor) error {
	all, err := t.GetAll()
	if err != nil {
		return err
	}
	key := c.Key()
	recs := make([]recordstore.Record, 0, len(all)+1)
	replaced := false
	for _, existing := range all {
		if existing.Key() == key {
			r, err := recordToCursorRecord(c)
			if err != nil {
				return err
			}
			recs = append(recs, r)
			replaced = true
			continue
		}
		r, err := recordToCursorRecord(existing)
		if err != nil {
			return err
		}
		recs = append(recs, r)
	}
	if !replaced {
		r, err := recordToCursorRecord(c)
		if err != nil {
			return err
		}
		recs = append(recs, r)
	}
	return t.store.Write(recs)
}

func recordToCursorRecord(c *model.Cursor) (recordstore.Record, error) {
	r, err := recordstore.ToRecord(c)
	if err != nil {
		return nil, err
	}
	r["key"] = c.Key()
	return r, nil
}

// MarkSuccess updates c in place for a clean run; the caller persists it
// with Tracker.Save.
func MarkSuccess(c *model.Cursor, total int, lastID, lastTimestamp string) {
	c.TotalItems = total
	if lastID != "" {
		c.LastID = lastID
	}
	if lastTimestamp != "" {
		c.LastTimestamp = lastTimestamp
	}
	c.LastSyncAt = nowFunc()
	c.LastSyncStatus = model.SyncSuccess
	c.ErrorMessage = ""
}

// MarkError updates c in place for a fatal run.
func MarkError(c *model.Cursor, msg string) {
	c.LastSyncAt = nowFunc()
	c.LastSyncStatus = model.SyncError
	c.ErrorMessage = msg
}

// MarkPartial updates c in place for a run that completed with some failures.
func MarkPartial(c *model.Cursor, total int, msg string) {
	c.TotalItems = total
	c.LastSyncAt = nowFunc()
	c.LastSyncStatus = model.SyncPartial
	c.ErrorMessage = msg
}

// Summary renders a tabular status string across all cursors, newest first.
func (t *Tracker) Summary() (string, error) {
	all, err := t.GetAll()
	if err != nil {
		return "", err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastSyncAt > all[j].LastSyncAt })
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %-8s %-8s %-20s %s\n", "SOURCE", "ITEMS", "STATUS", "LAST SYNC", "ERROR")
	for _, c := range all {
		fmt.Fprintf(&b, "%-28s %-8d %-8s %-20s %s\n", c.Key(), c.TotalItems, c.LastSyncStatus, c.LastSyncAt, c.ErrorMessage)
	}
	return b.String(), nil
}
