package synctracker

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapetech/igarchive/internal/model"
)

func TestGetAbsentReturnsBlankCursor(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync.json"))
	c, err := tr.Get("instagram", "enrichment")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.LastSyncStatus != "" || c.TotalItems != 0 {
		t.Fatalf("expected blank cursor, got %+v", c)
	}
	if c.Key() != "instagram:enrichment" {
		t.Fatalf("unexpected key %q", c.Key())
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync.json"))
	c, err := tr.Get("instagram", "saved")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	MarkSuccess(c, 10, "ABC12345678", "2026-01-01T00:00:00Z")
	if err := tr.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := tr.Get("instagram", "saved")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastSyncStatus != model.SyncSuccess || got.TotalItems != 10 || got.LastID != "ABC12345678" {
		t.Fatalf("unexpected cursor after round trip: %+v", got)
	}
}

func TestSaveUpsertsByKey(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync.json"))
	c, _ := tr.Get("instagram", "enrichment")
	MarkSuccess(c, 1, "A", "")
	if err := tr.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	MarkSuccess(c, 2, "B", "")
	if err := tr.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := tr.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single upserted cursor, got %d", len(all))
	}
	if all[0].TotalItems != 2 || all[0].LastID != "B" {
		t.Fatalf("unexpected cursor after upsert: %+v", all[0])
	}
}

func TestMarkErrorLeavesTotalItemsUntouched(t *testing.T) {
	c := &model.Cursor{Platform: "instagram", ContentType: "enrichment", TotalItems: 5}
	MarkError(c, "boom")
	if c.LastSyncStatus != model.SyncError || c.ErrorMessage != "boom" {
		t.Fatalf("unexpected cursor: %+v", c)
	}
	if c.TotalItems != 5 {
		t.Fatalf("MarkError must not touch TotalItems, got %d", c.TotalItems)
	}
}

func TestMarkPartialSetsStatusAndMessage(t *testing.T) {
	c := &model.Cursor{Platform: "instagram", ContentType: "enrichment"}
	MarkPartial(c, 7, "2 record(s) failed")
	if c.LastSyncStatus != model.SyncPartial || c.TotalItems != 7 || c.ErrorMessage != "2 record(s) failed" {
		t.Fatalf("unexpected cursor: %+v", c)
	}
}

func TestSummaryListsEveryCursor(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync.json"))
	for _, key := range [][2]string{{"instagram", "enrichment"}, {"instagram", "saved"}} {
		c, _ := tr.Get(key[0], key[1])
		MarkSuccess(c, 3, "", "")
		if err := tr.Save(c); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	summary, err := tr.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(summary, "instagram:enrichment") || !strings.Contains(summary, "instagram:saved") {
		t.Fatalf("summary missing a cursor: %q", summary)
	}
}
