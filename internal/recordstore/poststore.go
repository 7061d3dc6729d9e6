package recordstore

import "github.com/snapetech/igarchive/internal/model"

// PostStore is the Record Store specialized for Post records, keyed by "id".
type PostStore struct {
	*Store
}

// NewPostStore opens a Post archive at path.
func NewPostStore(path string) *PostStore {
	return &PostStore{Store: New(path, "id")}
}

// ReadPosts returns the archive's current contents as typed Post values.
// Decode errors on an individual record are skipped rather than failing the
// whole read, since a single malformed record must not block the pipeline.
func (ps *PostStore) ReadPosts() ([]model.Post, error) {
	raw, err := ps.Read()
	if err != nil {
		return nil, err
	}
	posts := make([]model.Post, 0, len(raw))
	for _, r := range raw {
		var p model.Post
		if err := FromRecord(r, &p); err != nil {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// AppendPosts appends new Post records, skipping any whose id already
// exists (no merge — Bootstrap never overwrites an existing record).
func (ps *PostStore) AppendPosts(posts []model.Post) (int, error) {
	recs := make([]Record, 0, len(posts))
	for _, p := range posts {
		r, err := ToRecord(p)
		if err != nil {
			return 0, err
		}
		recs = append(recs, r)
	}
	return ps.Append(recs, nil)
}

// PatchPosts is PatchItems specialized to Post field patches.
func (ps *PostStore) PatchPosts(patches map[string]Record) (int, error) {
	return ps.PatchItems(patches)
}
