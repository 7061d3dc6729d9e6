package recordstore

import "encoding/json"

// ToRecord round-trips v (a struct with JSON tags) through JSON into a
// generic Record, so it can be written via Store.Write/Append.
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// FromRecord decodes a generic Record into v (a pointer to a struct with
// matching JSON tags).
func FromRecord(r Record, v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
