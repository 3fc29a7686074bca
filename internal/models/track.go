package models

import "encoding/json"

// Record is a raw track record. Its shape depends on where it came from: the remote
// catalog, an older library format, or another subsystem that re-wrapped a descriptor.
type Record map[string]any

// Track is the canonical track descriptor.
//
// ID is 0 when the track has no identity (ad hoc URL playback). Raw always keeps the
// original record so provider-specific fields can be recovered later.
type Track struct {
	ID         int64   `json:"id,omitempty"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Duration   float64 `json:"duration"`
	PreviewURL string  `json:"previewUrl,omitempty"`
	CoverURL   string  `json:"coverUrl,omitempty"`
	Raw        Record  `json:"raw,omitempty"`
}

// HasID reports whether the track carries a positive identity.
func (t Track) HasID() bool { return t.ID > 0 }

// Clone returns a copy of t whose Raw map can be modified independently at the top level.
func (t Track) Clone() Track {
	if t.Raw != nil {
		raw := make(Record, len(t.Raw))
		for k, v := range t.Raw {
			raw[k] = v
		}
		t.Raw = raw
	}
	return t
}

// DecodeRecords parses a JSON array of raw track records.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
