// package identity canonicalizes heterogeneous track records into [models.Track].
//
// Records arrive in at least two historical shapes: the modern nested shape
// (artist.name, album.cover_medium, album.md5_image) and the legacy flat shape
// (SNG_ID, SNG_TITLE, ART_NAME, ALB_PICTURE). Each logical attribute has an ordered
// list of candidate fields; the first usable value wins.
package identity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/desertthunder/cassette/internal/models"
)

// CoverTemplate builds image URLs from a picture hash: kind, hash, size, size.
const CoverTemplate = "https://e-cdns-images.dzcdn.net/images/%s/%s/%dx%d-000000-80-0-0.jpg"

// DefaultCoverSize is the edge length used for synthesized cover URLs.
const DefaultCoverSize = 500

// Picture kinds accepted by [CoverFromHash].
const (
	KindCover  = "cover"
	KindArtist = "artist"
)

// maxRawDepth bounds how many raw-of-raw wrappers are unwrapped when recovering ids.
const maxRawDepth = 3

var (
	idFields       = [][]string{{"id"}, {"SNG_ID"}, {"track_id"}, {"trackId"}}
	titleFields    = [][]string{{"title"}, {"SNG_TITLE"}, {"name"}, {"title_short"}}
	durationFields = [][]string{{"duration"}, {"DURATION"}}
	previewFields  = [][]string{{"preview"}, {"previewUrl"}, {"preview_url"}}
	coverFields    = [][]string{
		{"album", "cover_medium"},
		{"album", "cover_big"},
		{"album", "cover_xl"},
		{"album", "cover"},
		{"album", "cover_small"},
		{"cover"},
		{"coverUrl"},
		{"cover_url"},
	}
	coverHashFields = [][]string{{"ALB_PICTURE"}, {"album", "md5_image"}, {"md5_image"}}
	artistIDFields  = [][]string{{"artist", "id"}, {"ART_ID"}, {"artistId"}, {"artist_id"}}
	albumIDFields   = [][]string{{"album", "id"}, {"ALB_ID"}, {"albumId"}, {"album_id"}}
)

// Normalize returns the canonical descriptor for v.
//
// It accepts [models.Record], map[string]any, [models.Track] and *[models.Track]. The
// boolean is false when v carries no identity-bearing field (no id, title or playable
// URL). Missing nested fields never cause a failure; they leave the attribute empty.
func Normalize(v any) (models.Track, bool) {
	switch t := v.(type) {
	case nil:
		return models.Track{}, false
	case models.Track:
		return normalizeTrack(t)
	case *models.Track:
		if t == nil {
			return models.Track{}, false
		}
		return normalizeTrack(*t)
	case models.Record:
		return normalizeRecord(t)
	case map[string]any:
		return normalizeRecord(models.Record(t))
	default:
		return models.Track{}, false
	}
}

func normalizeTrack(t models.Track) (models.Track, bool) {
	if t.ID < 0 {
		t.ID = 0
	}
	if t.Raw == nil {
		t.Raw = MinimalRecord(t)
	}
	if !t.HasID() && t.Title == "" && t.PreviewURL == "" {
		return models.Track{}, false
	}
	return t, true
}

func normalizeRecord(r models.Record) (models.Track, bool) {
	if r == nil {
		return models.Track{}, false
	}

	t := models.Track{
		ID:         firstInt(r, idFields),
		Title:      firstString(r, titleFields),
		Artist:     artistName(r),
		Duration:   firstFloat(r, durationFields),
		PreviewURL: firstString(r, previewFields),
		CoverURL:   coverURL(r),
		Raw:        r,
	}

	if !t.HasID() && t.Title == "" && t.PreviewURL == "" && stringAt(r, "url") == "" {
		return models.Track{}, false
	}
	if t.PreviewURL == "" && !t.HasID() {
		t.PreviewURL = stringAt(r, "url")
	}
	return t, true
}

// CoverFromHash builds a cover URL for a picture hash. Empty hashes yield "".
func CoverFromHash(kind, hash string, size int) string {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return ""
	}
	if kind == "" {
		kind = KindCover
	}
	if size <= 0 {
		size = DefaultCoverSize
	}
	return fmt.Sprintf(CoverTemplate, kind, hash, size, size)
}

// ArtistID recovers the artist id from t's raw record, unwrapping nested raw records.
func ArtistID(t models.Track) int64 { return rawInt(t.Raw, artistIDFields) }

// AlbumID recovers the album id from t's raw record, unwrapping nested raw records.
func AlbumID(t models.Track) int64 { return rawInt(t.Raw, albumIDFields) }

// MinimalRecord builds a raw record in the modern shape from a descriptor.
func MinimalRecord(t models.Track) models.Record {
	r := models.Record{
		"title":    t.Title,
		"duration": t.Duration,
		"artist":   map[string]any{"name": t.Artist},
	}
	if t.HasID() {
		r["id"] = t.ID
	}
	if t.PreviewURL != "" {
		r["preview"] = t.PreviewURL
	}
	if t.CoverURL != "" {
		r["album"] = map[string]any{"cover_medium": t.CoverURL}
	}
	return r
}

// Snapshot reduces t to the form stored in a resume snapshot.
func Snapshot(t models.Track) models.TrackSnapshot {
	return models.TrackSnapshot{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Duration:   t.Duration,
		CoverURL:   t.CoverURL,
		PreviewURL: t.PreviewURL,
		AlbumID:    AlbumID(t),
		ArtistID:   ArtistID(t),
	}
}

// FromSnapshot rebuilds a descriptor from a resume snapshot.
func FromSnapshot(s models.TrackSnapshot) models.Track {
	t := models.Track{
		ID:         s.ID,
		Title:      s.Title,
		Artist:     s.Artist,
		Duration:   s.Duration,
		CoverURL:   s.CoverURL,
		PreviewURL: s.PreviewURL,
	}
	t.Raw = MinimalRecord(t)
	if s.AlbumID > 0 {
		album, _ := t.Raw["album"].(map[string]any)
		if album == nil {
			album = map[string]any{}
		}
		album["id"] = s.AlbumID
		t.Raw["album"] = album
	}
	if s.ArtistID > 0 {
		t.Raw["artist"].(map[string]any)["id"] = s.ArtistID
	}
	return t
}

func artistName(r models.Record) string {
	if name := stringAt(r, "artist", "name"); name != "" {
		return name
	}
	if name := stringAt(r, "ART_NAME"); name != "" {
		return name
	}
	if name, ok := r["artist"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	for _, key := range []string{"artists", "contributors"} {
		if list, ok := r[key].([]any); ok && len(list) > 0 {
			if first, ok := asMap(list[0]); ok {
				if name := stringAt(first, "name"); name != "" {
					return name
				}
			}
		}
	}
	return ""
}

func coverURL(r models.Record) string {
	if cover := firstString(r, coverFields); cover != "" {
		return cover
	}
	return CoverFromHash(KindCover, firstString(r, coverHashFields), DefaultCoverSize)
}

func rawInt(r models.Record, fields [][]string) int64 {
	current := map[string]any(r)
	for depth := 0; current != nil && depth <= maxRawDepth; depth++ {
		if id := firstInt(current, fields); id > 0 {
			return id
		}
		next, ok := asMap(current["raw"])
		if !ok {
			return 0
		}
		current = next
	}
	return 0
}

func lookup(r map[string]any, path ...string) (any, bool) {
	var current any = r
	for _, key := range path {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case models.Record:
		return m, true
	default:
		return nil, false
	}
}

func stringAt(r map[string]any, path ...string) string {
	v, ok := lookup(r, path...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(s)
	default:
		return ""
	}
}

func firstString(r map[string]any, fields [][]string) string {
	for _, path := range fields {
		if s := stringAt(r, path...); s != "" {
			return s
		}
	}
	return ""
}

func floatAt(r map[string]any, path ...string) (float64, bool) {
	v, ok := lookup(r, path...)
	if !ok {
		return 0, false
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstFloat(r map[string]any, fields [][]string) float64 {
	for _, path := range fields {
		if f, ok := floatAt(r, path...); ok && f > 0 {
			return f
		}
	}
	return 0
}

func firstInt(r map[string]any, fields [][]string) int64 {
	for _, path := range fields {
		if f, ok := floatAt(r, path...); ok && f > 0 && f == math.Trunc(f) {
			return int64(f)
		}
	}
	return 0
}
