package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ContextType identifies the kind of collection a queue was launched from.
type ContextType string

const (
	ContextNone     ContextType = ""
	ContextAlbum    ContextType = "album"
	ContextPlaylist ContextType = "playlist"
)

// PlayContext is the playlist or album a queue was launched from.
type PlayContext struct {
	Type     ContextType `json:"type"`
	ID       int64       `json:"id"`
	Title    string      `json:"title,omitempty"`
	CoverURL string      `json:"coverUrl,omitempty"`
}

// Valid reports whether c names a known collection type with a positive id.
func (c *PlayContext) Valid() bool {
	if c == nil || c.ID <= 0 {
		return false
	}
	return c.Type == ContextAlbum || c.Type == ContextPlaylist
}

// Correlation is the structured form of a download correlation token.
//
// ContextType is [ContextNone] for standalone downloads.
type Correlation struct {
	ContextType ContextType `json:"contextType,omitempty"`
	ContextID   int64       `json:"contextId,omitempty"`
	TrackID     int64       `json:"trackId"`
	BitrateCode int         `json:"bitrateCode"`
}

// NewCorrelation builds the correlation for downloading trackID at q inside ctx.
// An invalid or nil ctx produces a standalone correlation.
func NewCorrelation(trackID int64, q Quality, ctx *PlayContext) Correlation {
	c := Correlation{TrackID: trackID, BitrateCode: q.BitrateCode()}
	if ctx.Valid() {
		c.ContextType = ctx.Type
		c.ContextID = ctx.ID
	}
	return c
}

// IsZero reports whether c is the zero value.
func (c Correlation) IsZero() bool { return c == Correlation{} }

// String renders the wire token understood by the download service:
//
//	playlist_<playlistId>_track_<trackId>_<code>
//	album_<albumId>_track_<trackId>_<code>
//	dl_<trackId>_<code>
func (c Correlation) String() string {
	switch c.ContextType {
	case ContextPlaylist, ContextAlbum:
		return fmt.Sprintf("%s_%d_track_%d_%d", c.ContextType, c.ContextID, c.TrackID, c.BitrateCode)
	default:
		return fmt.Sprintf("dl_%d_%d", c.TrackID, c.BitrateCode)
	}
}

// ParseCorrelation parses a wire token produced by [Correlation.String].
func ParseCorrelation(token string) (Correlation, error) {
	parts := strings.Split(token, "_")
	nums := func(ss ...string) ([]int64, error) {
		out := make([]int64, len(ss))
		for i, s := range ss {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid correlation token %q: %w", token, err)
			}
			out[i] = n
		}
		return out, nil
	}

	switch {
	case len(parts) == 3 && parts[0] == "dl":
		n, err := nums(parts[1], parts[2])
		if err != nil {
			return Correlation{}, err
		}
		return Correlation{TrackID: n[0], BitrateCode: int(n[1])}, nil
	case len(parts) == 5 && parts[2] == "track" && (parts[0] == string(ContextPlaylist) || parts[0] == string(ContextAlbum)):
		n, err := nums(parts[1], parts[3], parts[4])
		if err != nil {
			return Correlation{}, err
		}
		return Correlation{
			ContextType: ContextType(parts[0]),
			ContextID:   n[0],
			TrackID:     n[1],
			BitrateCode: int(n[2]),
		}, nil
	default:
		return Correlation{}, fmt.Errorf("invalid correlation token %q", token)
	}
}
