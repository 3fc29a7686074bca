// package formatter renders queues, cache entries, resume snapshots and listening history
// as plain text, CSV or JSON for the CLI.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// Format selects an output encoding.
type Format string

const (
	Text Format = "text"
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat validates a --format flag value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", Text, "txt":
		return Text, nil
	case CSV:
		return CSV, nil
	case JSON:
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, s)
	}
}

// QueueToCSV converts a queue to CSV with columns: Index, ID, Title, Artist, Duration, Preview
func QueueToCSV(tracks []models.Track) ([]byte, error) {
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			formatID(t.ID),
			t.Title,
			t.Artist,
			shared.FormatDuration(t.Duration),
			t.PreviewURL,
		})
	}
	return writeCSV([]string{"Index", "ID", "Title", "Artist", "Duration", "Preview"}, rows)
}

// QueueToText renders a numbered queue, marking the current entry with an arrow.
// current < 0 marks nothing.
func QueueToText(tracks []models.Track, current int) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Queue: %d tracks\n\n", len(tracks)))
	for i, t := range tracks {
		marker := "  "
		if i == current {
			marker = "▶ "
		}
		buf.WriteString(fmt.Sprintf("%s%d. %s - %s [%s]\n", marker, i+1, orUnknown(t.Artist), orUnknown(t.Title), shared.FormatDuration(t.Duration)))
	}
	return buf.Bytes()
}

// CacheToCSV converts resolution cache entries to CSV.
func CacheToCSV(entries []models.CacheEntry) ([]byte, error) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			formatID(e.TrackID),
			string(e.Quality),
			e.SourceURL,
			e.StoragePath,
			e.Token,
			e.CachedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeCSV([]string{"TrackID", "Quality", "Source", "StoragePath", "Token", "CachedAt"}, rows)
}

// CacheToText renders cache entries one per line.
func CacheToText(entries []models.CacheEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Cached sources: %d\n\n", len(entries)))
	for _, e := range entries {
		buf.WriteString(fmt.Sprintf("%s  %-8s  %s", formatID(e.TrackID), e.Quality, e.SourceURL))
		if e.Token != "" {
			buf.WriteString("  (" + e.Token + ")")
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ResumeToText describes a resume snapshot. A nil snapshot reads as nothing to resume.
func ResumeToText(s *models.ResumeSnapshot) []byte {
	if s == nil {
		return []byte("Nothing to resume\n")
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Track: %s - %s\n", orUnknown(s.Track.Artist), orUnknown(s.Track.Title)))
	if s.Track.ID > 0 {
		buf.WriteString(fmt.Sprintf("ID: %d\n", s.Track.ID))
	}
	buf.WriteString(fmt.Sprintf("Position: %s / %s\n",
		shared.FormatDuration(s.ProgressSeconds),
		shared.FormatDuration(s.DurationSeconds),
	))
	if !s.UpdatedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("Saved: %s\n", s.UpdatedAt.Local().Format(time.DateTime)))
	}
	return buf.Bytes()
}

// RecentToText renders the listening history, newest first as given.
func RecentToText(recent []models.RecentTrack) []byte {
	var buf bytes.Buffer
	for i, r := range recent {
		buf.WriteString(fmt.Sprintf("%d. %s - %s", i+1, orUnknown(r.Artist), orUnknown(r.Title)))
		if r.ContextType != "" {
			buf.WriteString(fmt.Sprintf(" (%s %d)", r.ContextType, r.ContextID))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteJSONFile writes v as indented JSON, creating parent directories.
func WriteJSONFile(v any, path string) error {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return WriteFile(data, path)
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(data []byte, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range rows {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func formatID(id int64) string {
	if id <= 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
