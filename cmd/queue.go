package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// queueFile is the on-disk form of a queue. A bare JSON array of records is also accepted.
type queueFile struct {
	Queue   []models.Record     `json:"queue"`
	Index   int                 `json:"index"`
	Context *models.PlayContext `json:"context,omitempty"`
}

// loadQueue reads a queue file. An invalid context is dropped rather than rejected.
func loadQueue(path string) (*queueFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	q := &queueFile{}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if q.Queue, err = models.DecodeRecords(trimmed); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
	} else if err := json.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if len(q.Queue) == 0 {
		return nil, fmt.Errorf("%w: queue %s is empty", shared.ErrInvalidInput, path)
	}
	if q.Index < 0 || q.Index >= len(q.Queue) {
		return nil, fmt.Errorf("%w: index %d outside queue of %d", shared.ErrInvalidInput, q.Index, len(q.Queue))
	}
	if !q.Context.Valid() {
		q.Context = nil
	}
	return q, nil
}
