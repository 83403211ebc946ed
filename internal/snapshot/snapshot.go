// Package snapshot persists the typed records of every successful unit
// as JSON artifacts, so a sync can be replayed into the store without
// touching the source site.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// Snapshot is one persisted unit result.
type Snapshot struct {
	Kind      hltv.PageKind   `json:"kind"`
	EntityID  int64           `json:"entity_id"`
	RunID     string          `json:"run_id"`
	FetchedAt time.Time       `json:"fetched_at"`
	Record    json.RawMessage `json:"record"`
}

// New builds a snapshot from a unit's extraction.
func New(runID string, unit hltv.Unit, fetchedAt time.Time, extraction hltv.Extraction) (Snapshot, error) {
	record, err := json.Marshal(extraction)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode %s record: %w", unit.Kind, err)
	}
	return Snapshot{
		Kind:      unit.Kind,
		EntityID:  unit.EntityID,
		RunID:     runID,
		FetchedAt: fetchedAt,
		Record:    record,
	}, nil
}

// Path returns the artifact path for this snapshot within a sink.
func (s Snapshot) Path() string {
	return fmt.Sprintf("%s/%d.json", s.Kind, s.EntityID)
}

// Encode renders the snapshot as indented JSON.
func (s Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", s.Path(), err)
	}
	return data, nil
}

// Decode parses a snapshot artifact.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Kind == "" {
		return Snapshot{}, fmt.Errorf("decode snapshot: missing kind")
	}
	return s, nil
}

// Extraction re-materializes the typed extraction carried by the
// snapshot.
func (s Snapshot) Extraction() (hltv.Extraction, error) {
	var ex hltv.Extraction
	if err := json.Unmarshal(s.Record, &ex); err != nil {
		return hltv.Extraction{}, fmt.Errorf("decode %s record: %w", s.Kind, err)
	}
	return ex, nil
}
