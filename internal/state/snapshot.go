package state

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"bondpipe/internal/schema"
)

// Snapshot captures per-book positions at a point in time.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is the position of one instrument.
type PositionEntry struct {
	InstrumentID string           `json:"instrumentId"`
	Books        map[string]int64 `json:"books"`
}

// Snapshot builds a snapshot sorted by instrument id.
func (a *PositionAggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]PositionEntry, 0, a.store.Len())
	a.store.Range(func(id string, p schema.Position) bool {
		entries = append(entries, PositionEntry{
			InstrumentID: id,
			Books:        p.Clone().Books,
		})
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].InstrumentID < entries[j].InstrumentID
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Positions: entries,
	}
}

// ApplySnapshot replaces the positions of every instrument in snapshot.
// Listeners are not notified.
func (a *PositionAggregator) ApplySnapshot(snapshot Snapshot, reg *schema.Registry) error {
	positions := make([]schema.Position, 0, len(snapshot.Positions))
	for _, entry := range snapshot.Positions {
		inst, err := reg.Instrument(entry.InstrumentID)
		if err != nil {
			return err
		}
		p := schema.NewPosition(inst)
		for book, qty := range entry.Books {
			p.Add(book, qty)
		}
		positions = append(positions, p)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range positions {
		a.store.Upsert(p)
	}
	return nil
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
