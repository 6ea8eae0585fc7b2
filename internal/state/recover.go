package state

import (
	"errors"
	"os"

	"github.com/yanun0323/logs"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
)

// RecoverConfig controls position recovery at startup.
type RecoverConfig struct {
	SnapshotPath string
	// AllowMissing starts from empty positions when the snapshot file does not exist.
	AllowMissing bool
}

// RecoverPositions builds an aggregator seeded from a snapshot file.
func RecoverPositions(cfg RecoverConfig, reg *schema.Registry, metrics *obs.Metrics) (*PositionAggregator, error) {
	agg := NewPositionAggregator(metrics)
	if cfg.SnapshotPath == "" {
		return agg, nil
	}

	snapshot, err := ReadSnapshot(cfg.SnapshotPath)
	if err != nil {
		if cfg.AllowMissing && errors.Is(err, os.ErrNotExist) {
			logs.Infof("no position snapshot at %s, starting flat", cfg.SnapshotPath)
			return agg, nil
		}
		return nil, err
	}
	if err := agg.ApplySnapshot(snapshot, reg); err != nil {
		return nil, err
	}
	logs.Infof("recovered positions=%d from %s", agg.Count(), cfg.SnapshotPath)
	return agg, nil
}
