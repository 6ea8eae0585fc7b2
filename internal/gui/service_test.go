package gui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
)

func quote(id string, mid string) schema.Quote {
	return schema.Quote{
		Instrument: schema.Instrument{ID: id},
		Mid:        decimal.RequireFromString(mid),
		Spread:     decimal.New(1, 0).Div(decimal.NewFromInt(128)),
	}
}

func TestThrottle(t *testing.T) {
	dir := t.TempDir()
	clock := obs.NewManualClock(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))
	metrics := obs.NewMetrics()
	svc, err := NewService(Config{Dir: dir}, clock, metrics)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.OnAdd(ctx, quote("A", "100")))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, svc.OnAdd(ctx, quote("A", "100.5")))
	clock.Advance(199 * time.Millisecond)
	require.NoError(t, svc.OnAdd(ctx, quote("B", "99")))
	clock.Advance(time.Millisecond)
	require.NoError(t, svc.OnAdd(ctx, quote("B", "99.5")))
	require.NoError(t, svc.Close())

	written, dropped := svc.Stats()
	assert.Equal(t, 2, written)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 2.0, metrics.Snapshot().Counters["bondpipe_sink_queue_drops_total{sink=gui}"])

	data, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "2024-03-01 09:30:00.000,A,100-000,"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-03-01 09:30:00.300,B,99-160,"), lines[1])

	// throttled prices are still the latest known
	last, err := svc.Get("A")
	require.NoError(t, err)
	assert.True(t, last.Mid.Equal(decimal.RequireFromString("100.5")))

	require.Error(t, svc.OnAdd(ctx, quote("A", "101")))
	require.NoError(t, svc.Close())
}

func TestConfig(t *testing.T) {
	require.Error(t, Config{}.withDefaults().Validate())
	cfg := Config{Dir: "x"}.withDefaults()
	assert.Equal(t, DefaultThrottle, cfg.Throttle)
	assert.Equal(t, DefaultFileName, cfg.FileName)
}
