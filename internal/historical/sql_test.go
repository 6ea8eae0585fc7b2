package historical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/pkg/conn"
)

func TestSQLSinkMirrorsArchive(t *testing.T) {
	dir := t.TempDir()
	client, err := conn.New(conn.Option{Driver: conn.DriverSQLite, Database: filepath.Join(dir, "archive.db")})
	require.NoError(t, err)
	defer client.Close()

	sink, err := NewSQLSink(client.DB())
	require.NoError(t, err)

	w, err := NewWriter(DefaultConfig(dir), nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	svc := NewService[schema.PV01](KindRisk, w, sink, obs.NewManualClock(testStart))
	ctx := context.Background()
	require.NoError(t, svc.OnAdd(ctx, schema.PV01{Subject: "A", PV01: decimal.RequireFromString("0.02"), Quantity: 5}))
	require.NoError(t, svc.OnAdd(ctx, schema.PV01{Subject: "B", PV01: decimal.RequireFromString("0.03"), Quantity: 7}))
	require.NoError(t, w.Close())

	n, err := sink.Count(ctx, KindRisk)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var row Row
	require.NoError(t, client.DB().Where("record_key = ?", "B").First(&row).Error)
	assert.Equal(t, "B,0.03,7", row.Fields)
	assert.Equal(t, "risk", row.Kind)

	_, err = NewSQLSink(nil)
	require.Error(t, err)
}
