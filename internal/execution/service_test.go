package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

func TestServiceRepublishesOrder(t *testing.T) {
	svc := NewService(nil)
	var got []schema.ExecutionOrder
	svc.AddListener(store.ListenerFunc[schema.ExecutionOrder](func(_ context.Context, o schema.ExecutionOrder) error {
		got = append(got, o)
		return nil
	}))

	order := schema.ExecutionOrder{Instrument: schema.Instrument{ID: "A"}, OrderID: "O1", Side: schema.PricingSideBid}
	require.NoError(t, svc.OnAdd(context.Background(), schema.AlgoExecution{Order: order}))

	require.Len(t, got, 1)
	assert.Equal(t, "O1", got[0].OrderID)
	stored, err := svc.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "O1", stored.OrderID)
	assert.Len(t, svc.Listeners(), 1)
}
