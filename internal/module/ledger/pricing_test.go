package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceTable_Defaults(t *testing.T) {
	table := NewPriceTable(nil)

	cost, err := table.Cost("replicate", "image")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)

	cost, err = table.Cost("luma", "video")
	require.NoError(t, err)
	assert.Equal(t, int64(50), cost)
}

func TestPriceTable_Overrides(t *testing.T) {
	table := NewPriceTable(map[string]int64{
		"replicate.image": 12,
		"luma.video":      0, // non-positive overrides are ignored
	})

	cost, err := table.Cost("replicate", "image")
	require.NoError(t, err)
	assert.Equal(t, int64(12), cost)

	cost, err = table.Cost("luma", "video")
	require.NoError(t, err)
	assert.Equal(t, int64(50), cost)
}

func TestPriceTable_UnknownOperation(t *testing.T) {
	table := NewPriceTable(nil)

	_, err := table.Cost("replicate", "hologram")
	assert.ErrorIs(t, err, ErrUnpricedOperation)
}
