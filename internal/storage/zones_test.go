package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbazhenov/lockerdesk/internal/storage"
)

func TestParseZones(t *testing.T) {
	t.Run("parses codes and slot counts", func(t *testing.T) {
		catalog, err := storage.ParseZones("A:20, b:5")
		require.NoError(t, err)

		zones := catalog.Zones()
		require.Len(t, zones, 2)
		assert.Equal(t, "A", zones[0].Code)
		assert.Equal(t, 20, zones[0].Slots)
		assert.Equal(t, "B", zones[1].Code)
		assert.True(t, catalog.Has("B"))
		assert.False(t, catalog.Has("C"))
	})

	t.Run("rejects bad specs", func(t *testing.T) {
		for _, spec := range []string{"", "A", "A:0", "A:-1", "A:x", "A:2,A:3"} {
			_, err := storage.ParseZones(spec)
			assert.Error(t, err, "spec %q", spec)
		}
	})
}

func TestZoneSlotNumbers(t *testing.T) {
	numbers := storage.Zone{Code: "A", Slots: 3}.SlotNumbers()
	assert.Equal(t, []string{"A01", "A02", "A03"}, numbers)
}
